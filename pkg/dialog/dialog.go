// Package dialog abstracts the host UI: modal confirmation prompts and an
// incremental progress surface. The connection flow depends only on these
// interfaces; how they are backed (terminal, IDE webview, test fake) is the
// caller's concern.
package dialog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Prompter shows a modal yes/no question. The action label names the
// affirmative choice ("Start", "Retry", "Reload Window", ...).
type Prompter interface {
	Confirm(ctx context.Context, message, action string) (bool, error)
}

// Reporter accepts incremental progress messages during a long wait.
type Reporter interface {
	Report(message string)
}

// Terminal backs both interfaces with stdio.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:  bufio.NewReader(in),
		out: out,
	}
}

func (t *Terminal) Confirm(ctx context.Context, message, action string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(t.out, "%s [%s/no]: ", message, action)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes" || answer == strings.ToLower(action), nil
}

func (t *Terminal) Report(message string) {
	logrus.Info(message)
}
