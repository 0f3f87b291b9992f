package creds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Verifier checks a candidate (url, token) pair against the deployment,
// typically by fetching its build info.
type Verifier func(ctx context.Context, url, token string) error

/// Login runs the interactive login flow for a label: prompt for the
// deployment URL (defaulting to one derived from the label), read the
// session token without echo when stdin is a terminal, verify, and persist.
func Login(ctx context.Context, store *Store, label string, in io.Reader, out io.Writer, verify Verifier) (Auth, error) {
	if err := ctx.Err(); err != nil {
		return Auth{}, err
	}

	reader := bufio.NewReader(in)

	defaultURL := ""
	if label != "" {
		defaultURL = "https://" + label
	}
	if defaultURL != "" {
		fmt.Fprintf(out, "Deployment URL [%s]: ", defaultURL)
	} else {
		fmt.Fprint(out, "Deployment URL: ")
	}
	url, err := reader.ReadString('\n')
	if err != nil && strings.TrimSpace(url) == "" {
		return Auth{}, fmt.Errorf("read deployment URL: %w", err)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		url = defaultURL
	}
	if url == "" {
		return Auth{}, fmt.Errorf("no deployment URL given")
	}

	token, err := readToken(reader, out)
	if err != nil {
		return Auth{}, err
	}

	if err := verify(ctx, url, token); err != nil {
		return Auth{}, fmt.Errorf("verify credentials against %s: %w", url, err)
	}

	auth := Auth{URL: url, Token: token, Label: label}
	if err := store.Set(auth); err != nil {
		return Auth{}, err
	}
	return auth, nil
}

func readToken(reader *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Session token: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read session token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return "", fmt.Errorf("read session token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
