// Package sshconfig owns the managed block inside the user's SSH config
// file: rendering it, merging deployment- and user-supplied overrides into
// it, and verifying after a write that no earlier rule in the file shadows
// it.
package sshconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coder/vscode-coder-sub002/pkg/define"
)

// Values is the ordered set of settings this tool writes into its managed
// block. The field order is the render order.
type Values struct {
	Host                  string
	ProxyCommand          string
	ConnectTimeout        string
	StrictHostKeyChecking string
	UserKnownHostsFile    string
	LogLevel              string
	// SetEnv is optional; an empty value renders nothing.
	SetEnv string
}

// Entry is one rendered key/value pair.
type Entry struct {
	Key   string
	Value string
}

func (v Values) entries() []Entry {
	entries := []Entry{
		{"Host", v.Host},
		{"ProxyCommand", v.ProxyCommand},
		{"ConnectTimeout", v.ConnectTimeout},
		{"StrictHostKeyChecking", v.StrictHostKeyChecking},
		{"UserKnownHostsFile", v.UserKnownHostsFile},
		{"LogLevel", v.LogLevel},
	}
	if v.SetEnv != "" {
		entries = append(entries, Entry{"SetEnv", v.SetEnv})
	}
	return entries
}

// Overrides maps directive names to replacement values. Matching against
// the base set is case-insensitive. An empty value is a deletion sentinel:
// it removes the directive instead of replacing it.
type Overrides map[string]string

// ParseOptions converts "key=value" / "key value" strings, as accepted on
// the command line and returned by the deployment, into Overrides.
func ParseOptions(options []string) (Overrides, error) {
	overrides := make(Overrides, len(options))
	for _, opt := range options {
		idx := strings.IndexAny(opt, "= \t")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid SSH option %q: expected key=value", opt)
		}
		key := opt[:idx]
		value := strings.TrimLeft(opt[idx:], "= \t")
		overrides[key] = value
	}
	return overrides, nil
}

// MergeOverrides layers user overrides on top of deployment overrides.
// The user wins when both set the same directive, compared
// case-insensitively; the user's spelling of the key is kept.
func MergeOverrides(deployment, user Overrides) Overrides {
	merged := make(Overrides, len(deployment)+len(user))
	for k, v := range deployment {
		merged[k] = v
	}
	for k, v := range user {
		for existing := range merged {
			if strings.EqualFold(existing, k) && existing != k {
				delete(merged, existing)
			}
		}
		merged[k] = v
	}
	return merged
}

// Merge applies overrides to the fixed value set. A matched override
// replaces the value in place, keeping the fixed order; an empty-valued
// match deletes the directive. Unmatched overrides are appended after the
// fixed keys in case-insensitive sorted order, so the rendered block is a
// deterministic function of its inputs.
func Merge(values Values, overrides Overrides) []Entry {
	used := make(map[string]bool, len(overrides))
	merged := make([]Entry, 0, len(overrides)+8)

	for _, e := range values.entries() {
		replaced := false
		for key, value := range overrides {
			if !strings.EqualFold(key, e.Key) {
				continue
			}
			used[key] = true
			if value != "" {
				merged = append(merged, Entry{e.Key, value})
			}
			replaced = true
			break
		}
		if !replaced {
			merged = append(merged, e)
		}
	}

	extra := make([]string, 0, len(overrides))
	for key, value := range overrides {
		if !used[key] && value != "" {
			extra = append(extra, key)
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		return strings.ToLower(extra[i]) < strings.ToLower(extra[j])
	})
	for _, key := range extra {
		merged = append(merged, Entry{key, overrides[key]})
	}

	return merged
}

// ConflictError reports that, after writing the managed block, some earlier
// rule in the file still claims one of the critical directives for the
// concrete host. The conflicting content is the user's, so it is surfaced,
// never edited.
type ConflictError struct {
	Host string
	Key  string
	Want string
	Got  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("SSH config conflict for host %q: %s is %q, expected %q; an earlier Host block overrides the managed one",
		e.Host, e.Key, e.Got, e.Want)
}

// Store reads and rewrites one SSH config file. It treats the file as a
// single-writer resource for the duration of one Update call; concurrent
// external edits are last-writer-wins.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the file's current text. A missing file is empty content,
// not an error.
func (s *Store) Load() (string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "read SSH config %q", s.path)
	}
	return string(raw), nil
}

// Update replaces the managed block for the given label: the existing block
// is erased from wherever it sits and a freshly rendered block is appended
// at the end of the file. Blocks belonging to other labels, and the legacy
// unlabeled block when label is non-empty, are never touched.
func (s *Store) Update(ctx context.Context, label string, values Values, overrides Overrides) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	content, err := s.Load()
	if err != nil {
		return err
	}

	merged := Merge(values, overrides)
	updated := appendBlock(eraseBlock(content, label), renderBlock(label, merged))

	if err := s.write(updated); err != nil {
		return err
	}
	logrus.Debugf("wrote managed SSH config block for label %q to %s", label, s.path)
	return nil
}

// Remove erases the managed block for the given label and writes the file
// back. Removing a label that has no block is a no-op.
func (s *Store) Remove(ctx context.Context, label string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	content, err := s.Load()
	if err != nil {
		return err
	}

	updated := eraseBlock(content, label)
	if updated == content {
		return nil
	}
	if err := s.write(updated); err != nil {
		return err
	}
	logrus.Debugf("removed managed SSH config block for label %q from %s", label, s.path)
	return nil
}

// Verify re-reads the file and checks that the critical directives the tool
// just wrote are the ones the SSH client will actually apply to the host.
// A mismatch means an earlier, broader rule wins under first-match-wins and
// the connection would silently break.
func (s *Store) Verify(host string, values Values, overrides Overrides) error {
	content, err := s.Load()
	if err != nil {
		return err
	}

	properties := ComputeEffectiveProperties(host, content)
	for _, e := range Merge(values, overrides) {
		switch e.Key {
		case "ProxyCommand", "UserKnownHostsFile", "StrictHostKeyChecking":
		default:
			continue
		}
		if got := EffectiveValue(properties, e.Key); got != e.Value {
			return &ConflictError{Host: host, Key: e.Key, Want: e.Value, Got: got}
		}
	}
	return nil
}

func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, errors.Wrapf(err, "create SSH config directory")
	}

	fl := flock.New(s.path + ".lock")
	ok, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, errors.Wrapf(err, "lock SSH config %q", s.path)
	}
	if !ok {
		return nil, fmt.Errorf("SSH config %q is locked by another process", s.path)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			logrus.Warnf("failed to unlock SSH config: %v", err)
		}
	}, nil
}

func (s *Store) write(content string) error {
	if err := os.WriteFile(s.path, []byte(content), 0o600); err != nil {
		return errors.Wrapf(err, "write SSH config %q", s.path)
	}
	return nil
}

func startMarker(label string) string {
	if label == "" {
		return define.SSHStartToken + " " + define.SSHMarkerTail
	}
	return define.SSHStartToken + " " + label + " " + define.SSHMarkerTail
}

func endMarker(label string) string {
	if label == "" {
		return define.SSHEndToken + " " + define.SSHMarkerTail
	}
	return define.SSHEndToken + " " + label + " " + define.SSHMarkerTail
}

// eraseBlock removes the exact text span of the managed block for the given
// label, markers included. Only a marker line that matches the label
// verbatim counts; the unlabeled legacy markers are distinct lines and are
// matched only for the empty label.
func eraseBlock(content, label string) string {
	lines := strings.Split(content, "\n")
	start, end := -1, -1
	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case startMarker(label):
			if start == -1 {
				start = i
			}
		case endMarker(label):
			end = i
		}
	}
	if start == -1 || end == -1 || end < start {
		return content
	}

	kept := make([]string, 0, len(lines))
	kept = append(kept, lines[:start]...)
	kept = append(kept, lines[end+1:]...)
	return strings.Join(kept, "\n")
}

func renderBlock(label string, entries []Entry) string {
	var b strings.Builder
	b.WriteString(startMarker(label))
	b.WriteString("\n")
	for i, e := range entries {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(e.Key)
		b.WriteString(" ")
		b.WriteString(e.Value)
		b.WriteString("\n")
	}
	b.WriteString(endMarker(label))
	b.WriteString("\n")
	return b.String()
}

// appendBlock places the rendered block at the end of the file, separated
// from prior content by one blank line. An empty file gets the block with
// no leading blank line.
func appendBlock(content, block string) string {
	trimmed := strings.TrimRight(content, "\n")
	if trimmed == "" {
		return block
	}
	return trimmed + "\n\n" + block
}
