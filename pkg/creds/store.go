// Package creds is the per-deployment secrets collaborator: it persists
// (url, token) pairs keyed by deployment label and notifies watchers when a
// label's credentials change.
package creds

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coder/vscode-coder-sub002/pkg/define"
)

// ErrNotFound is returned when no credentials are stored for a label.
var ErrNotFound = errors.New("no stored credentials")

// Auth is one deployment's stored session.
type Auth struct {
	URL   string
	Token string
	Label string
}

// Store keeps each label's credentials in its own directory so removing a
// deployment cannot disturb another's session.
type Store struct {
	dir string

	mu       sync.Mutex
	nextID   int
	watchers map[string]map[int]func(Auth)
}

func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		watchers: make(map[string]map[int]func(Auth)),
	}
}

// labelDir keeps the empty label addressable on disk.
func (s *Store) labelDir(label string) string {
	if label == "" {
		return filepath.Join(s.dir, "default")
	}
	return filepath.Join(s.dir, label)
}

// Get reads the stored session for a label. A missing or token-less entry
// is ErrNotFound: both force the login flow.
func (s *Store) Get(label string) (Auth, error) {
	dir := s.labelDir(label)

	url, err := readSecretFile(filepath.Join(dir, define.URLFile))
	if err != nil {
		return Auth{}, err
	}
	token, err := readSecretFile(filepath.Join(dir, define.SessionTokenFile))
	if err != nil {
		return Auth{}, err
	}
	if url == "" || token == "" {
		return Auth{}, ErrNotFound
	}

	return Auth{URL: url, Token: token, Label: label}, nil
}

// Set persists the session and notifies the label's watchers.
func (s *Store) Set(auth Auth) error {
	dir := s.labelDir(auth.Label)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return pkgerrors.Wrapf(err, "create credentials directory %q", dir)
	}

	if err := writeSecretFile(filepath.Join(dir, define.URLFile), auth.URL); err != nil {
		return err
	}
	if err := writeSecretFile(filepath.Join(dir, define.SessionTokenFile), auth.Token); err != nil {
		return err
	}

	s.notify(auth.Label, auth)
	return nil
}

// Delete removes the label's stored session and notifies watchers with an
// empty Auth.
func (s *Store) Delete(label string) error {
	dir := s.labelDir(label)
	if err := os.RemoveAll(dir); err != nil {
		return pkgerrors.Wrapf(err, "remove credentials directory %q", dir)
	}
	s.notify(label, Auth{Label: label})
	return nil
}

// OnChange registers a watcher for one label. The returned func removes it;
// calling it more than once is harmless.
func (s *Store) OnChange(label string, fn func(Auth)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchers[label] == nil {
		s.watchers[label] = make(map[int]func(Auth))
	}
	id := s.nextID
	s.nextID++
	s.watchers[label][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[label], id)
	}
}

func (s *Store) notify(label string, auth Auth) {
	s.mu.Lock()
	fns := make([]func(Auth), 0, len(s.watchers[label]))
	for _, fn := range s.watchers[label] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(auth)
	}
}

func readSecretFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "read %q", path)
	}
	return strings.TrimSpace(string(raw)), nil
}

func writeSecretFile(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return pkgerrors.Wrapf(err, "write %q", path)
	}
	logrus.Debugf("wrote %s", path)
	return nil
}
