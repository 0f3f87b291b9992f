package binary_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder/vscode-coder-sub002/pkg/binary"
)

type fakeProvider struct {
	path string
	err  error
}

func (f *fakeProvider) FetchBinary(context.Context, string) (string, error) {
	return f.path, f.err
}

func TestResolveDevOverride(t *testing.T) {
	t.Parallel()

	dev := filepath.Join(t.TempDir(), "coder-dev")
	require.NoError(t, os.WriteFile(dev, []byte("#!/bin/sh\n"), 0o755))

	path, err := binary.Resolve(context.Background(), &fakeProvider{path: "/cached/coder"}, "x", dev)
	require.NoError(t, err)
	assert.Equal(t, dev, path)
}

func TestResolveFallsBackToProvider(t *testing.T) {
	t.Parallel()

	t.Run("NoOverride", func(t *testing.T) {
		t.Parallel()
		path, err := binary.Resolve(context.Background(), &fakeProvider{path: "/cached/coder"}, "x", "")
		require.NoError(t, err)
		assert.Equal(t, "/cached/coder", path)
	})

	t.Run("OverrideMissingOnDisk", func(t *testing.T) {
		t.Parallel()
		missing := filepath.Join(t.TempDir(), "nope")
		path, err := binary.Resolve(context.Background(), &fakeProvider{path: "/cached/coder"}, "x", missing)
		require.NoError(t, err)
		assert.Equal(t, "/cached/coder", path)
	})

	t.Run("ProviderError", func(t *testing.T) {
		t.Parallel()
		_, err := binary.Resolve(context.Background(), &fakeProvider{err: assert.AnError}, "x", "")
		require.ErrorIs(t, err, assert.AnError)
	})
}
