package binary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloaderFetchAndRevalidate(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/bin/"+Name(), r.URL.Path)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("#!/bin/sh\n"))
	}))
	defer server.Close()

	cache := t.TempDir()
	d := NewDownloader(server.URL, cache)

	path, err := d.FetchBinary(context.Background(), "dev")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(raw))

	// Second fetch revalidates and keeps the cached copy.
	again, err := d.FetchBinary(context.Background(), "dev")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDownloaderServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewDownloader(server.URL, t.TempDir()).FetchBinary(context.Background(), "")
	require.ErrorContains(t, err, "unexpected status 500")
}
