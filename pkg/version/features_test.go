package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder/vscode-coder-sub002/pkg/version"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"0.14.1", "0.14.1"},
		{"v2.19.0", "2.19.0"},
		{"v2.19.0-devel+aaaaaaaa", "2.19.0"},
		{"2.3.3+build.7", "2.3.3"},
		{" v1.0.0 ", "1.0.0"},
	}
	for _, tc := range cases {
		v, err := version.Parse(tc.raw)
		require.NoError(t, err, "raw %q", tc.raw)
		assert.Equal(t, tc.want, v.String(), "raw %q", tc.raw)
	}

	_, err := version.Parse("not-a-version")
	require.Error(t, err)
}

func TestForVersion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw                        string
		vscodeSSH, wildcard, logDir bool
	}{
		{"0.13.9", false, false, false},
		{"0.14.0", false, false, false},
		{"0.14.1", true, false, false},
		{"1.0.0", true, false, false},
		{"2.3.2", true, false, false},
		{"2.3.3", true, false, true},
		{"2.18.9", true, false, true},
		{"2.19.0", true, true, true},
		{"3.0.0", true, true, true},
	}
	for _, tc := range cases {
		v, err := version.Parse(tc.raw)
		require.NoError(t, err)
		f := version.ForVersion(v)
		assert.Equal(t, tc.vscodeSSH, f.SupportsVSCodeSSH, "vscodessh at %s", tc.raw)
		assert.Equal(t, tc.wildcard, f.SupportsWildcardSSH, "wildcard at %s", tc.raw)
		assert.Equal(t, tc.logDir, f.SupportsProxyLogDirectory, "log dir at %s", tc.raw)
	}
}

func TestNegotiate(t *testing.T) {
	t.Parallel()

	t.Run("BinaryWins", func(t *testing.T) {
		t.Parallel()
		v, f, err := version.Negotiate("v2.3.3", "v2.19.0")
		require.NoError(t, err)
		assert.Equal(t, "2.19.0", v.String())
		assert.True(t, f.SupportsWildcardSSH)
	})

	t.Run("FallsBackToServer", func(t *testing.T) {
		t.Parallel()
		v, f, err := version.Negotiate("v2.3.3", "garbage")
		require.NoError(t, err)
		assert.Equal(t, "2.3.3", v.String())
		assert.False(t, f.SupportsWildcardSSH)
		assert.True(t, f.SupportsProxyLogDirectory)
	})

	t.Run("BothUnparseable", func(t *testing.T) {
		t.Parallel()
		_, _, err := version.Negotiate("garbage", "")
		require.Error(t, err)
	})
}
