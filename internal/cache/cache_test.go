package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseDirPrecedence(t *testing.T) {
	t.Setenv(EnvExtractBaseDir, "/from/env")

	assert.Equal(t, "/explicit", CacheManager("/explicit").GetBaseDir())
	assert.Equal(t, "/from/env", CacheManager("").GetBaseDir())

	t.Setenv(EnvExtractBaseDir, "")
	assert.Equal(t, filepath.Join(".appbundle", "extract"), trimHome(t, CacheManager("").GetBaseDir()))
}

func trimHome(t *testing.T, p string) string {
	t.Helper()
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(p)
	}
	rel, err := filepath.Rel(home, p)
	require.NoError(t, err)
	return rel
}

func TestPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := CacheManager(dir)

	assert.Equal(t, filepath.Join(dir, "abcd1234"), c.GetBundleDir("abcd1234"))
	assert.Equal(t, filepath.Join(dir, ".staging", "abcd1234"), c.GetStagingDir("abcd1234"))
	assert.Equal(t, filepath.Join(dir, ".downloads", "my_app.bin"), c.GetDownloadPath("my app.bin"))

	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, c.EnsureDir(sub))
	assert.True(t, c.FileExists(sub))

	f := filepath.Join(sub, "f")
	require.NoError(t, os.WriteFile(f, []byte("12345"), 0644))
	assert.Equal(t, int64(5), c.GetFileSize(f))
	assert.Equal(t, int64(0), c.GetFileSize(filepath.Join(dir, "missing")))
}
