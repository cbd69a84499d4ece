package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/appbundle/internal/bundle"
	"github.com/jchantrell/appbundle/internal/bundle/bundletest"
)

// Commands share package-level flag state, so these tests run sequentially.

type testEnv struct {
	container  string
	extractDir string
	catalog    string
}

func newTestEnv(t *testing.T, h bundletest.Header) testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	built := bundletest.Build(t, []byte("host-executable"), h, []bundletest.File{
		{Path: "app.dll", Type: bundle.FileTypeAssembly, Content: []byte("assembly")},
		{Path: "app.deps.json", Type: bundle.FileTypeDepsJSON, Content: []byte(strings.Repeat(`{"deps":1}`, 40)), Compress: true},
	})

	dir := t.TempDir()
	env := testEnv{
		container:  filepath.Join(dir, "app"),
		extractDir: filepath.Join(dir, "extract"),
		catalog:    filepath.Join(dir, "catalog.db"),
	}
	require.NoError(t, os.WriteFile(env.container, built.Bytes, 0755))
	return env
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{
		"--extract-dir", e.extractDir,
		"--catalog", e.catalog,
		"--no-progress",
		"--log-level", "error",
	}, args...))

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestInspect(t *testing.T) {
	env := newTestEnv(t, bundletest.Header{Major: 1, Minor: 0, BundleID: "inspect-me"})

	out, err := env.run(t, "inspect", env.container)
	require.NoError(t, err)
	assert.Contains(t, out, "inspect-me")
	assert.Contains(t, out, "1.0")
	assert.Contains(t, out, "app.dll")
	assert.Contains(t, out, "deps.json")

	out, err = env.run(t, "inspect", "--json", env.container)
	require.NoError(t, err)
	var view manifestView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "inspect-me", view.BundleID)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "app.deps.json", view.Entries[1].Path)
	assert.NotEqual(t, view.Entries[1].Size, view.Entries[1].CompressedSize)

	out, err = env.run(t, "inspect", "--cat", "app.deps.json", env.container)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat(`{"deps":1}`, 40), out)
}

func TestInspectIncompatible(t *testing.T) {
	env := newTestEnv(t, bundletest.Header{Major: 3, Minor: 0, BundleID: "future"})

	_, err := env.run(t, "inspect", env.container)
	require.ErrorIs(t, err, bundle.ErrIncompatibleVersion)
	assert.Contains(t, err.Error(), "compatibility check failed")
}

func TestReaderVersionFlag(t *testing.T) {
	env := newTestEnv(t, bundletest.Header{Major: 2, Minor: 0, BundleID: "v2"})

	_, err := env.run(t, "inspect", env.container)
	require.NoError(t, err)

	_, err = env.run(t, "--reader-version", "1.0", "inspect", env.container)
	require.ErrorIs(t, err, bundle.ErrIncompatibleVersion)

	_, err = env.run(t, "--reader-version", "9.0", "inspect", env.container)
	require.Error(t, err)
}

func TestExtractAndCatalog(t *testing.T) {
	env := newTestEnv(t, bundletest.Header{Major: 2, Minor: 0, BundleID: "extract-me"})
	bundleDir := filepath.Join(env.extractDir, "extract-me")

	out, err := env.run(t, "extract", env.container)
	require.NoError(t, err)
	assert.Contains(t, out, "Extracted to "+bundleDir)

	got, err := os.ReadFile(filepath.Join(bundleDir, "app.dll"))
	require.NoError(t, err)
	assert.Equal(t, "assembly", string(got))

	out, err = env.run(t, "extract", env.container)
	require.NoError(t, err)
	assert.Contains(t, out, "Reused existing extraction")

	out, err = env.run(t, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "extract-me")
	assert.Contains(t, out, bundleDir)

	out, err = env.run(t, "catalog", "show", "extract-me")
	require.NoError(t, err)
	assert.Contains(t, out, "app.deps.json")

	out, err = env.run(t, "catalog", "lookup", "extract-me", "app.deps.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Compressed:")

	out, err = env.run(t, "catalog", "query", "SELECT relative_path FROM entries ORDER BY ordinal")
	require.NoError(t, err)
	assert.Equal(t, "relative_path\n-------------\napp.dll\napp.deps.json\n", out)

	_, err = env.run(t, "catalog", "query", "DELETE FROM entries")
	require.Error(t, err)

	_, err = env.run(t, "catalog", "forget", "--purge", "extract-me")
	require.NoError(t, err)
	_, err = os.Stat(bundleDir)
	assert.True(t, os.IsNotExist(err))

	_, err = env.run(t, "catalog", "show", "extract-me")
	require.Error(t, err)
}

func TestCatalogDisabled(t *testing.T) {
	env := newTestEnv(t, bundletest.Header{Major: 1, BundleID: "no-catalog"})
	env.catalog = ""

	_, err := env.run(t, "extract", env.container)
	require.NoError(t, err)

	_, err = env.run(t, "catalog")
	require.ErrorContains(t, err, "catalog is disabled")
}

func TestLogLevelFlagOverridesEnv(t *testing.T) {
	env := newTestEnv(t, bundletest.Header{Major: 1, BundleID: "env-level"})
	t.Setenv("APPBUNDLE_LOG_LEVEL", "bogus")

	// run always passes --log-level
	_, err := env.run(t, "inspect", env.container)
	require.NoError(t, err)
}

func TestDownloadName(t *testing.T) {
	assert.Equal(t, "app", downloadName("https://example.com/releases/app"))
	assert.Equal(t, "container", downloadName("https://example.com/"))
}
