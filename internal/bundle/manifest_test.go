package bundle_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/appbundle/internal/bundle"
	"github.com/jchantrell/appbundle/internal/bundle/bundletest"
)

var exampleEntries = []bundle.FileEntry{
	{Offset: 128, Size: 64, CompressedSize: 64, Type: bundle.FileTypeAssembly, RelativePath: "app.dll"},
	{Offset: 192, Size: 32, CompressedSize: 20, Type: bundle.FileTypeConfig, RelativePath: "app.config"},
}

// exampleContainer lays out 128 host bytes, the two payloads, then the
// manifest.
func exampleContainer() ([]byte, int64) {
	container := make([]byte, 212)
	manifest := bundletest.EncodeManifest(bundletest.Header{
		Major: 1, Minor: 2, NumFiles: 2, BundleID: "abcd1234",
	}, exampleEntries)
	return append(container, manifest...), 212
}

func TestOpenExample(t *testing.T) {
	t.Parallel()

	container, manifestOffset := exampleContainer()

	m, err := bundle.Open(container, manifestOffset)
	require.NoError(t, err)

	assert.Equal(t, bundle.Version{Major: 1, Minor: 2}, m.Header.Version())
	assert.Equal(t, uint64(2), m.Header.NumEmbeddedFiles())
	assert.Equal(t, "abcd1234", m.Header.BundleID())
	assert.True(t, m.Header.DepsJSON().IsZero())
	assert.Equal(t, exampleEntries, m.Entries)

	assert.False(t, m.Entries[0].Compressed())
	assert.True(t, m.Entries[1].Compressed())

	i, ok := m.Lookup("app.config")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = m.Lookup("missing.dll")
	assert.False(t, ok)

	e, ok := m.Entry("app.dll")
	require.True(t, ok)
	assert.Equal(t, exampleEntries[0], e)

	assert.Equal(t, uint64(96), m.TotalSize())
}

func TestOpenTruncatedContainer(t *testing.T) {
	t.Parallel()

	container, manifestOffset := exampleContainer()

	_, err := bundle.Open(container[:127], manifestOffset)
	require.ErrorIs(t, err, bundle.ErrTruncatedInput)
}

func TestReadManifestRoundTrip(t *testing.T) {
	t.Parallel()

	h := bundletest.Header{
		Major:         2,
		Minor:         0,
		NumFiles:      3,
		BundleID:      "bündel-東京-ß",
		DepsJSON:      bundle.Location{Offset: 10, Size: 5},
		RuntimeConfig: bundle.Location{Offset: 15, Size: 5},
		Flags:         bundle.FlagNetcoreApp3CompatMode,
	}
	entries := []bundle.FileEntry{
		{Offset: 0, Size: 10, CompressedSize: 10, Type: bundle.FileTypeNativeBinary, RelativePath: "libhost.so"},
		{Offset: 10, Size: 5, CompressedSize: 5, Type: bundle.FileTypeDepsJSON, RelativePath: "app.deps.json"},
		{Offset: 20, Size: 400, CompressedSize: 30, Type: bundle.FileTypeUnknown, RelativePath: "wwwroot/ünïcode/index.html"},
	}
	data := bundletest.EncodeManifest(h, entries)

	m, err := bundle.ReadManifest(data, 50)
	require.NoError(t, err)

	assert.Equal(t, h.BundleID, m.Header.BundleID())
	assert.Equal(t, h.DepsJSON, m.Header.DepsJSON())
	assert.Equal(t, h.RuntimeConfig, m.Header.RuntimeConfig())
	assert.Equal(t, h.Flags, m.Header.Flags())
	assert.Equal(t, entries, m.Entries)
}

func TestReadManifestIdempotent(t *testing.T) {
	t.Parallel()

	container, manifestOffset := exampleContainer()

	a, err := bundle.Open(container, manifestOffset)
	require.NoError(t, err)
	b, err := bundle.Open(container, manifestOffset)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestReadManifestEveryTruncation(t *testing.T) {
	t.Parallel()

	manifests := map[string][]byte{
		"format 1": bundletest.EncodeManifest(bundletest.Header{
			Major: 1, Minor: 2, NumFiles: 2, BundleID: "abcd1234",
		}, exampleEntries),
		"format 2": bundletest.EncodeManifest(bundletest.Header{
			Major: 2, NumFiles: 2, BundleID: "ünïcode",
			DepsJSON: bundle.Location{Offset: 1, Size: 2},
		}, exampleEntries),
	}

	for name, data := range manifests {
		name, data := name, data
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := bundle.ReadManifest(data, 1024)
			require.NoError(t, err)

			for k := 0; k < len(data); k++ {
				_, err := bundle.ReadManifest(data[:k], 1024)
				require.ErrorIs(t, err, bundle.ErrTruncatedInput, "prefix of %d bytes", k)
			}
		})
	}
}

func TestReadManifestOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry bundle.FileEntry
	}{
		{name: "end past container", entry: bundle.FileEntry{Offset: 100, Size: 50, CompressedSize: 50}},
		{name: "offset at end", entry: bundle.FileEntry{Offset: 120, Size: 0, CompressedSize: 0}},
		{name: "offset past end", entry: bundle.FileEntry{Offset: 1 << 40, Size: 1, CompressedSize: 1}},
		{name: "overflow", entry: bundle.FileEntry{Offset: 10, Size: 1, CompressedSize: math.MaxUint64}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.entry.RelativePath = "a.dll"
			data := bundletest.EncodeManifest(bundletest.Header{Major: 1, NumFiles: 1, BundleID: "id"},
				[]bundle.FileEntry{tt.entry})

			_, err := bundle.ReadManifest(data, 120)
			require.ErrorIs(t, err, bundle.ErrOutOfRange)
		})
	}
}

func TestReadManifestHeaderLocationOutOfRange(t *testing.T) {
	t.Parallel()

	data := bundletest.EncodeManifest(bundletest.Header{
		Major: 2, NumFiles: 1, BundleID: "id",
		RuntimeConfig: bundle.Location{Offset: 90, Size: 40},
	}, []bundle.FileEntry{{Offset: 0, Size: 1, CompressedSize: 1, RelativePath: "a"}})

	_, err := bundle.ReadManifest(data, 100)
	require.ErrorIs(t, err, bundle.ErrOutOfRange)
}

func TestReadManifestBadEntries(t *testing.T) {
	t.Parallel()

	ok := bundle.FileEntry{Offset: 0, Size: 4, CompressedSize: 4, Type: bundle.FileTypeAssembly, RelativePath: "a.dll"}
	with := func(f func(*bundle.FileEntry)) []bundle.FileEntry {
		e := ok
		f(&e)
		return []bundle.FileEntry{e}
	}

	tests := []struct {
		name    string
		entries []bundle.FileEntry
		wantErr error
	}{
		{name: "empty path", entries: with(func(e *bundle.FileEntry) { e.RelativePath = "" }), wantErr: bundle.ErrMalformedString},
		{name: "absolute path", entries: with(func(e *bundle.FileEntry) { e.RelativePath = "/etc/passwd" }), wantErr: bundle.ErrMalformedString},
		{name: "parent escape", entries: with(func(e *bundle.FileEntry) { e.RelativePath = "lib/../../x" }), wantErr: bundle.ErrMalformedString},
		{name: "backslash", entries: with(func(e *bundle.FileEntry) { e.RelativePath = `lib\x.dll` }), wantErr: bundle.ErrMalformedString},
		{name: "double slash", entries: with(func(e *bundle.FileEntry) { e.RelativePath = "lib//x.dll" }), wantErr: bundle.ErrMalformedString},
		{name: "invalid utf8", entries: with(func(e *bundle.FileEntry) { e.RelativePath = "a\xffb" }), wantErr: bundle.ErrMalformedString},
		{name: "unknown type", entries: with(func(e *bundle.FileEntry) { e.Type = 200 }), wantErr: bundle.ErrInvalidEntry},
		{name: "duplicate path", entries: append(with(func(*bundle.FileEntry) {}), ok), wantErr: bundle.ErrInvalidEntry},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := bundletest.EncodeManifest(bundletest.Header{
				Major: 1, NumFiles: uint64(len(tt.entries)), BundleID: "id",
			}, tt.entries)

			m, err := bundle.ReadManifest(data, 64)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, m)
		})
	}
}

func TestReadManifestHugeCount(t *testing.T) {
	t.Parallel()

	data := bundletest.EncodeManifest(bundletest.Header{Major: 1, NumFiles: 1 << 62, BundleID: "id"}, exampleEntries)

	_, err := bundle.ReadManifest(data, 1024)
	require.ErrorIs(t, err, bundle.ErrTruncatedInput)
}

func TestReadManifestOptions(t *testing.T) {
	t.Parallel()

	data := bundletest.EncodeManifest(bundletest.Header{Major: 1, Minor: 2, NumFiles: 2, BundleID: "abcd1234"}, exampleEntries)

	_, err := bundle.ReadManifest(data, 1024, bundle.WithReaderVersion(bundle.Version{Major: 1, Minor: 1}))
	require.ErrorIs(t, err, bundle.ErrIncompatibleVersion)

	// A reader cannot be raised past the compiled-in version.
	v3 := bundletest.EncodeManifest(bundletest.Header{Major: 3, NumFiles: 2, BundleID: "abcd1234"}, exampleEntries)
	_, err = bundle.ReadManifest(v3, 1024, bundle.WithReaderVersion(bundle.Version{Major: 9}))
	require.ErrorIs(t, err, bundle.ErrIncompatibleVersion)

	_, err = bundle.ReadManifest(data, 1024, bundle.WithMaxPathLength(7))
	require.ErrorIs(t, err, bundle.ErrMalformedString)
}

func TestFormatError(t *testing.T) {
	t.Parallel()

	data := bundletest.EncodeManifest(bundletest.Header{Major: 1, NumFiles: 2, BundleID: "abcd1234"}, exampleEntries)

	_, err := bundle.ReadManifest(data, 200)

	var fe *bundle.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "validate entry 1 (app.config)", fe.Op)
	assert.Positive(t, fe.Offset)
	assert.ErrorIs(t, err, bundle.ErrOutOfRange)
	assert.Contains(t, err.Error(), "manifest offset")
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	assert.Empty(t, bundle.Describe(nil))
	assert.Contains(t, bundle.Describe(bundle.ErrIncompatibleVersion), "newer tool")
	assert.Contains(t, bundle.Describe(&bundle.FormatError{Err: bundle.ErrTruncatedInput}), "truncated")
	assert.NotEqual(t,
		bundle.Describe(bundle.ErrIncompatibleVersion),
		bundle.Describe(bundle.ErrMalformedString))
}

func TestFileTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "assembly", bundle.FileTypeAssembly.String())
	assert.Equal(t, "config", bundle.FileTypeConfig.String())
	assert.Equal(t, "FileType(42)", bundle.FileType(42).String())
	assert.False(t, bundle.FileType(42).Valid())
}
