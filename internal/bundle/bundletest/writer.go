// Package bundletest builds manifests and containers for tests. It is the
// reference writer for the format read by package bundle.
package bundletest

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/jchantrell/appbundle/internal/bundle"
	"github.com/jchantrell/appbundle/internal/locate"
)

// Header holds the fields written ahead of the file entries.
type Header struct {
	Major, Minor  uint32
	NumFiles      uint64 // written as-is; set explicitly to test mismatches
	BundleID      string
	DepsJSON      bundle.Location
	RuntimeConfig bundle.Location
	Flags         uint64
}

// EncodeManifest writes h followed by entries in manifest byte layout.
func EncodeManifest(h Header, entries []bundle.FileEntry) []byte {
	var b []byte
	b = binary.LittleEndian.AppendUint32(b, h.Major)
	b = binary.LittleEndian.AppendUint32(b, h.Minor)
	b = binary.LittleEndian.AppendUint64(b, h.NumFiles)
	b = appendString(b, h.BundleID)
	if h.Major >= 2 {
		b = binary.LittleEndian.AppendUint64(b, uint64(h.DepsJSON.Offset))
		b = binary.LittleEndian.AppendUint64(b, uint64(h.DepsJSON.Size))
		b = binary.LittleEndian.AppendUint64(b, uint64(h.RuntimeConfig.Offset))
		b = binary.LittleEndian.AppendUint64(b, uint64(h.RuntimeConfig.Size))
		b = binary.LittleEndian.AppendUint64(b, h.Flags)
	}
	for _, e := range entries {
		b = AppendEntry(b, e)
	}
	return b
}

// AppendEntry appends one encoded file entry to b.
func AppendEntry(b []byte, e bundle.FileEntry) []byte {
	b = binary.LittleEndian.AppendUint64(b, e.Offset)
	b = binary.LittleEndian.AppendUint64(b, e.Size)
	b = binary.LittleEndian.AppendUint64(b, e.CompressedSize)
	b = append(b, byte(e.Type))
	return appendString(b, e.RelativePath)
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// File is one payload to embed in a container.
type File struct {
	Path     string
	Type     bundle.FileType
	Content  []byte
	Compress bool
}

// Container is the result of Build.
type Container struct {
	Bytes          []byte
	ManifestOffset int64
	Entries        []bundle.FileEntry
}

// Build lays out a container the way a bundler does: the host bytes
// (with a locator marker appended), every payload, then the manifest.
func Build(t testing.TB, host []byte, h Header, files []File) Container {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(host)
	markerAt := buf.Len()
	buf.Write(make([]byte, locate.MarkerSize))

	entries := make([]bundle.FileEntry, 0, len(files))
	for _, f := range files {
		stored := f.Content
		if f.Compress {
			stored = Deflate(t, f.Content)
		}
		entries = append(entries, bundle.FileEntry{
			Offset:         uint64(buf.Len()),
			Size:           uint64(len(f.Content)),
			CompressedSize: uint64(len(stored)),
			Type:           f.Type,
			RelativePath:   f.Path,
		})
		buf.Write(stored)
	}

	if h.NumFiles == 0 {
		h.NumFiles = uint64(len(files))
	}
	manifestOffset := int64(buf.Len())
	buf.Write(EncodeManifest(h, entries))

	out := buf.Bytes()
	copy(out[markerAt:], locate.AppendMarker(nil, manifestOffset))

	return Container{Bytes: out, ManifestOffset: manifestOffset, Entries: entries}
}

// Deflate compresses b with raw deflate.
func Deflate(t testing.TB, b []byte) []byte {
	t.Helper()

	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.BestCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter() error = %v", err)
	}
	if _, err := w.Write(b); err != nil {
		t.Fatalf("flate Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate Close() error = %v", err)
	}
	return out.Bytes()
}
