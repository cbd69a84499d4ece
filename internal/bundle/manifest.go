package bundle

import (
	"fmt"
	"log/slog"
)

// Manifest is a parsed bundle header and its file entries, in manifest order.
type Manifest struct {
	Header  *Header
	Entries []FileEntry

	byPath map[string]int
}

// Option configures manifest parsing.
type Option func(*options)

type options struct {
	reader        Version
	maxPathLength int
}

// WithReaderVersion parses as a reader of version v. Versions newer than
// CurrentVersion are clamped to it: a binary cannot claim to understand
// formats it was not built for.
func WithReaderVersion(v Version) Option {
	return func(o *options) {
		if v.Compare(CurrentVersion) > 0 {
			v = CurrentVersion
		}
		o.reader = v
	}
}

// WithMaxPathLength caps the byte length of the bundle id and relative paths.
func WithMaxPathLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPathLength = n
		}
	}
}

// ReadManifest parses the manifest bytes. containerLength is the size of the
// whole container, against which every payload range is checked.
func ReadManifest(data []byte, containerLength int64, opts ...Option) (*Manifest, error) {
	o := options{reader: CurrentVersion, maxPathLength: DefaultMaxPathLength}
	for _, opt := range opts {
		opt(&o)
	}

	c := NewCursor(data)
	c.maxPathLength = o.maxPathLength

	header, err := ReadHeader(c, o.reader)
	if err != nil {
		return nil, err
	}

	entries, err := ReadEntries(c, header.NumEmbeddedFiles(), containerLength)
	if err != nil {
		return nil, err
	}

	if err := checkLocation(header.DepsJSON(), containerLength); err != nil {
		return nil, formatErr("validate deps.json location", FixedHeaderSize, err)
	}
	if err := checkLocation(header.RuntimeConfig(), containerLength); err != nil {
		return nil, formatErr("validate runtimeconfig.json location", FixedHeaderSize, err)
	}

	byPath := make(map[string]int, len(entries))
	for i, e := range entries {
		if prev, dup := byPath[e.RelativePath]; dup {
			return nil, formatErr("index file entries", c.Pos(),
				fmt.Errorf("%w: %q appears at entries %d and %d", ErrInvalidEntry, e.RelativePath, prev, i))
		}
		byPath[e.RelativePath] = i
	}

	slog.Debug("Bundle manifest loaded",
		"bundle_id", header.BundleID(),
		"version", header.Version().String(),
		"file_count", len(entries),
		"manifest_bytes", c.Pos())

	return &Manifest{Header: header, Entries: entries, byPath: byPath}, nil
}

// Open parses the manifest that starts at manifestOffset inside container.
func Open(container []byte, manifestOffset int64, opts ...Option) (*Manifest, error) {
	if manifestOffset < 0 || manifestOffset >= int64(len(container)) {
		return nil, &FormatError{
			Op:     "locate manifest",
			Offset: 0,
			Err: fmt.Errorf("%w: manifest offset %d, container is %d bytes",
				ErrTruncatedInput, manifestOffset, len(container)),
		}
	}
	return ReadManifest(container[manifestOffset:], int64(len(container)), opts...)
}

// Lookup returns the ordinal of the entry with the given relative path.
func (m *Manifest) Lookup(relativePath string) (int, bool) {
	i, ok := m.byPath[relativePath]
	return i, ok
}

// Entry returns the entry with the given relative path.
func (m *Manifest) Entry(relativePath string) (FileEntry, bool) {
	i, ok := m.byPath[relativePath]
	if !ok {
		return FileEntry{}, false
	}
	return m.Entries[i], true
}

// TotalSize returns the sum of the uncompressed entry sizes.
func (m *Manifest) TotalSize() uint64 {
	var total uint64
	for _, e := range m.Entries {
		total += e.Size
	}
	return total
}
