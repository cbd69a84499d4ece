package bundle

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// FixedHeaderSize is the encoded size of FixedHeader:
// major (uint32) + minor (uint32) + file count (uint64), little-endian.
const FixedHeaderSize = 16

// Header flags, present from format 2.0.
const (
	FlagNetcoreApp3CompatMode uint64 = 1 << 0
)

// FixedHeader is the constant-size leading block of the manifest.
type FixedHeader struct {
	MajorVersion     uint32
	MinorVersion     uint32
	NumEmbeddedFiles uint64
}

// Version returns the writer's format version.
func (f FixedHeader) Version() Version {
	return Version{Major: f.MajorVersion, Minor: f.MinorVersion}
}

// Validate checks the fixed block against a reader version. An empty bundle is
// rejected before the version is looked at.
func (f FixedHeader) Validate(reader Version) error {
	if f.NumEmbeddedFiles == 0 {
		return fmt.Errorf("%w: bundle declares no embedded files", ErrInvalidHeader)
	}
	if !reader.Accepts(f.Version()) {
		return fmt.Errorf("%w: bundle format %s, reader supports up to %s", ErrIncompatibleVersion, f.Version(), reader)
	}
	return nil
}

func decodeFixedHeader(b []byte) FixedHeader {
	return FixedHeader{
		MajorVersion:     binary.LittleEndian.Uint32(b[0:]),
		MinorVersion:     binary.LittleEndian.Uint32(b[4:]),
		NumEmbeddedFiles: binary.LittleEndian.Uint64(b[8:]),
	}
}

// Location is an (offset, size) pair into the container. A zero size means
// the file is absent.
type Location struct {
	Offset int64
	Size   int64
}

// IsZero reports whether the location is absent.
func (l Location) IsZero() bool {
	return l.Size == 0
}

// Header is the validated manifest header. It is immutable once read.
type Header struct {
	fixed             FixedHeader
	bundleID          string
	depsJSON          Location
	runtimeConfigJSON Location
	flags             uint64
}

func (h *Header) Version() Version         { return h.fixed.Version() }
func (h *Header) NumEmbeddedFiles() uint64 { return h.fixed.NumEmbeddedFiles }
func (h *Header) BundleID() string         { return h.bundleID }
func (h *Header) DepsJSON() Location       { return h.depsJSON }
func (h *Header) RuntimeConfig() Location  { return h.runtimeConfigJSON }
func (h *Header) Flags() uint64            { return h.flags }

// ReadHeader consumes the fixed block, validates it against reader, then
// consumes the bundle identifier. From format 2.0 the header also carries the
// deps.json and runtimeconfig.json locations and a flags word.
func ReadHeader(c *Cursor, reader Version) (*Header, error) {
	start := c.Pos()
	b, err := c.ReadFixed(FixedHeaderSize)
	if err != nil {
		return nil, formatErr("read fixed header", start, err)
	}

	fixed := decodeFixedHeader(b)
	if err := fixed.Validate(reader); err != nil {
		slog.Error("Failure processing application bundle.")
		slog.Error(Describe(err),
			"bundle_version", fixed.Version().String(),
			"reader_version", reader.String(),
			"num_embedded_files", fixed.NumEmbeddedFiles)
		return nil, formatErr("validate header", start, err)
	}

	h := &Header{fixed: fixed}

	// bundle_id is a component of the extraction path
	idPos := c.Pos()
	if h.bundleID, err = c.ReadPathString(); err != nil {
		return nil, formatErr("read bundle id", idPos, err)
	}
	if h.bundleID == "" {
		return nil, formatErr("read bundle id", idPos, fmt.Errorf("%w: empty bundle id", ErrMalformedString))
	}
	if err := validatePathComponent(h.bundleID); err != nil {
		return nil, formatErr("read bundle id", idPos, err)
	}

	if fixed.MajorVersion < 2 {
		return h, nil
	}

	extPos := c.Pos()
	if h.depsJSON, err = readLocation(c); err != nil {
		return nil, formatErr("read deps.json location", extPos, err)
	}
	if h.runtimeConfigJSON, err = readLocation(c); err != nil {
		return nil, formatErr("read runtimeconfig.json location", extPos, err)
	}
	if h.flags, err = c.ReadUint64(); err != nil {
		return nil, formatErr("read header flags", extPos, err)
	}

	return h, nil
}

func readLocation(c *Cursor) (Location, error) {
	off, err := c.ReadUint64()
	if err != nil {
		return Location{}, err
	}
	size, err := c.ReadUint64()
	if err != nil {
		return Location{}, err
	}
	return Location{Offset: int64(off), Size: int64(size)}, nil
}

// checkLocation range-checks a header location against the container length.
func checkLocation(l Location, containerLength int64) error {
	if l.IsZero() {
		return nil
	}
	if l.Offset < 0 || l.Size < 0 {
		return fmt.Errorf("%w: offset %d size %d", ErrOutOfRange, l.Offset, l.Size)
	}
	return checkRange(uint64(l.Offset), uint64(l.Size), containerLength)
}
