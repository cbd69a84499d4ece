package bundle

import (
	"fmt"
	"math/bits"
	"strings"
)

// FileType tells the extractor how to handle an embedded file.
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeAssembly
	FileTypeNativeBinary
	FileTypeDepsJSON
	FileTypeRuntimeConfigJSON
	FileTypeSymbols
	FileTypeConfig

	fileTypeLast = FileTypeConfig
)

var fileTypeNames = [...]string{
	FileTypeUnknown:           "other",
	FileTypeAssembly:          "assembly",
	FileTypeNativeBinary:      "native",
	FileTypeDepsJSON:          "deps.json",
	FileTypeRuntimeConfigJSON: "runtimeconfig.json",
	FileTypeSymbols:           "symbols",
	FileTypeConfig:            "config",
}

func (t FileType) String() string {
	if t > fileTypeLast {
		return fmt.Sprintf("FileType(%d)", uint8(t))
	}
	return fileTypeNames[t]
}

// Valid reports whether t is a type this reader knows.
func (t FileType) Valid() bool {
	return t <= fileTypeLast
}

// minEntrySize is the encoded size of a file entry with an empty path:
// offset, size, compressed size (uint64 each), type (uint8), path length (uint32).
const minEntrySize = 8 + 8 + 8 + 1 + 4

// FileEntry describes one embedded file. Offsets and sizes refer to the
// container, not to the manifest.
type FileEntry struct {
	Offset         uint64
	Size           uint64
	CompressedSize uint64
	Type           FileType
	RelativePath   string
}

// Compressed reports whether the stored bytes must be inflated.
func (e FileEntry) Compressed() bool {
	return e.CompressedSize != e.Size
}

// ReadEntries reads exactly count file entries from c. Each entry's byte range
// is checked against containerLength, the size of the whole container file.
func ReadEntries(c *Cursor, count uint64, containerLength int64) ([]FileEntry, error) {
	// Refuse counts the remaining bytes cannot possibly hold before allocating.
	if count > uint64(c.Remaining())/minEntrySize {
		return nil, formatErr("read file entries", c.Pos(),
			fmt.Errorf("%w: %d entries need at least %d bytes, %d remain",
				ErrTruncatedInput, count, satMul(count, minEntrySize), c.Remaining()))
	}

	entries := make([]FileEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		pos := c.Pos()
		e, err := readEntry(c)
		if err != nil {
			return nil, formatErr(fmt.Sprintf("read entry %d", i), pos, err)
		}
		if err := e.validate(containerLength); err != nil {
			return nil, formatErr(fmt.Sprintf("validate entry %d (%s)", i, e.RelativePath), pos, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func readEntry(c *Cursor) (FileEntry, error) {
	var e FileEntry
	var err error

	if e.Offset, err = c.ReadUint64(); err != nil {
		return e, err
	}
	if e.Size, err = c.ReadUint64(); err != nil {
		return e, err
	}
	if e.CompressedSize, err = c.ReadUint64(); err != nil {
		return e, err
	}
	t, err := c.ReadUint8()
	if err != nil {
		return e, err
	}
	e.Type = FileType(t)
	if e.RelativePath, err = c.ReadPathString(); err != nil {
		return e, err
	}

	return e, nil
}

func (e FileEntry) validate(containerLength int64) error {
	if err := checkRange(e.Offset, e.CompressedSize, containerLength); err != nil {
		return err
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown file type %d", ErrInvalidEntry, uint8(e.Type))
	}
	return validateRelativePath(e.RelativePath)
}

// checkRange verifies that [offset, offset+size) lies inside a container of
// the given length.
func checkRange(offset, size uint64, containerLength int64) error {
	if containerLength <= 0 || offset >= uint64(containerLength) {
		return fmt.Errorf("%w: offset %d, container is %d bytes", ErrOutOfRange, offset, containerLength)
	}
	end, carry := bits.Add64(offset, size, 0)
	if carry != 0 || end > uint64(containerLength) {
		return fmt.Errorf("%w: range [%d, +%d) exceeds container of %d bytes", ErrOutOfRange, offset, size, containerLength)
	}
	return nil
}

// validateRelativePath accepts only forward-slash paths that stay inside the
// extraction root.
func validateRelativePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty relative path", ErrMalformedString)
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrMalformedString, p)
	}
	if strings.ContainsRune(p, '\\') {
		return fmt.Errorf("%w: backslash in path %q", ErrMalformedString, p)
	}
	for _, part := range strings.Split(p, "/") {
		if err := validatePathComponent(part); err != nil {
			return fmt.Errorf("%w (in %q)", err, p)
		}
	}
	return nil
}

func validatePathComponent(part string) error {
	switch {
	case part == "", part == ".", part == "..":
		return fmt.Errorf("%w: invalid path component %q", ErrMalformedString, part)
	case strings.ContainsAny(part, "/\\"):
		return fmt.Errorf("%w: separator in path component %q", ErrMalformedString, part)
	}
	return nil
}

func satMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}
