// Package locate finds the manifest inside a single-file bundle.
//
// A bundle host carries a marker: the int64 little-endian manifest offset
// followed by a 32-byte signature. An offset of zero means the host was never
// bundled.
package locate

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Signature is the SHA-256 of ".net core bundle".
var Signature = sha256.Sum256([]byte(".net core bundle"))

// MarkerSize is the encoded size of the offset plus the signature.
const MarkerSize = 8 + len(Signature)

var (
	// ErrNotBundle is returned when no marker is found or its offset is zero.
	ErrNotBundle = errors.New("locate: not a single-file bundle")

	// ErrBadOffset is returned when the marker points outside the file.
	ErrBadOffset = errors.New("locate: manifest offset out of range")
)

const scanChunk = 64 * 1024

// Find scans r for the bundle marker and returns the manifest offset.
func Find(r io.ReaderAt, size int64) (int64, error) {
	sig := Signature[:]
	buf := make([]byte, scanChunk+MarkerSize)

	var off int64
	for off < size {
		n, err := r.ReadAt(buf, off)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("reading at %d: %w", off, err)
		}
		window := buf[:n]

		// A match with no room for the offset field in front of it is
		// skipped; the real marker may follow.
		for start := 0; ; {
			i := bytes.Index(window[start:], sig)
			if i < 0 {
				break
			}
			sigPos := off + int64(start+i)
			if sigPos >= 8 {
				return readOffset(r, sigPos-8, size)
			}
			start += i + 1
		}

		if n < len(buf) {
			break
		}
		// Overlap so a signature split across chunks is still seen.
		off += int64(scanChunk)
	}

	return 0, ErrNotBundle
}

func readOffset(r io.ReaderAt, at, size int64) (int64, error) {
	var b [8]byte
	if _, err := r.ReadAt(b[:], at); err != nil {
		return 0, fmt.Errorf("reading manifest offset: %w", err)
	}

	manifest := int64(binary.LittleEndian.Uint64(b[:]))
	if manifest == 0 {
		return 0, ErrNotBundle
	}
	if manifest < 0 || manifest >= size {
		return 0, fmt.Errorf("%w: %d, file is %d bytes", ErrBadOffset, manifest, size)
	}
	return manifest, nil
}

// AppendMarker appends a marker pointing at manifestOffset to b.
func AppendMarker(b []byte, manifestOffset int64) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(manifestOffset))
	return append(b, Signature[:]...)
}
