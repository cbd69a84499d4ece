package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// DefaultMaxPathLength caps length-prefixed strings. Longer strings are
// rejected before any bytes are interpreted.
const DefaultMaxPathLength = 4096

// Cursor is a sequential, bounds-checked reader over the manifest bytes.
// The position only moves forward. A Cursor has a single owner; it is passed
// by pointer from one read step to the next and is not safe for concurrent use.
type Cursor struct {
	data          []byte
	pos           int
	maxPathLength int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data, maxPathLength: DefaultMaxPathLength}
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// ReadFixed returns the next n bytes and advances past them. The returned
// slice aliases the manifest and has its capacity capped, so appending to it
// cannot overwrite later manifest bytes.
func (c *Cursor) ReadFixed(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes, %d remain", ErrTruncatedInput, n, c.Remaining())
	}
	b := c.data[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) ReadUint8() (uint8, error) {
	b, err := c.ReadFixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.ReadFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadUint64() (uint64, error) {
	b, err := c.ReadFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadPathString reads a uint32 little-endian byte count followed by that many
// bytes of UTF-8 text.
//
// The prefix is checked against the real remaining length before it is
// checked against the length cap, so a short buffer always reports
// ErrTruncatedInput.
func (c *Cursor) ReadPathString() (string, error) {
	n, err := c.ReadUint32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(c.Remaining()) {
		return "", fmt.Errorf("%w: string of %d bytes, %d remain", ErrTruncatedInput, n, c.Remaining())
	}
	if int(n) > c.maxPathLength {
		return "", fmt.Errorf("%w: length %d exceeds limit %d", ErrMalformedString, n, c.maxPathLength)
	}

	b, err := c.ReadFixed(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrMalformedString)
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return "", fmt.Errorf("%w: embedded NUL", ErrMalformedString)
	}
	return string(b), nil
}
