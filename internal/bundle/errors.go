package bundle

import (
	"errors"
	"fmt"
)

// Sentinel errors for manifest parsing. Every parse failure wraps exactly one
// of these, so callers branch with errors.Is.
var (
	// ErrTruncatedInput is returned when fewer bytes remain than a field or
	// record requires.
	ErrTruncatedInput = errors.New("bundle: truncated input")

	// ErrIncompatibleVersion is returned when the header is well formed but was
	// written by a newer format than this reader understands.
	ErrIncompatibleVersion = errors.New("bundle: incompatible format version")

	// ErrMalformedString is returned when a length-prefixed string is not valid
	// UTF-8, is too long, or is not an acceptable relative path.
	ErrMalformedString = errors.New("bundle: malformed string")

	// ErrOutOfRange is returned when an offset/size pair falls outside the
	// container.
	ErrOutOfRange = errors.New("bundle: offset out of range")

	// ErrInvalidHeader is returned when the fixed header fails a sanity check
	// unrelated to its version.
	ErrInvalidHeader = errors.New("bundle: invalid header")

	// ErrInvalidEntry is returned when a file entry is structurally readable but
	// carries an unknown type or duplicates another entry's path.
	ErrInvalidEntry = errors.New("bundle: invalid file entry")
)

// FormatError records where in the manifest a parse failure happened.
type FormatError struct {
	Op     string // e.g. "read header", "read entry 3"
	Offset int    // cursor position in the manifest when the failure was detected
	Err    error  // one of the sentinels above, possibly wrapped with detail
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s at manifest offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErr(op string, offset int, err error) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	return &FormatError{Op: op, Offset: offset, Err: err}
}

// Describe returns the message a user should see for a manifest error. It
// separates "upgrade your runtime" from "the bundle is corrupt".
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncompatibleVersion):
		return "Bundle header version compatibility check failed. This runtime cannot open a bundle built by a newer tool."
	case errors.Is(err, ErrInvalidHeader):
		return "Bundle header is invalid."
	case errors.Is(err, ErrTruncatedInput):
		return "Bundle is truncated or was not completely written."
	case errors.Is(err, ErrOutOfRange):
		return "Bundle manifest references data outside the file."
	case errors.Is(err, ErrMalformedString), errors.Is(err, ErrInvalidEntry):
		return "Bundle manifest is corrupt."
	default:
		return "Failure processing application bundle."
	}
}
