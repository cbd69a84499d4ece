package bundle

import (
	"fmt"
	"strconv"
	"strings"
)

// Newest manifest format this reader understands.
const (
	ReaderMajor = 2
	ReaderMinor = 0
)

// CurrentVersion is the reader version compiled into this binary.
var CurrentVersion = Version{Major: ReaderMajor, Minor: ReaderMinor}

// Version is a manifest format revision.
type Version struct {
	Major uint32
	Minor uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Accepts reports whether a reader at version v can parse a container written
// at version writer. Older majors are always accepted. Within the same major,
// the writer's minor must not exceed the reader's.
func (v Version) Accepts(writer Version) bool {
	return writer.Major < v.Major ||
		(writer.Major == v.Major && writer.Minor <= v.Minor)
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	}
	return 0
}

// ParseVersion parses a "major.minor" string such as "1.2".
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("version string cannot be empty")
	}

	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version format: %s (expected major.minor)", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Version{}, fmt.Errorf("invalid major version: %s", parts[0])
	}

	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Version{}, fmt.Errorf("invalid minor version: %s", parts[1])
	}

	return Version{Major: uint32(major), Minor: uint32(minor)}, nil
}
