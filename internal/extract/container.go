package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/flate"

	"github.com/jchantrell/appbundle/internal/bundle"
	"github.com/jchantrell/appbundle/internal/locate"
)

// Container is an opened single-file bundle: its bytes and parsed manifest.
type Container struct {
	Path           string
	ManifestOffset int64
	Manifest       *bundle.Manifest

	data    []byte
	release func() error
}

// OpenContainer maps the file at path, locates its manifest and parses it.
func OpenContainer(path string, opts ...bundle.Option) (*Container, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening container %s: %w", path, err)
	}

	c, err := openBytes(path, data, opts...)
	if err != nil {
		release()
		return nil, err
	}
	c.release = release
	return c, nil
}

// OpenBytes parses a container already held in memory.
func OpenBytes(data []byte, opts ...bundle.Option) (*Container, error) {
	return openBytes("", data, opts...)
}

func openBytes(path string, data []byte, opts ...bundle.Option) (*Container, error) {
	offset, err := locate.Find(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("locating manifest: %w", err)
	}

	manifest, err := bundle.Open(data, offset, opts...)
	if err != nil {
		slog.Debug("Manifest rejected", "path", path, "manifest_offset", offset, "error", err)
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return &Container{
		Path:           path,
		ManifestOffset: offset,
		Manifest:       manifest,
		data:           data,
	}, nil
}

// Size returns the container length in bytes.
func (c *Container) Size() int64 {
	return int64(len(c.data))
}

// Close releases the mapping. Entry readers must not be used afterwards.
func (c *Container) Close() error {
	if c.release == nil {
		return nil
	}
	err := c.release()
	c.release = nil
	c.data = nil
	return err
}

// Open returns a reader over the decoded content of entry e.
func (c *Container) Open(e bundle.FileEntry) (io.ReadCloser, error) {
	// Ranges were checked against the container when the manifest was read.
	section := io.NewSectionReader(bytes.NewReader(c.data), int64(e.Offset), int64(e.CompressedSize))
	if !e.Compressed() {
		return io.NopCloser(section), nil
	}
	return flate.NewReader(section), nil
}

// ReadFile returns the decoded content of the entry at relativePath.
func (c *Container) ReadFile(relativePath string) ([]byte, error) {
	e, ok := c.Manifest.Entry(relativePath)
	if !ok {
		return nil, fmt.Errorf("file not found in bundle: %s", relativePath)
	}

	r, err := c.Open(e)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := readExactly(r, e.Size)
	if err != nil {
		return nil, fmt.Errorf("reading %s (offset=%d, size=%d): %w", relativePath, e.Offset, e.Size, err)
	}
	return data, nil
}

func readExactly(r io.Reader, size uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := copyExactly(&buf, r, size); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// copyExactly copies r to w and fails unless r yields exactly size bytes.
func copyExactly(w io.Writer, r io.Reader, size uint64) error {
	n, err := io.Copy(w, io.LimitReader(r, int64(size)+1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if uint64(n) != size {
		return fmt.Errorf("%w: decoded %d bytes, manifest says %d", ErrCorruptEntry, n, size)
	}
	return nil
}
