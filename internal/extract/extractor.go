package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jchantrell/appbundle/internal/bundle"
	"github.com/jchantrell/appbundle/internal/cache"
)

var (
	// ErrCorruptEntry is returned when an entry's payload does not decode to
	// its declared size.
	ErrCorruptEntry = errors.New("extract: corrupt entry payload")

	// ErrUnsafePath is returned when an entry would land outside the
	// extraction root.
	ErrUnsafePath = errors.New("extract: path escapes extraction root")

	// ErrReservedBundleID is returned for bundle ids that would name one of
	// the cache's own directories.
	ErrReservedBundleID = errors.New("extract: bundle id is reserved")
)

// ProgressCallback is called to report extraction progress
type ProgressCallback func(current int, total int, description string)

// Options configures an Extractor.
type Options struct {
	// Overwrite replaces an existing extraction instead of reusing it.
	Overwrite bool

	// Progress, if set, is called after each file is written.
	Progress ProgressCallback
}

// Result describes a finished extraction.
type Result struct {
	Dir          string
	Reused       bool
	FilesWritten int
	BytesWritten uint64
}

// Extractor writes the files of a container to <base>/<bundle_id>.
type Extractor struct {
	container *Container
	cache     *cache.Cache
	opts      Options
}

// NewExtractor creates a new extractor
func NewExtractor(container *Container, c *cache.Cache, opts Options) *Extractor {
	return &Extractor{
		container: container,
		cache:     c,
		opts:      opts,
	}
}

// Extract materializes every entry. Files are written to a staging directory
// that is renamed into place only after all of them succeed, so a failed
// extraction never leaves a partial bundle directory behind.
func (e *Extractor) Extract(ctx context.Context) (*Result, error) {
	m := e.container.Manifest
	bundleID := m.Header.BundleID()
	// The cache keeps .staging and .downloads beside the bundle dirs
	if strings.HasPrefix(bundleID, ".") {
		return nil, fmt.Errorf("%w: %q", ErrReservedBundleID, bundleID)
	}
	root := e.cache.GetBundleDir(bundleID)

	if !e.opts.Overwrite {
		if ok, err := e.isComplete(root); err != nil {
			return nil, err
		} else if ok {
			slog.Info("Reusing existing extraction", "bundle_id", bundleID, "dir", root)
			return &Result{Dir: root, Reused: true}, nil
		}
	}

	stagingParent := filepath.Dir(e.cache.GetStagingDir(bundleID))
	if err := e.cache.EnsureDir(stagingParent); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	staging, err := os.MkdirTemp(stagingParent, bundleID+"-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	result := &Result{Dir: root}
	total := len(m.Entries)
	for i, entry := range m.Entries {
		select {
		case <-ctx.Done():
			slog.Warn("Extraction canceled", "bundle_id", bundleID, "written", i)
			return nil, ctx.Err()
		default:
		}

		if err := e.writeEntry(staging, entry); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", entry.RelativePath, err)
		}

		result.FilesWritten++
		result.BytesWritten += entry.Size
		if e.opts.Progress != nil {
			e.opts.Progress(i+1, total, entry.RelativePath)
		}
		slog.Debug("Extracted file", "path", entry.RelativePath, "type", entry.Type.String(), "size", entry.Size, "compressed", entry.Compressed())
	}

	if err := e.commit(staging, root); err != nil {
		return nil, err
	}

	return result, nil
}

func (e *Extractor) writeEntry(root string, entry bundle.FileEntry) error {
	target, err := targetPath(root, entry.RelativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	r, err := e.container.Open(entry)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode(entry.Type))
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	if err := copyExactly(f, r, entry.Size); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return nil
}

// commit moves the staged tree to root. If another process finished the same
// bundle first, its extraction is kept.
func (e *Extractor) commit(staging, root string) error {
	if e.opts.Overwrite {
		if err := os.RemoveAll(root); err != nil {
			return fmt.Errorf("removing previous extraction: %w", err)
		}
	}
	if err := os.Rename(staging, root); err != nil {
		if ok, _ := e.isComplete(root); ok {
			slog.Debug("Bundle extracted concurrently, keeping existing directory", "dir", root)
			return nil
		}
		return fmt.Errorf("committing extraction to %s: %w", root, err)
	}
	return nil
}

// isComplete reports whether root already holds every entry at its
// declared size.
func (e *Extractor) isComplete(root string) (bool, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("checking extraction dir: %w", err)
	}

	for _, entry := range e.container.Manifest.Entries {
		target, err := targetPath(root, entry.RelativePath)
		if err != nil {
			return false, err
		}
		info, err := os.Stat(target)
		if err != nil || !info.Mode().IsRegular() || uint64(info.Size()) != entry.Size {
			slog.Debug("Existing extraction is incomplete", "dir", root, "missing", entry.RelativePath)
			return false, nil
		}
	}
	return true, nil
}

// targetPath joins a manifest relative path onto root.
func targetPath(root, relativePath string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(relativePath))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, relativePath)
	}
	return target, nil
}

func fileMode(t bundle.FileType) os.FileMode {
	if t == bundle.FileTypeNativeBinary {
		return 0755
	}
	return 0644
}

// WriteTo copies the decoded content of one entry to w.
func (e *Extractor) WriteTo(w io.Writer, relativePath string) error {
	entry, ok := e.container.Manifest.Entry(relativePath)
	if !ok {
		return &fs.PathError{Op: "open", Path: relativePath, Err: fs.ErrNotExist}
	}
	r, err := e.container.Open(entry)
	if err != nil {
		return err
	}
	defer r.Close()
	return copyExactly(w, r, entry.Size)
}
