package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a catalog lookup matches nothing.
var ErrNotFound = errors.New("catalog: not found")

// EntryRecord is a catalogued file entry
type EntryRecord struct {
	Ordinal        int
	RelativePath   string
	FileType       string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// ListBundles returns every catalogued bundle ordered by id
func (d *Database) ListBundles(ctx context.Context) ([]BundleRecord, error) {
	rows, err := d.Query(ctx, `
		SELECT bundle_id, container, major_version, minor_version, file_count, total_size,
		       COALESCE(extract_dir, ''), extracted_at
		FROM bundles ORDER BY bundle_id`)
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}
	defer rows.Close()

	var out []BundleRecord
	for rows.Next() {
		var r BundleRecord
		var totalSize int64
		var extractedAt sql.NullTime
		if err := rows.Scan(&r.BundleID, &r.Container, &r.Version.Major, &r.Version.Minor,
			&r.FileCount, &totalSize, &r.ExtractDir, &extractedAt); err != nil {
			return nil, fmt.Errorf("scanning bundle row: %w", err)
		}
		r.TotalSize = uint64(totalSize)
		if extractedAt.Valid {
			r.ExtractedAt = extractedAt.Time
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bundles: %w", err)
	}
	return out, nil
}

// ListEntries returns the entries of a bundle in manifest order
func (d *Database) ListEntries(ctx context.Context, bundleID string) ([]EntryRecord, error) {
	rows, err := d.Query(ctx, `
		SELECT ordinal, relative_path, file_type, data_offset, size, compressed_size
		FROM entries WHERE bundle_id = ? ORDER BY ordinal`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("listing entries for %s: %w", bundleID, err)
	}
	defer rows.Close()

	var out []EntryRecord
	for rows.Next() {
		var r EntryRecord
		if err := rows.Scan(&r.Ordinal, &r.RelativePath, &r.FileType, &r.Offset, &r.Size, &r.CompressedSize); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return out, nil
}

// LookupEntry resolves a relative path to its manifest entry
func (d *Database) LookupEntry(ctx context.Context, bundleID, relativePath string) (*EntryRecord, error) {
	var r EntryRecord
	err := d.QueryRow(ctx, `
		SELECT ordinal, relative_path, file_type, data_offset, size, compressed_size
		FROM entries WHERE bundle_id = ? AND relative_path = ?`, bundleID, relativePath).
		Scan(&r.Ordinal, &r.RelativePath, &r.FileType, &r.Offset, &r.Size, &r.CompressedSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in bundle %s", ErrNotFound, relativePath, bundleID)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", relativePath, err)
	}
	return &r, nil
}

// Forget removes a bundle and its entries from the catalog
func (d *Database) Forget(ctx context.Context, bundleID string) error {
	if _, err := d.Exec(ctx, `DELETE FROM entries WHERE bundle_id = ?`, bundleID); err != nil {
		return fmt.Errorf("removing entries of %s: %w", bundleID, err)
	}
	res, err := d.Exec(ctx, `DELETE FROM bundles WHERE bundle_id = ?`, bundleID)
	if err != nil {
		return fmt.Errorf("removing %s: %w", bundleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: bundle %s", ErrNotFound, bundleID)
	}
	return nil
}
