package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jchantrell/appbundle/internal/bundle"
)

// BundleRecord describes one opened container
type BundleRecord struct {
	BundleID    string
	Container   string
	Version     bundle.Version
	FileCount   int
	TotalSize   uint64
	ExtractDir  string
	ExtractedAt time.Time
}

// RecordManifest stores a manifest, replacing any earlier record of the same
// bundle id. Entries keep their manifest ordinal.
func (d *Database) RecordManifest(ctx context.Context, container string, m *bundle.Manifest) error {
	if m == nil || m.Header == nil {
		return fmt.Errorf("manifest cannot be nil")
	}

	bundleID := m.Header.BundleID()
	version := m.Header.Version()

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE bundle_id = ?`, bundleID); err != nil {
		return fmt.Errorf("clearing entries for %s: %w", bundleID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bundles (bundle_id, container, major_version, minor_version, file_count, total_size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bundle_id) DO UPDATE SET
			container = excluded.container,
			major_version = excluded.major_version,
			minor_version = excluded.minor_version,
			file_count = excluded.file_count,
			total_size = excluded.total_size`,
		bundleID, container, version.Major, version.Minor, len(m.Entries), int64(m.TotalSize()))
	if err != nil {
		return fmt.Errorf("inserting bundle %s: %w", bundleID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (bundle_id, ordinal, relative_path, file_type, data_offset, size, compressed_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range m.Entries {
		if _, err := stmt.ExecContext(ctx, bundleID, i, e.RelativePath, e.Type.String(),
			int64(e.Offset), int64(e.Size), int64(e.CompressedSize)); err != nil {
			return fmt.Errorf("inserting entry %d (%s): %w", i, e.RelativePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("Recorded manifest in catalog", "bundle_id", bundleID, "entries", len(m.Entries))
	return nil
}

// MarkExtracted records where and when a bundle was extracted
func (d *Database) MarkExtracted(ctx context.Context, bundleID, dir string, at time.Time) error {
	res, err := d.Exec(ctx, `UPDATE bundles SET extract_dir = ?, extracted_at = ? WHERE bundle_id = ?`,
		dir, at.UTC(), bundleID)
	if err != nil {
		return fmt.Errorf("marking %s extracted: %w", bundleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("bundle %s is not in the catalog", bundleID)
	}
	return nil
}
