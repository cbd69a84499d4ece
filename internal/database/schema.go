package database

import (
	"context"
	"fmt"
	"log/slog"
)

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

var catalogDDL = []string{
	`CREATE TABLE IF NOT EXISTS bundles (
		bundle_id     TEXT PRIMARY KEY,
		container     TEXT NOT NULL,
		major_version INTEGER NOT NULL,
		minor_version INTEGER NOT NULL,
		file_count    INTEGER NOT NULL,
		total_size    INTEGER NOT NULL,
		extract_dir   TEXT,
		extracted_at  TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		bundle_id       TEXT NOT NULL REFERENCES bundles(bundle_id) ON DELETE CASCADE,
		ordinal         INTEGER NOT NULL,
		relative_path   TEXT NOT NULL,
		file_type       TEXT NOT NULL,
		data_offset     INTEGER NOT NULL,
		size            INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		PRIMARY KEY (bundle_id, ordinal)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS entries_path ON entries (bundle_id, relative_path)`,
}

func (d *Database) readSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := d.QueryRow(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	if version > schemaVersion {
		return 0, fmt.Errorf("catalog schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return version, nil
}

// checkSchema fails unless the catalog was already created by this version
func (d *Database) checkSchema(ctx context.Context) error {
	version, err := d.readSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version != schemaVersion {
		return fmt.Errorf("catalog %s has not been created yet", d.path)
	}
	return nil
}

// migrate creates the catalog tables if they are missing
func (d *Database) migrate(ctx context.Context) error {
	version, err := d.readSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Safe to call even after commit

	for _, ddl := range catalogDDL {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("Catalog schema created", "path", d.path, "version", schemaVersion)
	return nil
}
