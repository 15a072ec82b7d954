package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ImportRecord marks the last manifest version that was fully indexed for a
// source.
type ImportRecord struct {
	Source        string
	Checksum      string
	IngestedAt    time.Time
	SchemaVersion int
}

// ImportRecord returns the record for source, or nil when none exists.
func (c *Catalog) ImportRecord(ctx context.Context, source string) (*ImportRecord, error) {
	var (
		r  ImportRecord
		at int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT source, checksum, ingested_at, schema_version FROM import_records WHERE source = ?`, source,
	).Scan(&r.Source, &r.Checksum, &at, &r.SchemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read import record %s: %w", source, err)
	}
	r.IngestedAt = time.UnixMilli(at).UTC()
	return &r, nil
}

// SaveImportRecord creates or replaces the record for r.Source.
func (c *Catalog) SaveImportRecord(ctx context.Context, r ImportRecord) error {
	if r.IngestedAt.IsZero() {
		r.IngestedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
INSERT INTO import_records (source, checksum, ingested_at, schema_version) VALUES (?, ?, ?, ?)
ON CONFLICT(source) DO UPDATE SET
	checksum = excluded.checksum,
	ingested_at = excluded.ingested_at,
	schema_version = excluded.schema_version`,
		r.Source, r.Checksum, r.IngestedAt.UnixMilli(), r.SchemaVersion)
	if err != nil {
		return fmt.Errorf("cannot save import record %s: %w", r.Source, err)
	}
	return nil
}

// ImportRecords returns every record ordered by source.
func (c *Catalog) ImportRecords(ctx context.Context) ([]ImportRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT source, checksum, ingested_at, schema_version FROM import_records ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportRecord
	for rows.Next() {
		var (
			r  ImportRecord
			at int64
		)
		if err := rows.Scan(&r.Source, &r.Checksum, &at, &r.SchemaVersion); err != nil {
			return nil, err
		}
		r.IngestedAt = time.UnixMilli(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
