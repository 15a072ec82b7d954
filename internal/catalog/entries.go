package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kamusis/coach-cli/internal/library"
)

// Entry is a catalog row: a content entry plus its indexing bookkeeping.
type Entry struct {
	library.ContentEntry

	// TextHash identifies the text the entry embeds to.
	TextHash string
	// IndexedHash is the TextHash last written to the vector index, or empty.
	IndexedHash string
	UpdatedAt   time.Time
}

// Indexed reports whether the entry's current text has been indexed.
func (e Entry) Indexed() bool { return e.IndexedHash != "" && e.IndexedHash == e.TextHash }

const upsertEntrySQL = `
INSERT INTO content_entries (
	id, title, short_description, detail, tags, estimated_time_sec, difficulty,
	category, source_url, evidence_badge, cooldown_sec, text_hash, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	short_description = excluded.short_description,
	detail = excluded.detail,
	tags = excluded.tags,
	estimated_time_sec = excluded.estimated_time_sec,
	difficulty = excluded.difficulty,
	category = excluded.category,
	source_url = excluded.source_url,
	evidence_badge = excluded.evidence_badge,
	cooldown_sec = excluded.cooldown_sec,
	text_hash = excluded.text_hash,
	updated_at = excluded.updated_at`

const selectEntrySQL = `
SELECT id, title, short_description, detail, tags, estimated_time_sec, difficulty,
	category, source_url, evidence_badge, cooldown_sec, text_hash, indexed_hash, updated_at
FROM content_entries`

// UpsertEntries inserts or replaces entries by id. IndexedHash is left as
// stored so a retried import can tell which entries still need indexing.
// Rows are written in small transactions.
func (c *Catalog) UpsertEntries(ctx context.Context, entries []Entry) error {
	now := time.Now().UnixMilli()
	for start := 0; start < len(entries); start += upsertBatch {
		batch := entries[start:min(start+upsertBatch, len(entries))]
		err := c.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, upsertEntrySQL)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, e := range batch {
				tags, err := json.Marshal(nonNil(e.Tags))
				if err != nil {
					return err
				}
				if _, err := stmt.ExecContext(ctx,
					e.ID, e.Title, e.ShortDescription, e.Detail, string(tags),
					nullInt(e.EstimatedTimeSec), e.Difficulty, e.Category, e.SourceURL,
					e.EvidenceBadge, nullInt(e.CooldownSec), e.TextHash, now,
				); err != nil {
					return fmt.Errorf("cannot upsert entry %s: %w", e.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Get returns the entry with id, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, selectEntrySQL+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns every entry ordered by id.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, selectEntrySQL+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Count returns the number of entries and how many of them are indexed at
// their current text.
func (c *Catalog) Count(ctx context.Context) (total, indexed int, err error) {
	err = c.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(CASE WHEN indexed_hash != '' AND indexed_hash = text_hash THEN 1 ELSE 0 END), 0)
FROM content_entries`).Scan(&total, &indexed)
	return total, indexed, err
}

// Remove deletes the entry with id. It reports whether a row existed.
func (c *Catalog) Remove(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM content_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("cannot remove entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkIndexed records that id was indexed with textHash.
func (c *Catalog) MarkIndexed(ctx context.Context, id, textHash string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE content_entries SET indexed_hash = ? WHERE id = ?`, textHash, id)
	if err != nil {
		return fmt.Errorf("cannot mark entry %s indexed: %w", id, err)
	}
	return nil
}

// ClearIndexed forgets every indexed hash, used after the vector index is reset.
func (c *Catalog) ClearIndexed(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `UPDATE content_entries SET indexed_hash = ''`)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e         Entry
		tags      string
		est, cool sql.NullInt64
		updated   int64
	)
	if err := s.Scan(&e.ID, &e.Title, &e.ShortDescription, &e.Detail, &tags, &est,
		&e.Difficulty, &e.Category, &e.SourceURL, &e.EvidenceBadge, &cool,
		&e.TextHash, &e.IndexedHash, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags for entry %s: %w", e.ID, err)
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	e.EstimatedTimeSec = int(est.Int64)
	e.CooldownSec = int(cool.Int64)
	e.UpdatedAt = time.UnixMilli(updated)
	return &e, nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
