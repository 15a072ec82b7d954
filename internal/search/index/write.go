package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kamusis/coach-cli/internal/fs"
)

// WriteMeta atomically writes the index metadata to dir.
func WriteMeta(fsys fs.FileSystem, dir string, m Meta) error {
	if m.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", m.Dim)
	}
	if m.Shards <= 0 {
		return fmt.Errorf("invalid shard count: %d", m.Shards)
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dir, metaFile)
	tmp := path + ".tmp"
	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create index meta: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot write index meta: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot sync index meta: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cannot close index meta: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("cannot install index meta: %w", err)
	}
	return nil
}
