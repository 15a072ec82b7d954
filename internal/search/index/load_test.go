package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kamusis/coach-cli/internal/fs"
)

func TestLoadMeta_HappyPath(t *testing.T) {
	dir := t.TempDir()
	m := Meta{
		IndexVersion: 1,
		CreatedAt:    "2026-01-01T00:00:00Z",
		ModelID:      "hashing:384",
		Dim:          384,
		Shards:       4,
		Metric:       "l2",
	}
	if err := WriteMeta(fs.Default, dir, m); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	got, err := LoadMeta(fs.Default, dir)
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if got.Dim != 384 || got.Shards != 4 || got.ModelID != "hashing:384" {
		t.Fatalf("unexpected meta: %+v", got)
	}
	if got.ShardPattern != defaultShardPattern {
		t.Fatalf("shard pattern default not applied: %q", got.ShardPattern)
	}
}

func TestLoadMeta_Missing(t *testing.T) {
	got, err := LoadMeta(fs.Default, t.TempDir())
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil meta, got %+v", got)
	}
}

func TestLoadMeta_Invalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, metaFile), []byte(`{"dim":0,"shards":2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMeta(fs.Default, dir); err == nil {
		t.Fatalf("expected error for zero dim")
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), []byte(`not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMeta(fs.Default, dir); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestLoadMeta_RefusesNewerVersion(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`{"index_version":99,"dim":4,"shards":2,"metric":"l2"}`)
	if err := os.WriteFile(filepath.Join(dir, metaFile), body, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMeta(fs.Default, dir); err == nil {
		t.Fatalf("expected error for future index version")
	}
}
