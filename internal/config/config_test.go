package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("COACH_HOME", "")
	return home
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := setHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.Shards != 8 || cfg.Index.Dimension != 384 {
		t.Fatalf("unexpected index defaults: %+v", cfg.Index)
	}
	want := filepath.Join(home, ".coach", "data", "catalog.db")
	if cfg.Catalog.Path != want {
		t.Fatalf("catalog path = %q, want %q", cfg.Catalog.Path, want)
	}
	if cfg.Library.Source != "bundled" || cfg.Library.SchemaVersion != 1 {
		t.Fatalf("unexpected library defaults: %+v", cfg.Library)
	}
}

func TestSaveLoad_RoundTripExpandsTilde(t *testing.T) {
	home := setHome(t)

	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Index.Dir = "~/vectors"
	cfg.Index.Shards = 4
	cfg.Index.LockTimeout = 2 * time.Second
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Index.Dir != filepath.Join(home, "vectors") {
		t.Fatalf("index dir not expanded: %q", got.Index.Dir)
	}
	if got.Index.Shards != 4 || got.Index.LockTimeout != 2*time.Second {
		t.Fatalf("unexpected index config: %+v", got.Index)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	home := setHome(t)
	dir := filepath.Join(home, ".coach")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"zero shards":  "index:\n  shards: 0\n",
		"bad metric":   "index:\n  metric: dot\n",
		"bad schema":   "library:\n  schema_version: -1\n",
		"invalid yaml": "index: [\n",
	}
	for name, body := range cases {
		if err := os.WriteFile(filepath.Join(dir, "coach.yaml"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCoachDir_HonorsOverride(t *testing.T) {
	setHome(t)
	custom := t.TempDir()
	t.Setenv("COACH_HOME", custom)

	dir, err := CoachDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != custom {
		t.Fatalf("CoachDir = %q, want %q", dir, custom)
	}
}
