package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IndexConfig describes the on-disk vector index.
type IndexConfig struct {
	Dir         string        `yaml:"dir"`
	Shards      int           `yaml:"shards"`
	Dimension   int           `yaml:"dimension"`
	Metric      string        `yaml:"metric,omitempty"`
	LockTimeout time.Duration `yaml:"lock_timeout,omitempty"`
}

// CatalogConfig describes the structured content catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// LibraryConfig describes where the content manifest comes from.
type LibraryConfig struct {
	Source        string `yaml:"source"` // "bundled" or a path to a JSON manifest
	SchemaVersion int    `yaml:"schema_version"`
	Workers       int    `yaml:"workers,omitempty"`
}

// Config is the in-memory representation of ~/.coach/coach.yaml.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Index   IndexConfig   `yaml:"index"`
	Catalog CatalogConfig `yaml:"catalog"`
	Library LibraryConfig `yaml:"library"`
}

// CoachDir returns the absolute path to the coach home directory. COACH_HOME
// overrides the default ~/.coach.
func CoachDir() (string, error) {
	if v := os.Getenv("COACH_HOME"); v != "" {
		return ExpandPath(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".coach"), nil
}

// ConfigPath returns the absolute path to coach.yaml.
func ConfigPath() (string, error) {
	dir, err := CoachDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coach.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the default Config written on first coach init.
func DefaultConfig() (*Config, error) {
	dir, err := CoachDir()
	if err != nil {
		return nil, err
	}
	data := filepath.Join(dir, "data")
	return &Config{
		DataDir: data,
		Index: IndexConfig{
			Dir:         filepath.Join(data, "index"),
			Shards:      8,
			Dimension:   384,
			Metric:      "l2",
			LockTimeout: 5 * time.Second,
		},
		Catalog: CatalogConfig{Path: filepath.Join(data, "catalog.db")},
		Library: LibraryConfig{Source: "bundled", SchemaVersion: 1, Workers: 1},
	}, nil
}

// Load reads and parses coach.yaml. A missing file yields DefaultConfig.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) expand() error {
	for _, p := range []*string{&c.DataDir, &c.Index.Dir, &c.Catalog.Path} {
		v, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	if c.Library.Source != "" && c.Library.Source != "bundled" {
		v, err := ExpandPath(c.Library.Source)
		if err != nil {
			return err
		}
		c.Library.Source = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Index.Dir == "":
		return fmt.Errorf("index.dir must be set")
	case c.Index.Shards <= 0:
		return fmt.Errorf("index.shards must be positive, got %d", c.Index.Shards)
	case c.Index.Dimension <= 0:
		return fmt.Errorf("index.dimension must be positive, got %d", c.Index.Dimension)
	case c.Catalog.Path == "":
		return fmt.Errorf("catalog.path must be set")
	case c.Library.SchemaVersion <= 0:
		return fmt.Errorf("library.schema_version must be positive, got %d", c.Library.SchemaVersion)
	}
	switch c.Index.Metric {
	case "", "l2", "cosine":
	default:
		return fmt.Errorf("index.metric must be l2 or cosine, got %q", c.Index.Metric)
	}
	return nil
}

// Save marshals cfg and writes it to coach.yaml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
