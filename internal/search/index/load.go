package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kamusis/coach-cli/internal/fs"
)

const metaFile = "index.json"

// LoadMeta reads the index metadata in dir. It returns (nil, nil) when the
// directory holds no index yet.
func LoadMeta(fsys fs.FileSystem, dir string) (*Meta, error) {
	path := filepath.Join(dir, metaFile)
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot open index meta %s: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("cannot read index meta %s: %w", path, err)
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid index meta JSON %s: %w", path, err)
	}
	if m.IndexVersion > FormatVersion {
		return nil, fmt.Errorf("index meta %s has version %d, newer than supported %d", path, m.IndexVersion, FormatVersion)
	}
	if m.Dim <= 0 {
		return nil, fmt.Errorf("invalid dim in index meta: %d", m.Dim)
	}
	if m.Shards <= 0 {
		return nil, fmt.Errorf("invalid shard count in index meta: %d", m.Shards)
	}
	if m.ShardPattern == "" {
		m.ShardPattern = defaultShardPattern
	}
	return &m, nil
}
