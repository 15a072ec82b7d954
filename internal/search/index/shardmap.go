package index

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const defaultShardPattern = "shard-%03d.vec"

// ShardMap deterministically assigns keys to shards. The assignment depends
// only on the key bytes and the shard count, so it is stable across restarts.
type ShardMap struct {
	n int
}

// NewShardMap returns a map over [0, n).
func NewShardMap(n int) ShardMap {
	if n <= 0 {
		n = 1
	}
	return ShardMap{n: n}
}

// Shard returns the shard that owns key.
func (m ShardMap) Shard(key string) int {
	return int(xxhash.Sum64String(key) % uint64(m.n))
}

// Count returns the number of shards.
func (m ShardMap) Count() int { return m.n }

func shardFile(pattern string, i int) string {
	return fmt.Sprintf(pattern, i)
}
