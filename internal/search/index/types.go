package index

// FormatVersion is the index_version written by this package. Indexes with a
// newer version are refused.
const FormatVersion = 1

// Meta describes a sharded vector index and how to interpret its files.
// Shards and Dim are fixed when the index is created.
type Meta struct {
	IndexVersion int    `json:"index_version"`
	CreatedAt    string `json:"created_at"`
	ModelID      string `json:"model_id"`
	Dim          int    `json:"dim"`
	Shards       int    `json:"shards"`
	Metric       string `json:"metric"`
	ShardPattern string `json:"shard_pattern"`
}

// ShardStats is the state of one shard.
type ShardStats struct {
	Shard   int    `json:"shard"`
	Path    string `json:"path"`
	Live    int    `json:"live"`
	Dead    int    `json:"dead"`
	LogSize int64  `json:"log_size"`
}

// Item is one key/vector pair.
type Item struct {
	Key    string
	Vector []float32
}
