// Package index partitions a vector key space across independent shard
// stores and presents them as one index.
//
// Each shard is a vectorstore.Store with its own file and writer lock, so
// writes to different shards never wait on each other. Search scatters the
// query to every shard and merges the per-shard top-K.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/kamusis/coach-cli/internal/fs"
	"github.com/kamusis/coach-cli/internal/metrics"
	"github.com/kamusis/coach-cli/internal/vectorstore"
)

// Options controls how an index is opened or created.
type Options struct {
	FS          fs.FileSystem
	Shards      int    // used when creating; must match an existing index
	Dim         int    // used when creating; must match an existing index
	Metric      string // "l2" or "cosine"
	ModelID     string // recorded on creation
	ReadOnly    bool
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Index is a sharded vector index rooted at a directory.
//
// A writable index holds the exclusive directory lock until Close. A
// read-only index holds the shared lock only while loading, so writers are
// never locked out by readers; Refresh picks up what they wrote.
type Index struct {
	dir    string
	fs     fs.FileSystem
	opts   Options
	metric vectorstore.Metric
	lock   *flock.Flock // nil when read-only
	ro     bool
	logger *slog.Logger
	closed atomic.Bool

	st        atomic.Pointer[snapshot]
	refreshMu sync.Mutex
}

// snapshot is one loaded view of the index files.
type snapshot struct {
	meta   Meta
	shards ShardMap
	stores []*vectorstore.Store
	sig    string // file sizes and mtimes at load
}

// Open opens the index in dir, creating it when absent. Shard count and
// dimension are fixed at creation; reopening with different values fails
// with ErrMetaMismatch.
func Open(dir string, opts Options) (*Index, error) {
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	metric, err := vectorstore.ParseMetric(opts.Metric)
	if err != nil {
		return nil, err
	}

	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create index dir %s: %w", dir, err)
	}
	if err := fs.ExcludeFromBackup(dir); err != nil {
		opts.Logger.Warn("cannot exclude index dir from backup", "dir", dir, "error", err)
	}

	lock, err := acquireLock(dir, opts.ReadOnly, opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	x := &Index{
		dir:    dir,
		fs:     opts.FS,
		opts:   opts,
		metric: metric,
		lock:   lock,
		ro:     opts.ReadOnly,
		logger: opts.Logger,
	}
	st, err := x.load()
	if err != nil || x.ro {
		_ = lock.Unlock()
		x.lock = nil
	}
	if err != nil {
		return nil, err
	}
	x.st.Store(st)
	x.publishGauges()
	return x, nil
}

// load reads the meta and every shard. The caller holds the directory lock.
func (x *Index) load() (*snapshot, error) {
	metric := x.metric
	meta, err := LoadMeta(x.fs, x.dir)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		if x.ro {
			return nil, fmt.Errorf("no index found in %s", x.dir)
		}
		if x.opts.Dim <= 0 || x.opts.Shards <= 0 {
			return nil, fmt.Errorf("creating an index needs positive dim and shards (got dim=%d shards=%d)", x.opts.Dim, x.opts.Shards)
		}
		meta = &Meta{
			IndexVersion: FormatVersion,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			ModelID:      x.opts.ModelID,
			Dim:          x.opts.Dim,
			Shards:       x.opts.Shards,
			Metric:       string(metric),
			ShardPattern: defaultShardPattern,
		}
		if err := WriteMeta(x.fs, x.dir, *meta); err != nil {
			return nil, err
		}
	} else {
		if err := checkMeta(*meta, x.opts, metric); err != nil {
			return nil, err
		}
		metric = vectorstore.Metric(meta.Metric)
	}

	st := &snapshot{
		meta:   *meta,
		shards: NewShardMap(meta.Shards),
		stores: make([]*vectorstore.Store, meta.Shards),
	}
	var g errgroup.Group
	for i := range st.stores {
		g.Go(func() error {
			s, err := vectorstore.Open(filepath.Join(x.dir, shardFile(meta.ShardPattern, i)), meta.Dim, vectorstore.Options{
				FS:       x.fs,
				Metric:   metric,
				Logger:   x.logger.With("shard", i),
				ReadOnly: x.ro,
			})
			if err != nil {
				return fmt.Errorf("cannot open shard %d: %w", i, err)
			}
			st.stores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if st.sig, err = x.signature(meta); err != nil {
		return nil, err
	}
	return st, nil
}

// signature fingerprints the meta and shard files by size and mtime.
func (x *Index) signature(m *Meta) (string, error) {
	names := []string{metaFile}
	for i := 0; i < m.Shards; i++ {
		names = append(names, shardFile(m.ShardPattern, i))
	}
	var b strings.Builder
	for _, name := range names {
		info, err := x.fs.Stat(filepath.Join(x.dir, name))
		switch {
		case errors.Is(err, os.ErrNotExist):
			b.WriteString("-|")
		case err != nil:
			return "", fmt.Errorf("cannot stat %s: %w", name, err)
		default:
			fmt.Fprintf(&b, "%d:%d|", info.Size(), info.ModTime().UnixNano())
		}
	}
	return b.String(), nil
}

// Refresh reloads a read-only index whose files changed since the last load
// and reports whether it did. While a writer holds the index the current
// view is kept and Refresh returns false. Writable indexes never reload.
func (x *Index) Refresh() (bool, error) {
	if x.closed.Load() {
		return false, ErrClosed
	}
	if !x.ro {
		return false, nil
	}
	x.refreshMu.Lock()
	defer x.refreshMu.Unlock()

	cur := x.st.Load()
	sig, err := x.signature(&cur.meta)
	if err != nil {
		return false, err
	}
	if sig == cur.sig {
		return false, nil
	}
	lock, ok, err := tryLockShared(x.dir)
	if err != nil || !ok {
		return false, err
	}
	defer lock.Unlock()

	st, err := x.load()
	if err != nil {
		return false, err
	}
	x.st.Store(st)
	x.publishGauges()
	x.logger.Debug("reloaded vector index", "dir", x.dir, "records", x.Len())
	return true, nil
}

func checkMeta(m Meta, opts Options, metric vectorstore.Metric) error {
	if opts.Dim > 0 && opts.Dim != m.Dim {
		return fmt.Errorf("%w: dim on disk %d, requested %d", ErrMetaMismatch, m.Dim, opts.Dim)
	}
	if opts.Shards > 0 && opts.Shards != m.Shards {
		return fmt.Errorf("%w: shards on disk %d, requested %d", ErrMetaMismatch, m.Shards, opts.Shards)
	}
	if opts.Metric != "" && string(metric) != m.Metric {
		return fmt.Errorf("%w: metric on disk %s, requested %s", ErrMetaMismatch, m.Metric, metric)
	}
	return nil
}

// Dir returns the index directory.
func (x *Index) Dir() string { return x.dir }

// Meta returns the index metadata.
func (x *Index) Meta() Meta { return x.st.Load().meta }

// Dim returns the vector dimension.
func (x *Index) Dim() int { return x.st.Load().meta.Dim }

// ShardOf returns the shard that owns key.
func (x *Index) ShardOf(key string) int { return x.st.Load().shards.Shard(key) }

func (st *snapshot) store(key string) *vectorstore.Store {
	return st.stores[st.shards.Shard(key)]
}

func (x *Index) checkWritable() error {
	if x.closed.Load() {
		return ErrClosed
	}
	if x.ro {
		return ErrReadOnly
	}
	return nil
}

// Upsert routes key to its shard and writes it there.
func (x *Index) Upsert(key string, vector []float32) (err error) {
	defer x.observe("upsert", time.Now(), &err)
	if err := x.checkWritable(); err != nil {
		return err
	}
	return x.st.Load().store(key).Upsert(key, vector)
}

// Remove deletes key from its shard. Absent keys are not an error.
func (x *Index) Remove(key string) (err error) {
	defer x.observe("remove", time.Now(), &err)
	if err := x.checkWritable(); err != nil {
		return err
	}
	return x.st.Load().store(key).Remove(key)
}

// BulkUpsert groups items by shard and writes each group with one flush.
// An invalid item rejects the whole batch before anything is written. Shards
// are written concurrently; an I/O failure in one shard does not undo the
// others.
func (x *Index) BulkUpsert(items []Item) (err error) {
	defer x.observe("bulk_upsert", time.Now(), &err)
	if err := x.checkWritable(); err != nil {
		return err
	}
	st := x.st.Load()
	groups := make([][]vectorstore.Item, len(st.stores))
	for _, it := range items {
		vi := vectorstore.Item{Key: it.Key, Vector: it.Vector}
		if err := vectorstore.CheckItem(vi, st.meta.Dim); err != nil {
			return fmt.Errorf("item %q: %w", it.Key, err)
		}
		i := st.shards.Shard(it.Key)
		groups[i] = append(groups[i], vi)
	}
	var g errgroup.Group
	for i, group := range groups {
		if len(group) == 0 {
			continue
		}
		g.Go(func() error {
			if err := st.stores[i].BulkUpsert(group); err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Search queries every shard concurrently and returns the global top-K by
// ascending distance, ties broken by ascending key.
func (x *Index) Search(ctx context.Context, query []float32, topK int) (_ []vectorstore.Match, err error) {
	defer x.observe("search", time.Now(), &err)
	if x.closed.Load() {
		return nil, ErrClosed
	}
	st := x.st.Load()
	if len(query) != st.meta.Dim {
		return nil, fmt.Errorf("%w: got %d want %d", vectorstore.ErrDimensionMismatch, len(query), st.meta.Dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	partial := make([][]vectorstore.Match, len(st.stores))
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range st.stores {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := s.Search(query, topK)
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			partial[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []vectorstore.Match
	for _, m := range partial {
		merged = append(merged, m...)
	}
	vectorstore.SortMatches(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Has reports whether key is present.
func (x *Index) Has(key string) bool {
	return x.st.Load().store(key).Has(key)
}

// Get returns the vector stored under key.
func (x *Index) Get(key string) ([]float32, bool) {
	return x.st.Load().store(key).Get(key)
}

// Keys returns every live key in ascending order.
func (x *Index) Keys() []string {
	var out []string
	for _, s := range x.st.Load().stores {
		out = append(out, s.Keys()...)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of live keys across all shards.
func (x *Index) Len() int {
	n := 0
	for _, s := range x.st.Load().stores {
		n += s.Len()
	}
	return n
}

// Stats returns per-shard counters.
func (x *Index) Stats() []ShardStats {
	stores := x.st.Load().stores
	out := make([]ShardStats, len(stores))
	for i, s := range stores {
		st := s.Stats()
		out[i] = ShardStats{Shard: i, Path: st.Path, Live: st.Live, Dead: st.Dead, LogSize: st.LogSize}
	}
	return out
}

// Persist compacts every shard log. Shards are rewritten concurrently.
func (x *Index) Persist() (err error) {
	defer x.observe("persist", time.Now(), &err)
	if err := x.checkWritable(); err != nil {
		return err
	}
	var g errgroup.Group
	for i, s := range x.st.Load().stores {
		g.Go(func() error {
			if err := s.Persist(); err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reset drops every vector and records modelID as the index's model.
func (x *Index) Reset(modelID string) (err error) {
	defer x.observe("reset", time.Now(), &err)
	if err := x.checkWritable(); err != nil {
		return err
	}
	for i, s := range x.st.Load().stores {
		if err := s.Reset(); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return x.SetModelID(modelID)
}

// SetModelID records the embedding model that produced the index vectors.
func (x *Index) SetModelID(modelID string) error {
	if err := x.checkWritable(); err != nil {
		return err
	}
	cur := x.st.Load()
	if cur.meta.ModelID == modelID {
		return nil
	}
	next := *cur
	next.meta.ModelID = modelID
	if err := WriteMeta(x.fs, x.dir, next.meta); err != nil {
		return err
	}
	x.st.Store(&next)
	return nil
}

// Close releases the shards and, for a writable index, the directory lock.
func (x *Index) Close() error {
	if !x.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, s := range x.st.Load().stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if x.lock != nil {
		if err := x.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("cannot release index lock: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (x *Index) observe(op string, start time.Time, errp *error) {
	err := *errp
	metrics.ObserveOp(op, start, err)
	var ioe *vectorstore.IOError
	if errors.As(err, &ioe) {
		metrics.IOFailures.WithLabelValues(string(ioe.Stage)).Inc()
	}
	if op != "search" && err == nil {
		x.publishGauges()
	}
}

func (x *Index) publishGauges() {
	for i, s := range x.st.Load().stores {
		metrics.IndexRecords.WithLabelValues(strconv.Itoa(i)).Set(float64(s.Len()))
	}
}
