// Package vectorstore is a durable key -> vector table for one shard.
//
// Mutations are appended to a log file and synced before they become visible
// to readers, so a search sees either the state before a write or after it.
// Persist rewrites the log to hold only live records.
package vectorstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/kamusis/coach-cli/internal/fs"
)

// Options configures a Store.
type Options struct {
	FS     fs.FileSystem
	Metric Metric
	Logger *slog.Logger

	// ReadOnly stores never modify their file: a torn tail is skipped rather
	// than truncated, and mutations fail with ErrReadOnly.
	ReadOnly bool
}

// Item is one key/vector pair for BulkUpsert.
type Item struct {
	Key    string
	Vector []float32
}

// Stats describes a store's in-memory and on-disk state.
type Stats struct {
	Path    string
	Live    int
	Dead    int
	LogSize int64
}

// Store is a single-shard vector table backed by an append-only log.
type Store struct {
	path   string
	dim    int
	fs     fs.FileSystem
	metric Metric
	logger *slog.Logger
	ro     bool

	// writeMu serializes mutations and all file I/O. It is never held by readers.
	writeMu sync.Mutex
	size    int64 // committed log length
	dead    int   // superseded records still in the log
	closed  bool

	mu      sync.RWMutex
	vectors map[string][]float32
}

// Open loads the store at path, creating nothing until the first write.
// A torn tail left by an interrupted write is discarded.
func Open(path string, dim int, opts Options) (*Store, error) {
	if dim <= 0 {
		return nil, errors.New("vector store dimension must be positive")
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Metric == "" {
		opts.Metric = MetricL2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		path:    path,
		dim:     dim,
		fs:      opts.FS,
		metric:  opts.Metric,
		logger:  opts.Logger,
		ro:      opts.ReadOnly,
		vectors: make(map[string][]float32),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := s.fs.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return ioErr(StageOpen, s.path, err)
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return ioErr(StageSeek, s.path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return ioErr(StageSeek, s.path, err)
	}
	b, err := io.ReadAll(io.LimitReader(f, end))
	if err != nil {
		_ = f.Close()
		return ioErr(StageRead, s.path, err)
	}
	if err := f.Close(); err != nil {
		return ioErr(StageClose, s.path, err)
	}

	scan, err := decodeLog(b, s.dim, func(key string, vec []float32) {
		if vec == nil {
			delete(s.vectors, key)
			return
		}
		s.vectors[key] = vec
	})
	if err != nil {
		return err
	}
	switch {
	case scan.torn && s.ro:
		s.logger.Debug("ignoring torn tail of vector log",
			"path", s.path, "valid_bytes", scan.validEnd, "file_bytes", len(b))
	case scan.torn:
		s.logger.Warn("discarding torn tail of vector log",
			"path", s.path, "valid_bytes", scan.validEnd, "file_bytes", len(b))
		if err := s.fs.Truncate(s.path, scan.validEnd); err != nil {
			return ioErr(StageTruncate, s.path, err)
		}
	}
	s.size = scan.validEnd
	s.dead = scan.records - len(s.vectors)
	return nil
}

// Dim returns the fixed vector length of the store.
func (s *Store) Dim() int { return s.dim }

// Path returns the log file path.
func (s *Store) Path() string { return s.path }

// CheckItem reports whether it can be written to a store of dimension dim.
func CheckItem(it Item, dim int) error {
	switch {
	case it.Key == "":
		return errors.New("vector store key must not be empty")
	case len(it.Key) > maxKeyLen:
		return fmt.Errorf("%w: %d bytes, limit %d", ErrKeyTooLong, len(it.Key), maxKeyLen)
	case len(it.Vector) != dim:
		return dimErr(len(it.Vector), dim)
	}
	return nil
}

// Upsert inserts or replaces the vector for key.
func (s *Store) Upsert(key string, vector []float32) error {
	return s.BulkUpsert([]Item{{Key: key, Vector: vector}})
}

// BulkUpsert writes all items with a single append and sync. Either every item
// is validated and applied or none is.
func (s *Store) BulkUpsert(items []Item) error {
	if len(items) == 0 {
		return nil
	}
	size := 0
	for _, it := range items {
		if err := CheckItem(it, s.dim); err != nil {
			return err
		}
		size += recordSize(it.Key, it.Vector)
	}
	buf := make([]byte, 0, size)
	for _, it := range items {
		buf = appendRecord(buf, it.Key, it.Vector)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	durable, err := s.appendLocked(buf)
	if !durable {
		return err
	}

	s.mu.Lock()
	for _, it := range items {
		if _, ok := s.vectors[it.Key]; ok {
			s.dead++
		}
		v := make([]float32, len(it.Vector))
		copy(v, it.Vector)
		s.vectors[it.Key] = v
	}
	s.mu.Unlock()
	return err
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	if !s.Has(key) {
		return nil
	}
	durable, err := s.appendLocked(appendRecord(nil, key, nil))
	if !durable {
		return err
	}
	s.mu.Lock()
	delete(s.vectors, key)
	s.mu.Unlock()
	// The tombstone and the record it hides are both dead.
	s.dead += 2
	return err
}

func (s *Store) writableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.ro {
		return ErrReadOnly
	}
	return nil
}

// appendLocked writes buf at the committed end of the log. durable reports
// whether the bytes were synced; a close error can accompany durable == true.
func (s *Store) appendLocked(buf []byte) (durable bool, err error) {
	if s.size == 0 {
		buf = append(encodeHeader(s.dim), buf...)
	}
	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, ioErr(StageOpen, s.path, err)
	}
	// Seeking to the committed offset overwrites any torn bytes from an
	// earlier failed append.
	if _, err := f.Seek(s.size, io.SeekStart); err != nil {
		_ = f.Close()
		return false, ioErr(StageSeek, s.path, err)
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		s.rollbackLocked()
		return false, ioErr(StageWrite, s.path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		s.rollbackLocked()
		return false, ioErr(StageSync, s.path, err)
	}
	s.size += int64(len(buf))
	if err := f.Close(); err != nil {
		return true, ioErr(StageClose, s.path, err)
	}
	return true, nil
}

// rollbackLocked cuts the log back to the committed length after a failed
// append so the torn bytes cannot resurface on the next load.
func (s *Store) rollbackLocked() {
	if err := s.fs.Truncate(s.path, s.size); err != nil {
		s.logger.Warn("cannot truncate vector log after failed append", "path", s.path, "error", err)
	}
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vectors[key]
	return ok
}

// Get returns a copy of the vector stored under key.
func (s *Store) Get(key string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vectors[key]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Keys returns the live keys in ascending order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.vectors))
	for k := range s.vectors {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Search returns up to topK keys closest to query, ordered by ascending
// distance. Equal distances are ordered by ascending key.
func (s *Store) Search(query []float32, topK int) ([]Match, error) {
	if len(query) != s.dim {
		return nil, dimErr(len(query), s.dim)
	}
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	top := newTopK(topK)
	for k, v := range s.vectors {
		top.offer(Match{Key: k, Score: s.metric.Distance(query, v)})
	}
	return top.sorted(), nil
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Stats {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return Stats{Path: s.path, Live: s.Len(), Dead: s.dead, LogSize: s.size}
}

// Persist rewrites the log so it holds exactly the live records, then
// atomically replaces the old file. A failure at any stage leaves the
// previous log in place.
func (s *Store) Persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	s.mu.RLock()
	buf := encodeSnapshot(s.dim, s.vectors)
	s.mu.RUnlock()
	return s.rewriteLocked(buf)
}

// Reset durably drops every record.
func (s *Store) Reset() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	if err := s.rewriteLocked(encodeHeader(s.dim)); err != nil {
		return err
	}
	s.mu.Lock()
	s.vectors = make(map[string][]float32)
	s.mu.Unlock()
	return nil
}

func encodeSnapshot(dim int, vectors map[string][]float32) []byte {
	keys := make([]string, 0, len(vectors))
	size := headerSize
	for k, v := range vectors {
		keys = append(keys, k)
		size += recordSize(k, v)
	}
	sort.Strings(keys)
	buf := make([]byte, 0, size)
	buf = append(buf, encodeHeader(dim)...)
	for _, k := range keys {
		buf = appendRecord(buf, k, vectors[k])
	}
	return buf
}

// rewriteLocked writes buf to a temp file and renames it over the log.
func (s *Store) rewriteLocked(buf []byte) error {
	tmp := s.path + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return ioErr(StageOpen, tmp, err)
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return ioErr(StageWrite, tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return ioErr(StageSync, tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return ioErr(StageClose, tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return ioErr(StageRename, s.path, err)
	}
	s.size = int64(len(buf))
	s.dead = 0
	return nil
}

// Close marks the store closed. The store holds no open file between calls.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.closed = true
	return nil
}
