package index

import "errors"

var (
	// ErrMetaMismatch indicates the index on disk was built with a different
	// dimension, shard count or metric than requested.
	ErrMetaMismatch = errors.New("index metadata mismatch")

	// ErrLocked indicates another process holds the index lock.
	ErrLocked = errors.New("index is locked by another process")

	// ErrReadOnly is returned by mutations on an index opened read-only.
	ErrReadOnly = errors.New("index is opened read-only")

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index is closed")
)
