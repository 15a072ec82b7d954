package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrKeyTooLong is returned when a key exceeds the longest key the log
	// format can hold.
	ErrKeyTooLong = errors.New("vector store key too long")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("vector store is closed")

	// ErrReadOnly is returned by mutations on a store opened read-only.
	ErrReadOnly = errors.New("vector store is opened read-only")

	// ErrCorrupt is returned when a shard file header cannot be read as a vector log.
	ErrCorrupt = errors.New("vector log is corrupt")
)

// Stage names one fallible step of file I/O.
type Stage string

const (
	StageOpen     Stage = "open"
	StageSeek     Stage = "seek"
	StageRead     Stage = "read"
	StageWrite    Stage = "write"
	StageSync     Stage = "sync"
	StageClose    Stage = "close"
	StageRename   Stage = "rename"
	StageTruncate Stage = "truncate"
)

// IOError is an I/O failure tagged with the stage it happened in.
//
// A close failure is reported even when the preceding write and sync
// succeeded and the bytes are durable.
type IOError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("vector store %s failed for %s: %v", e.Stage, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(stage Stage, path string, err error) error {
	return &IOError{Stage: stage, Path: path, Err: err}
}

func dimErr(got, want int) error {
	return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, got, want)
}
