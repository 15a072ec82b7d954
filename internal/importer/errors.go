package importer

import (
	"errors"
	"fmt"
)

// ErrIndexingFailed is matched by every run that aborted while indexing.
var ErrIndexingFailed = errors.New("indexing failed")

// IndexingError reports the entry whose indexing aborted a run. Catalog
// rows written before the failure remain; the import record is not advanced.
type IndexingError struct {
	ID  string
	Err error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing failed for entry %s: %v", e.ID, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

func (e *IndexingError) Is(target error) bool { return target == ErrIndexingFailed }
