package library

import (
	"errors"
	"fmt"
)

// ErrParse is matched by every manifest parsing failure.
var ErrParse = errors.New("malformed manifest")

// ParseError locates a manifest defect. Episode and Recommendation are
// zero-based; -1 means the defect is not tied to that level.
type ParseError struct {
	Episode        int
	Recommendation int
	Msg            string
	Err            error
}

func (e *ParseError) Error() string {
	loc := ""
	switch {
	case e.Recommendation >= 0:
		loc = fmt.Sprintf(" at episode %d recommendation %d", e.Episode, e.Recommendation)
	case e.Episode >= 0:
		loc = fmt.Sprintf(" at episode %d", e.Episode)
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed manifest%s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("malformed manifest%s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }
