package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced by the import pipeline. Typed errors below match
// their kind with errors.Is.
var (
	ErrParse               = errors.New("invalid csv")
	ErrNormalization       = errors.New("normalization failed")
	ErrTokenLimit          = errors.New("token limit exceeded")
	ErrContactLimit        = errors.New("contact limit exceeded")
	ErrResolutionCancelled = errors.New("import cancelled")
	ErrPersistence         = errors.New("persistence failed")

	ErrImportNotFound   = errors.New("import not found")
	ErrImportInProgress = errors.New("import already in progress")
	ErrTooManyImports   = errors.New("too many imports in progress")
	ErrInvalidDecision  = errors.New("invalid decision")
	ErrContactNotFound  = errors.New("contact not found")
)

// ParseError wraps a CSV read failure.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ContactLimitError reports how many more contacts the user may store.
type ContactLimitError struct {
	Current   int
	Incoming  int
	Max       int
	Available int
}

func (e *ContactLimitError) Error() string {
	return fmt.Sprintf("contact limit exceeded: %d stored + %d incoming > %d (available slots: %d)",
		e.Current, e.Incoming, e.Max, e.Available)
}

func (e *ContactLimitError) Is(target error) bool { return target == ErrContactLimit }

// NormalizationError is the fatal outcome of an import in which every row
// failed to normalize. Errors holds the first row failures.
type NormalizationError struct {
	Rows   int
	Errors []string
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("normalization failed for all %d rows", e.Rows)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

// TokenLimitError reports a payload that cannot fit its budget.
type TokenLimitError struct {
	Op     Operation
	Tokens int
	Limit  int
}

func (e *TokenLimitError) Error() string {
	return fmt.Sprintf("token limit exceeded: %s needs %d tokens, limit %d", e.Op, e.Tokens, e.Limit)
}

func (e *TokenLimitError) Is(target error) bool { return target == ErrTokenLimit }

// PersistenceError reports a failed store write. Saved counts contacts
// committed before the failure.
type PersistenceError struct {
	Op    string
	Saved int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %s (%d saved before failure): %v", e.Op, e.Saved, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// RowError formats a recoverable per-row failure. row is 1-based.
func RowError(row int, err error) string {
	return fmt.Sprintf("Row %d: %v", row, err)
}
