package transform

import "fmt"

// TransformError is fatal for the whole file: the source could not be read,
// the query was rejected or failed, or no row at all validated. Sibling
// files in the same import are unaffected.
type TransformError struct {
	Stage string // "read", "load", "query", "validate"
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// RowError describes a single output row that failed canonical validation.
// Row errors never abort a batch on their own.
type RowError struct {
	Row    int // 1-based position in the transform output
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}
