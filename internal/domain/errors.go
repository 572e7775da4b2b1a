package domain

import (
	"fmt"
	"strings"
)

// Stage identifies where in a cycle an error surfaced.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTransform Stage = "transform"
	StagePersist   Stage = "persist"
	StageDone      Stage = "done"
)

// NetworkError covers transport failures: DNS, refused connections,
// timeouts and truncated bodies.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is returned for any non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string // first bytes of the response, for diagnosis
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// SchemaMismatchError means the payload header lacks one or more columns the
// ColumnSpec requires. It usually signals upstream format drift.
type SchemaMismatchError struct {
	Missing []string
	Header  []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: missing column(s) %s", strings.Join(e.Missing, ", "))
}

// RowTruncatedError describes a single data row with too few fields. It is
// reported per row and never fails a cycle.
type RowTruncatedError struct {
	Line   int // 1-based line number in the payload
	Fields int
	Want   int
}

func (e RowTruncatedError) Error() string {
	return fmt.Sprintf("line %d: row has %d field(s), need at least %d", e.Line, e.Fields, e.Want)
}

// RowDelimiterError describes a data row whose projected value contains the
// output delimiter and would add fields to the artifact. Like
// RowTruncatedError it skips the row without failing the cycle.
type RowDelimiterError struct {
	Line   int    // 1-based line number in the payload
	Column string // output column holding the offending value
}

func (e RowDelimiterError) Error() string {
	return fmt.Sprintf("line %d: value for %s contains %q", e.Line, e.Column, outputDelimiter)
}

// PersistError wraps a failure to write or replace the output artifact. The
// previous artifact is left untouched.
type PersistError struct {
	Path string
	Op   string // "create", "write", "sync", "chmod", "rename"
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
