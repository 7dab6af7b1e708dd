package compdb

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDatabase   = errors.New("compilation database not found")
	ErrMalformedDatabase = errors.New("malformed compilation database")
)

// DatabaseError wraps load failures with the database path and, when known,
// the offending record.
type DatabaseError struct {
	Kind   error
	Path   string
	Record int // -1 when the failure is not tied to one record
	Msg    string
}

func (e *DatabaseError) Error() string {
	if e == nil {
		return ""
	}
	where := e.Path
	if e.Record >= 0 {
		where = fmt.Sprintf("%s[%d]", e.Path, e.Record)
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), where)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), where, e.Msg)
}

func (e *DatabaseError) Unwrap() error { return e.Kind }

func missing(path string) error {
	return &DatabaseError{Kind: ErrMissingDatabase, Path: path, Record: -1}
}

func malformedf(path string, record int, format string, args ...any) error {
	return &DatabaseError{Kind: ErrMalformedDatabase, Path: path, Record: record, Msg: fmt.Sprintf(format, args...)}
}
