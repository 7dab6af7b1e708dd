package driver

import (
	"errors"
	"fmt"
)

var ErrUnknownDirectoryGroup = errors.New("unknown directory group")

// UnknownDirectoryGroupError names a requested target that no record of the
// compilation database declares as its working directory.
type UnknownDirectoryGroupError struct {
	Target string
	Known  int // number of groups the database does declare
}

func (e *UnknownDirectoryGroupError) Error() string {
	return fmt.Sprintf("%s: %s (database declares %d groups)", ErrUnknownDirectoryGroup, e.Target, e.Known)
}

func (e *UnknownDirectoryGroupError) Unwrap() error { return ErrUnknownDirectoryGroup }
