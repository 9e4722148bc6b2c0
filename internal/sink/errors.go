package sink

import (
	"errors"
	"fmt"
)

// ErrPersistence matches every failure to write or read persisted logs.
var ErrPersistence = errors.New("sink: persistence failure")

// PersistenceError reports an I/O failure. Records passed to the failing
// call may be partially written; the caller decides whether to retry.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sink: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sink: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
