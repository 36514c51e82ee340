package queue

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup for a row that does not exist.
var ErrNotFound = errors.New("not found")

// ErrBadTransition reports an attempt to move a job against the
// one-directional status lifecycle.
var ErrBadTransition = errors.New("illegal status transition")

// ErrStaleWrite reports a project save whose base timestamp is older than
// the stored row. The caller lost a last-write-wins race and should
// reload before retrying.
var ErrStaleWrite = errors.New("stale project write")

func badTransition(id string, from, to Status) error {
	return fmt.Errorf("job %s: %s to %s: %w", id, from, to, ErrBadTransition)
}
