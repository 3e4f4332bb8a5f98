package dag

import (
	"errors"
	"fmt"
)

// IdOverflowError reports that a group ran out of IDs. The process must be
// restarted with a fresh group definition; there is no recovery.
type IdOverflowError struct {
	Group Group
}

func (e *IdOverflowError) Error() string {
	return fmt.Sprintf("id overflow in group %s", e.Group)
}

// ErrBug tags internal invariant violations: topological order broken, or
// a not-yet-covered ID used as a parent. These are non-recoverable.
var ErrBug = errors.New("commit graph invariant violated")

func bugf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrBug}, args...)...)
}
