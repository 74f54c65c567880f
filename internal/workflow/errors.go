// internal/workflow/errors.go
package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyExhausted is returned by a policy that has nothing left to do.
	// The workflow aborts every open tab and stops.
	ErrPolicyExhausted = errors.New("policy exhausted")
	// ErrInvalidRevert reports a revert outside the recorded history, or one
	// attempted while history is disabled.
	ErrInvalidRevert = errors.New("invalid revert")
	// ErrQuit reports use of a workflow after Quit.
	ErrQuit = errors.New("workflow has quit")
)

// Error is the single error kind leaving the public Workflow entry points.
// The underlying fault stays reachable through errors.Is and errors.As.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workflow %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap attaches op to err unless it already is an *Error.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		return err
	}
	return &Error{Op: op, Err: err}
}
