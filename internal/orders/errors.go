package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrVersionConflict   = errors.New("order was modified concurrently")
	ErrForbidden         = errors.New("order not visible to viewer")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError is malformed input rejected before any state mutation.
type ValidationError struct {
	Fields []string
	Msg    string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return e.Err }

type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move payment status from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
