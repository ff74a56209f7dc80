package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrSessionLinked     = errors.New("session already linked to an appointment")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ConflictError reports a refused write together with every appointment
// that competes for the requested slot.
type ConflictError struct {
	Competing []*Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("appointment conflicts with %d existing appointment(s)", len(e.Competing))
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
