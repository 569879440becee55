package history

import (
	"errors"
	"fmt"
)

// LookupError reports a reference to an artifact or version that does not
// exist.
type LookupError struct {
	Name   string
	Reason string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s: %s", e.Name, e.Reason)
}

func lookupErr(name fmt.Stringer, reason string) error {
	return &LookupError{Name: name.String(), Reason: reason}
}

// IsLookupError reports whether err is or wraps a *LookupError.
func IsLookupError(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}

var (
	// ErrNoPending is returned when an operation needs a pending slot that is empty.
	ErrNoPending = errors.New("no pending version")

	// ErrPendingExists is returned when a pending slot is already occupied.
	ErrPendingExists = errors.New("pending version already exists")
)
