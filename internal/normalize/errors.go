package normalize

import "fmt"

// MalformedEventError indicates a push payload that cannot be turned into an event.
// Callers log and drop it.
type MalformedEventError struct {
	Name   string
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %q event: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %q event: %s", e.Name, e.Reason)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}
