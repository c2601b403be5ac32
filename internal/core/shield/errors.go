package shield

import (
	"errors"
	"fmt"
)

var (
	ErrStaleObservation = errors.New("no observed value")
	ErrNoExecutor       = errors.New("shield: no remote executor")
)

// NormalizationError is returned when a raw value cannot be canonicalized
// for the resource it belongs to.
type NormalizationError struct {
	ResourceID string
	Value      any
	Err        error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize %s: invalid value %v: %s", e.ResourceID, e.Value, e.Err)
	}
	return fmt.Sprintf("normalize %s: invalid value %v", e.ResourceID, e.Value)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// DispatchError reports that the remote system did not accept a command.
type DispatchError struct {
	CommandID string
	Name      string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s (%s): %s", e.Name, e.CommandID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
