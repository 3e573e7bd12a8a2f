package decision

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for requests missing a required field.
	ErrInvalidRequest = errors.New("invalid authorization request")

	// ErrUnavailable is returned when a decision cannot be reached
	// (store failure, deadline). It is never a denial.
	ErrUnavailable = errors.New("authorization unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// RequestError names the missing or malformed request field.
type RequestError struct {
	Field string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrInvalidRequest, e.Field)
}

func (e *RequestError) Unwrap() error { return ErrInvalidRequest }

// UnavailableError wraps the underlying failure with the stage it happened in.
// It matches both ErrUnavailable and the cause under errors.Is.
type UnavailableError struct {
	Stage string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrUnavailable, e.Stage, e.Err)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

func unavailable(stage string, err error) error {
	return &UnavailableError{Stage: stage, Err: err}
}
