package service

import (
	"errors"
	"fmt"
)

// The engine reports failures through five error types. Callers classify
// them with errors.As or the Is* helpers; errors.Is(err, &NotFoundError{})
// also matches any NotFoundError.

// ValidationError reports malformed input, a cross-tenant reference or an
// invalid status value.
type ValidationError struct {
	Message string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// UnauthorizedError reports a failed role or subscription predicate.
type UnauthorizedError struct {
	Message string
}

func NewUnauthorizedError(format string, args ...any) *UnauthorizedError {
	return &UnauthorizedError{Message: fmt.Sprintf(format, args...)}
}

func (e *UnauthorizedError) Error() string { return e.Message }

func (e *UnauthorizedError) Is(target error) bool {
	_, ok := target.(*UnauthorizedError)
	return ok
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ConflictError reports a lost race for a conversation or a transition the
// conversation's current state does not allow.
type ConflictError struct {
	Message string
	Err     error
}

func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// ExternalServiceError reports an unreachable or misbehaving dependency such
// as the AI model or the messaging orchestrator.
type ExternalServiceError struct {
	Service string
	Err     error
}

func NewExternalServiceError(svc string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: svc, Err: err}
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service error: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Is(target error) bool {
	_, ok := target.(*ExternalServiceError)
	return ok
}

func IsValidation(err error) bool      { return errors.Is(err, &ValidationError{}) }
func IsUnauthorized(err error) bool    { return errors.Is(err, &UnauthorizedError{}) }
func IsNotFound(err error) bool        { return errors.Is(err, &NotFoundError{}) }
func IsConflict(err error) bool        { return errors.Is(err, &ConflictError{}) }
func IsExternalService(err error) bool { return errors.Is(err, &ExternalServiceError{}) }
