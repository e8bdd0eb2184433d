package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrThreadClosed       = errors.New("thread is closed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStorage            = errors.New("storage failure")
	ErrStorageUnavailable = errors.New("storage service is not configured")
)

// StorageError wraps an I/O failure from the persistence layer. Callers must
// treat the operation as not applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
