package repository

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imyashkale/mcphub/internal/database"
	"github.com/imyashkale/mcphub/internal/logger"
)

// Re-export errors from database package so callers only depend on repository
var (
	ErrNotFound      = database.ErrNotFound
	ErrAlreadyExists = database.ErrAlreadyExists
)

var (
	// ErrMultipleRows is returned when a single-row lookup matches more than one row
	ErrMultipleRows = errors.New("multiple rows returned for a single-row query")
	// ErrInvalidStatus is returned for a status outside active|inactive|deprecated
	ErrInvalidStatus = errors.New("invalid server status")
	// ErrImmutableField is returned when a caller tries to change id or ownerId
	ErrImmutableField = errors.New("field is immutable")
)

// StoreError is the normalized failure of a store operation. Panics raised
// by the store are recovered into a StoreError as well.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// guard runs fn and normalizes every failure into a *StoreError. Nothing
// escapes as a panic.
func guard[T any](op string, fields logrus.Fields, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = &StoreError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			entry := logger.WithFields(fields).WithField("operation", op).WithError(err)
			if errors.Is(err, ErrNotFound) {
				entry.Debug("Store operation found nothing")
			} else {
				entry.Error("Store operation failed")
			}
		}
	}()

	result, err = fn()
	if err != nil {
		var se *StoreError
		if !errors.As(err, &se) {
			err = &StoreError{Op: op, Err: err}
		}
	}
	return result, err
}
