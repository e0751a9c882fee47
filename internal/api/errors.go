package api

import (
	"errors"
	"fmt"
)

// ErrGameNotFound is terminal for a session: polling and subscriptions must
// stop and the local binding is cleared.
var ErrGameNotFound = errors.New("game_not_found")

// ValidationError is a rejected action (acting out of turn or stage). Local
// state is left untouched until the next reconciliation.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string { return e.Code }

// TransientError covers network and server failures on reads or actions.
// The caller surfaces it and relies on the next scheduled trigger to retry.
type TransientError struct {
	cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.cause) }

func (e *TransientError) Unwrap() error { return e.cause }

// Transient wraps err into the transient class.
func Transient(err error) error { return &TransientError{cause: err} }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrGameNotFound)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classifyStatus maps an HTTP response to the client error taxonomy.
// 404 is the not-found class, 4xx rejections are validation, everything
// else that isn't a success is transient.
func classifyStatus(status int, code string) error {
	switch {
	case status == 404:
		return ErrGameNotFound
	case status == 400 || status == 403 || status == 409:
		if code == "" {
			code = fmt.Sprintf("rejected_%d", status)
		}
		return &ValidationError{Code: code}
	default:
		return &TransientError{cause: fmt.Errorf("unexpected status %d (%s)", status, code)}
	}
}
