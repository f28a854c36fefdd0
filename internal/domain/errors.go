package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("concurrent update conflict")

	ErrProviderFailure = errors.New("generation provider failed")

	ErrPaymentNotConfigured = errors.New("payment processor not configured")
	ErrCaptureNotCompleted  = errors.New("payment capture not completed")
	ErrProcessorError       = errors.New("payment processor error")
	ErrOrderAlreadyCaptured = errors.New("order already captured")
)

// ProviderFailure is returned when a reserved generation could not be delivered.
// It matches ErrProviderFailure under errors.Is and exposes the provider's cause via Unwrap.
type ProviderFailure struct {
	AttemptID string
	Kind      string
	Refunded  bool
	// Balance is the best-effort post-compensation balance; nil when it could not be read.
	Balance *int64
	Err     error
}

func (e *ProviderFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", ErrProviderFailure, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %v", ErrProviderFailure, e.Kind, e.Err)
}

func (e *ProviderFailure) Is(target error) bool {
	return target == ErrProviderFailure
}

func (e *ProviderFailure) Unwrap() error {
	return e.Err
}
