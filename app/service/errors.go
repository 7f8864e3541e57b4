package service

import (
	"errors"
	"strings"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrValidationFailed     = errors.New("validation failed")
	ErrProviderRejected     = errors.New("provider rejected the document")
	ErrProviderUnsupported  = errors.New("provider is not supported")
	ErrAlreadyBilled        = errors.New("transaction already billed")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrCreditNoteNotPending = errors.New("credit note is not pending")
	ErrTransactionNotFound  = errors.New("transaction not found")
)

// ValidationError carries the field-level reasons of a local validation
// failure.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return ErrValidationFailed.Error() + ": " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
