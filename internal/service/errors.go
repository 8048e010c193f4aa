package service

import (
	"errors"
	"fmt"

	"dining-service/internal/models"
)

// Error kinds. Every typed error below unwraps to exactly one of them.
var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrPrecondition    = errors.New("precondition failed")
	ErrNotFound        = errors.New("not found")
	ErrGatewayTimeout  = errors.New("payment gateway timeout")
	ErrGatewayRejected = errors.New("payment rejected")
)

// ValidationError reports malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports an invariant violation under concurrency.
// Callers must re-fetch state before retrying.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidTransitionError is a ConflictError raised by the ticket item transition table
type InvalidTransitionError struct {
	TicketItemID string
	From         models.TicketItemStatus
	To           models.TicketItemStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("conflict: ticket item %s cannot move from %s to %s", e.TicketItemID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrConflict }

// PreconditionError reports an operation not allowed in the current lifecycle state
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "precondition failed: " + e.Reason }

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// NotFoundError reports a missing table, check, item or payment
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// GatewayTimeoutError means the charge outcome is unknown. The attempt is left
// pending verification; resolve it through Verify before any retry decision.
type GatewayTimeoutError struct {
	IdempotencyKey string
	Err            error
}

func (e *GatewayTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment %s pending verification: %v", e.IdempotencyKey, e.Err)
	}
	return fmt.Sprintf("payment %s pending verification", e.IdempotencyKey)
}

func (e *GatewayTimeoutError) Unwrap() error { return ErrGatewayTimeout }

// GatewayRejectedError is terminal for the idempotency key; a new key is required.
type GatewayRejectedError struct {
	IdempotencyKey string
	Reason         string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("payment %s rejected: %s", e.IdempotencyKey, e.Reason)
}

func (e *GatewayRejectedError) Unwrap() error { return ErrGatewayRejected }

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...interface{}) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

func precondition(format string, args ...interface{}) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}
