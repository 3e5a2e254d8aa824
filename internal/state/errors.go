package state

import "errors"

// Class groups program errors by how a client should react to them.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassAuthorization
	ClassState
	ClassArithmetic
	ClassEconomic
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	case ClassState:
		return "state"
	case ClassArithmetic:
		return "arithmetic"
	case ClassEconomic:
		return "economic"
	default:
		return "unknown"
	}
}

// Error is a program error of a fixed kind. Wrap it with fmt.Errorf("%w")
// to add context; errors.Is and errors.As see through the wrapping.
type Error struct {
	Kind  string
	Class Class
	msg   string
}

func (e *Error) Error() string { return e.msg }

func newError(class Class, kind, msg string) *Error {
	return &Error{Kind: kind, Class: class, msg: msg}
}

// Validation errors.
var (
	ErrMalformedRequest    = newError(ClassValidation, "malformed_request", "malformed request")
	ErrAccountMismatch     = newError(ClassValidation, "account_mismatch", "account mismatch")
	ErrMissingSignature    = newError(ClassValidation, "missing_signature", "missing signature")
	ErrInvalidSignature    = newError(ClassValidation, "invalid_signature", "invalid signature")
	ErrInvalidDescription  = newError(ClassValidation, "invalid_description", "invalid description")
	ErrInvalidPreferences  = newError(ClassValidation, "invalid_preferences", "invalid preferences")
	ErrInvalidSocialLink   = newError(ClassValidation, "invalid_social_link", "invalid social link")
	ErrInvalidName         = newError(ClassValidation, "invalid_name", "invalid name")
	ErrInvalidTicker       = newError(ClassValidation, "invalid_ticker", "invalid ticker")
	ErrInvalidImageRef     = newError(ClassValidation, "invalid_image_ref", "invalid image reference")
	ErrInvalidAmount       = newError(ClassValidation, "invalid_amount", "amount must be positive")
	ErrInvalidLaunchParams = newError(ClassValidation, "invalid_launch_params", "invalid fair launch parameters")
)

// Authorization errors.
var (
	ErrUnauthorized = newError(ClassAuthorization, "unauthorized", "unauthorized")
)

// State errors.
var (
	ErrNotFound             = newError(ClassState, "not_found", "record not found")
	ErrAlreadyExists        = newError(ClassState, "already_exists", "record already exists")
	ErrAlreadyFulfilled     = newError(ClassState, "already_fulfilled", "mystery box already fulfilled")
	ErrExpired              = newError(ClassState, "expired", "fulfillment deadline passed")
	ErrNotExpired           = newError(ClassState, "not_expired", "fulfillment deadline not reached")
	ErrInactive             = newError(ClassState, "inactive", "record is inactive")
	ErrInvalidPhase         = newError(ClassState, "invalid_phase", "operation not allowed in current phase")
	ErrNotYetEligible       = newError(ClassState, "not_yet_eligible", "fair launch not yet eligible for finalization")
	ErrTickerTaken          = newError(ClassState, "ticker_taken", "ticker already registered")
	ErrDuplicateTransaction = newError(ClassState, "duplicate_transaction", "transaction already processed")
)

// Arithmetic errors.
var (
	ErrOverflow = newError(ClassArithmetic, "overflow", "arithmetic overflow")
)

// Economic errors.
var (
	ErrSlippageExceeded    = newError(ClassEconomic, "slippage_exceeded", "slippage limit exceeded")
	ErrCapExceeded         = newError(ClassEconomic, "cap_exceeded", "allocation cap exceeded")
	ErrInsufficientBalance = newError(ClassEconomic, "insufficient_balance", "insufficient balance")
	ErrInsufficientReserve = newError(ClassEconomic, "insufficient_reserve", "insufficient reserve")
	ErrAmountTooSmall      = newError(ClassEconomic, "amount_too_small", "amount too small to buy any tokens")
)

// AsError returns the program error inside err, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Classify returns the class of a program error, or ClassUnknown for
// anything else (storage failures, encoding bugs).
func Classify(err error) Class {
	if pe, ok := AsError(err); ok {
		return pe.Class
	}
	return ClassUnknown
}

// Retryable reports whether the same request may succeed later without
// changes, purely because time passes.
func Retryable(err error) bool {
	return errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrNotYetEligible) ||
		errors.Is(err, ErrNotExpired)
}
