package models

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the failure results returned by the core.
type ErrorKind string

const (
	KindInsufficientHistory      ErrorKind = "INSUFFICIENT_HISTORY"
	KindNotEnoughData            ErrorKind = "NOT_ENOUGH_DATA"
	KindFeatureSchemaMismatch    ErrorKind = "FEATURE_SCHEMA_MISMATCH"
	KindFeatureComputationFailed ErrorKind = "FEATURE_COMPUTATION_FAILED"
	KindScalerNotFit             ErrorKind = "SCALER_NOT_FIT"
	KindNoCandidateModel         ErrorKind = "NO_CANDIDATE_MODEL"
	KindCapitalExhausted         ErrorKind = "CAPITAL_EXHAUSTED"
	KindPositionNotFound         ErrorKind = "POSITION_NOT_FOUND"
	KindPositionAlreadyClosed    ErrorKind = "POSITION_ALREADY_CLOSED"
	KindStoreUnavailable         ErrorKind = "STORE_UNAVAILABLE"
	KindPriceUnavailable         ErrorKind = "PRICE_UNAVAILABLE"
	KindBundleVersionMismatch    ErrorKind = "BUNDLE_VERSION_MISMATCH"
	KindInvalidConfig            ErrorKind = "INVALID_CONFIG"
	KindNoActiveBundle           ErrorKind = "NO_ACTIVE_BUNDLE"
	KindUnknown                  ErrorKind = "UNKNOWN"
)

// Error is a kinded failure. Two errors are equal under errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInsufficientHistory      = &Error{Kind: KindInsufficientHistory}
	ErrNotEnoughData            = &Error{Kind: KindNotEnoughData}
	ErrFeatureSchemaMismatch    = &Error{Kind: KindFeatureSchemaMismatch}
	ErrFeatureComputationFailed = &Error{Kind: KindFeatureComputationFailed}
	ErrScalerNotFit             = &Error{Kind: KindScalerNotFit}
	ErrNoCandidateModel         = &Error{Kind: KindNoCandidateModel}
	ErrCapitalExhausted         = &Error{Kind: KindCapitalExhausted}
	ErrPositionNotFound         = &Error{Kind: KindPositionNotFound}
	ErrPositionAlreadyClosed    = &Error{Kind: KindPositionAlreadyClosed}
	ErrStoreUnavailable         = &Error{Kind: KindStoreUnavailable}
	ErrPriceUnavailable         = &Error{Kind: KindPriceUnavailable}
	ErrBundleVersionMismatch    = &Error{Kind: KindBundleVersionMismatch}
	ErrInvalidConfig            = &Error{Kind: KindInvalidConfig}
	ErrNoActiveBundle           = &Error{Kind: KindNoActiveBundle}
)

// Errorf creates a kinded error with a formatted message.
func Errorf(kind ErrorKind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// WrapError attaches a kind and message to an underlying error.
func WrapError(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
