// Package arenaerr defines the error taxonomy shared by every arena operation.
//
// Every failure surfaced by an operation is an *Error carrying a Kind (what
// class of failure it is) and a machine-readable Code. Operations abort
// atomically on any error; nothing here is retried.
package arenaerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindUnknown matches any kind when used in a comparison target.
	KindUnknown Kind = iota
	// KindAuthorization is a wrong signer or a derivation mismatch.
	KindAuthorization
	// KindState is an operation that is invalid for the current record state.
	KindState
	// KindValidation is a malformed or out-of-range parameter.
	KindValidation
	// KindNotFound is a missing account record.
	KindNotFound
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Code is a machine-readable error code.
type Code string

const (
	CodeNotEnoughHealth         Code = "NOT_ENOUGH_HEALTH"
	CodeInvalidVrfAuthority     Code = "INVALID_VRF_AUTHORITY"
	CodeMaxResultExceedsMaximum Code = "MAX_RESULT_EXCEEDS_MAXIMUM"
	CodeInvalidVrfAccount       Code = "INVALID_VRF_ACCOUNT"
	CodeInvalidOracleAccount    Code = "INVALID_ORACLE_ACCOUNT"
	CodeArithmeticOverflow      Code = "ARITHMETIC_OVERFLOW"
	CodeArithmeticUnderflow     Code = "ARITHMETIC_UNDERFLOW"
	CodeAlreadyInitialized      Code = "ALREADY_INITIALIZED"
	CodeAccountNotFound         Code = "ACCOUNT_NOT_FOUND"
	CodeInsufficientFunds       Code = "INSUFFICIENT_FUNDS"
	CodeAuthorityMismatch       Code = "AUTHORITY_MISMATCH"
	CodeSeedsMismatch           Code = "SEEDS_MISMATCH"
	CodeInvalidSeeds            Code = "INVALID_SEEDS"
	CodeInvalidSignature        Code = "INVALID_SIGNATURE"
	CodeOwnerMismatch           Code = "OWNER_MISMATCH"
	CodeInvalidMetadata         Code = "INVALID_METADATA"
	CodeInvalidAccountData      Code = "INVALID_ACCOUNT_DATA"
	CodeInvalidArgument         Code = "INVALID_ARGUMENT"
	CodeNonceReused             Code = "NONCE_REUSED"
)

// Error is a labeled operation failure.
type Error struct {
	Kind     Kind
	Code     Code
	Message  string
	Metadata map[string]string
	cause    error
}

// Error returns "<CODE>: <message>".
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Code. A target with
// KindUnknown and an empty Code matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	if t.Kind != KindUnknown && t.Kind != e.Kind {
		return false
	}
	return t.Code == e.Code
}

// WithMeta returns a copy of e carrying the extra key/value pair.
func (e *Error) WithMeta(key, value string) *Error {
	out := *e
	out.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return &out
}

// New builds an *Error with a formatted message.
func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that wraps cause.
func Wrap(kind Kind, code Code, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Authorization builds a KindAuthorization error.
func Authorization(code Code, format string, args ...any) *Error {
	return New(KindAuthorization, code, format, args...)
}

// State builds a KindState error.
func State(code Code, format string, args ...any) *Error {
	return New(KindState, code, format, args...)
}

// Validation builds a KindValidation error.
func Validation(code Code, format string, args ...any) *Error {
	return New(KindValidation, code, format, args...)
}

// NotFound builds a KindNotFound error for the given record.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, CodeAccountNotFound, format, args...)
}

// Sentinels for errors.Is comparisons.
var (
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrState         = &Error{Kind: KindState}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}

	ErrNotEnoughHealth         = &Error{Kind: KindState, Code: CodeNotEnoughHealth, Message: "not enough health"}
	ErrInvalidVrfAuthority     = &Error{Kind: KindAuthorization, Code: CodeInvalidVrfAuthority, Message: "oracle feed authority must be the client state address"}
	ErrMaxResultExceedsMaximum = &Error{Kind: KindValidation, Code: CodeMaxResultExceedsMaximum, Message: "max result out of range"}
	ErrInvalidVrfAccount       = &Error{Kind: KindAuthorization, Code: CodeInvalidVrfAccount, Message: "invalid oracle feed account"}
	ErrArithmeticOverflow      = &Error{Kind: KindState, Code: CodeArithmeticOverflow, Message: "arithmetic overflow"}
	ErrArithmeticUnderflow     = &Error{Kind: KindState, Code: CodeArithmeticUnderflow, Message: "arithmetic underflow"}
	ErrAlreadyInitialized      = &Error{Kind: KindState, Code: CodeAlreadyInitialized, Message: "account already initialized"}
	ErrInsufficientFunds       = &Error{Kind: KindState, Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrNonceReused             = &Error{Kind: KindState, Code: CodeNonceReused, Message: "request nonce already used"}
)

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the Code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
