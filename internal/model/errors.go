package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed sum type of error.md §7's error taxonomy.
type ErrorKind string

const (
	ErrProjectNotFound      ErrorKind = "PROJECT_NOT_FOUND"
	ErrAgentNotRegistered   ErrorKind = "AGENT_NOT_REGISTERED"
	ErrPolicyBlocked        ErrorKind = "POLICY_BLOCKED"
	ErrContactPending       ErrorKind = "CONTACT_PENDING"
	ErrLinkRequired         ErrorKind = "LINK_REQUIRED"
	ErrClaimConflict        ErrorKind = "CLAIM_CONFLICT"
	ErrInvalidArgument      ErrorKind = "INVALID_ARGUMENT"
	ErrTimeout              ErrorKind = "TIMEOUT"
	ErrIndexArchiveMismatch ErrorKind = "INDEX_ARCHIVE_MISMATCH"
)

// Error is the error type every engine operation returns on failure. It
// always carries a stable Kind so callers across the MCP and web surfaces
// can render a consistent error shape without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string   // offending field/entity name, if applicable
	Names   []string // offending agent names, if applicable (policy/link errors)
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an *Error with the given kind and formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches an offending field name and returns e for chaining.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithNames attaches the offending agent names and returns e for chaining.
func (e *Error) WithNames(names ...string) *Error {
	e.Names = names
	return e
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a *Error,
// or returns "" otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
