package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure for callers and transports
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindTransientExternal ErrorKind = "transient_external"
)

// DomainError is the error type returned by the session directory and
// the reconciliation pipeline.
type DomainError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e DomainError) Unwrap() error {
	return e.cause
}

// Is matches another DomainError of the same kind. A target without a
// message matches every error of its kind.
func (e DomainError) Is(target error) bool {
	t, ok := target.(DomainError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Kind-level sentinels for errors.Is checks
var (
	ErrValidation        = DomainError{Kind: KindValidation}
	ErrNotFound          = DomainError{Kind: KindNotFound}
	ErrForbidden         = DomainError{Kind: KindForbidden}
	ErrTransientExternal = DomainError{Kind: KindTransientExternal}
)

// Session and client errors
var (
	ErrEmailRequired      = DomainError{Kind: KindValidation, Message: "email is required"}
	ErrInvalidEmail       = DomainError{Kind: KindValidation, Message: "email is not valid"}
	ErrTokenRequired      = DomainError{Kind: KindValidation, Message: "token is required"}
	ErrInvalidAlbumID     = DomainError{Kind: KindValidation, Message: "album id is not valid"}
	ErrSessionNotFound    = DomainError{Kind: KindNotFound, Message: "session not found"}
	ErrClientNotFound     = DomainError{Kind: KindNotFound, Message: "client not found"}
	ErrAlbumNotGranted    = DomainError{Kind: KindForbidden, Message: "session has no access to this album"}
	ErrAnonymousSession   = DomainError{Kind: KindForbidden, Message: "session is not linked to a client"}
	ErrCatalogNotFound    = DomainError{Kind: KindNotFound, Message: "catalog item not found"}
	ErrCatalogUnavailable = DomainError{Kind: KindTransientExternal, Message: "catalog unavailable"}
)

// Transient wraps an external failure so it is classified as retryable
func Transient(message string, cause error) error {
	if cause == nil {
		return nil
	}
	return DomainError{Kind: KindTransientExternal, Message: message, cause: cause}
}

// IsRetryable reports whether the error came from an external collaborator
// and may succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientExternal)
}

// KindOf returns the domain kind of err, or "" for unclassified errors
func KindOf(err error) ErrorKind {
	var de DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
