package core

import (
	"fmt"

	"github.com/pkg/errors"

	"gwi.com/wonderland-chat/internal/i18n"
)

var (
	// Backend failures, returned from the exchange service.
	ErrAuthentication = errors.New("authentication failed")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrBackend        = errors.New("completion backend error")
	ErrDomainBackend  = errors.New("domain backend error")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrSendInFlight         = errors.New("a message is already being sent in this conversation")
	ErrUnknownMode          = errors.New("unknown mode")
	ErrEmptyTitle           = errors.New("title cannot be empty")

	// ErrRollbackFailed marks a failed send whose user message could not be
	// removed again because the store refused the write.
	ErrRollbackFailed = errors.New("failed to roll back the sent message")
)

// StatusError carries the HTTP status a backend answered with (0 for
// transport failures) alongside the error kind it was classified as.
type StatusError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v (status %d): %v", e.Kind, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// rollbackError is a send failure followed by a failed rollback. It matches
// the send failure, ErrRollbackFailed and the store error.
type rollbackError struct {
	cause error
	err   error
}

func (e *rollbackError) Error() string {
	return fmt.Sprintf("%v; %v: %v", e.cause, ErrRollbackFailed, e.err)
}

func (e *rollbackError) Unwrap() []error {
	return []error{e.cause, ErrRollbackFailed, e.err}
}

// generalStatusError classifies a completion backend failure.
func generalStatusError(code int, err error) error {
	kind := ErrBackend
	switch code {
	case 429:
		kind = ErrQuotaExceeded
	case 401:
		kind = ErrAuthentication
	}
	return &StatusError{Kind: kind, StatusCode: code, Err: err}
}

// ErrorKind returns a stable short name for a backend failure, or "" if err
// is not one.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrDomainBackend):
		return "domain_backend"
	case errors.Is(err, ErrBackend):
		return "backend"
	default:
		return ""
	}
}

// Describe turns a send failure into the text shown next to the conversation.
func Describe(catalog *i18n.Catalog, err error) string {
	switch ErrorKind(err) {
	case "authentication":
		return catalog.T(i18n.ErrAuthentication)
	case "quota_exceeded":
		return catalog.T(i18n.ErrQuotaExceeded)
	case "domain_backend":
		return catalog.T(i18n.ErrDomainBackend)
	case "backend":
		return catalog.T(i18n.ErrBackend)
	default:
		return catalog.T(i18n.ErrSend)
	}
}
