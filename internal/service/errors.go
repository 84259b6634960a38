package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/leadflow/backend/internal/models"
)

type ErrorKind string

const (
	KindNoEligibleConsultants      ErrorKind = "NO_ELIGIBLE_CONSULTANTS"
	KindNoSkillMatch               ErrorKind = "NO_SKILL_MATCH"
	KindCriticalSkillsUnavailable  ErrorKind = "CRITICAL_SKILLS_UNAVAILABLE"
	KindConsultantNoLongerEligible ErrorKind = "CONSULTANT_NO_LONGER_ELIGIBLE"
	KindInvalidReassignment        ErrorKind = "INVALID_REASSIGNMENT"
	KindTimeout                    ErrorKind = "TIMEOUT"
	KindStoreUnavailable           ErrorKind = "STORE_UNAVAILABLE"
	KindNotFound                   ErrorKind = "NOT_FOUND"
)

// Error is the typed failure returned by selection, the ledger and the
// aggregator. Skills carries skill names for the skill related kinds.
type Error struct {
	Kind    ErrorKind
	Message string
	Skills  []string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if len(e.Skills) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Skills, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable is true only for failures that may succeed with the same input.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindStoreUnavailable
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the kind of a typed error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a typed error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// storeError classifies an error coming back from a collaborator store.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), eris.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: op + " timed out", Err: err}
	case errors.Is(err, models.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: op + ": not found", Err: err}
	case errors.Is(err, models.ErrConsultantUnavailable):
		return &Error{Kind: KindConsultantNoLongerEligible, Message: "consultant is no longer eligible", Err: err}
	default:
		return &Error{Kind: KindStoreUnavailable, Message: op + " failed", Err: err}
	}
}
