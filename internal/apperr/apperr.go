// Package apperr carries the error taxonomy shared by handlers and services.
// Every error that reaches a handler maps to one HTTP status; anything
// unclassified is treated as an upstream failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"chainbill-backend/internal/infra/logging"

	"github.com/gin-gonic/gin"
)

type Kind int

const (
	KindAuth Kind = iota
	KindForbidden
	KindReplay
	KindValidation
	KindNotFound
	KindConflict
	KindVerification
	KindUpstream
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Authf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Replayf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindReplay, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Verificationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindVerification, Message: fmt.Sprintf(format, args...)}
}

func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindReplay:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindVerification:
		// On-chain proof failed: an expected outcome, not a server fault.
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// Respond writes the error as the structured JSON shape all endpoints share.
// Internal details of upstream failures are not leaked to clients; the cause
// is logged here instead, since masking would otherwise erase it entirely.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	msg := "internal server error"
	var ae *Error
	if errors.As(err, &ae) && status != http.StatusInternalServerError {
		msg = ae.Message
	} else {
		logging.Logger.WithError(err).
			WithFields(map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			}).Error("upstream failure")
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// Abort is Respond plus request abortion, for use inside middleware.
func Abort(c *gin.Context, err error) {
	Respond(c, err)
	c.Abort()
}
