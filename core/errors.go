package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorConfiguration    = "WEBHOOK_CONFIGURATION_ERROR"
	ErrorAuthentication   = "WEBHOOK_AUTHENTICATION_FAILED"
	ErrorMalformedEvent   = "WEBHOOK_MALFORMED_EVENT"
	ErrorDownstream       = "WEBHOOK_DOWNSTREAM_FAILED"
	ErrorRecordNotFound   = "WEBHOOK_RECORD_NOT_FOUND"
	ErrorBadInput         = "WEBHOOK_BAD_INPUT"
	ErrorInternal         = "WEBHOOK_INTERNAL_ERROR"
	ErrorDeliveryInFlight = "WEBHOOK_DELIVERY_IN_FLIGHT"
	defaultInternalError  = "An unexpected error occurred"
)

// NewConfigurationError reports a missing or invalid server configuration
// value. The message is returned to callers verbatim and must not carry
// secret material.
func NewConfigurationError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	var err *goerrors.Error
	if len(fields) > 0 {
		err = goerrors.NewValidation(message, fields...)
		err.Category = goerrors.CategoryInternal
	} else {
		err = goerrors.New(message, goerrors.CategoryInternal)
	}
	return err.
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorConfiguration)
}

func NewAuthenticationError(message string, source error) *goerrors.Error {
	return wrapOrNew(source, goerrors.CategoryAuth, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorAuthentication)
}

func NewMalformedEventError(message string, source error) *goerrors.Error {
	return wrapOrNew(source, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorMalformedEvent)
}

// NewDownstreamError wraps a failure raised after the request was accepted
// as authentic, typically by the record store.
func NewDownstreamError(message string, source error) *goerrors.Error {
	return wrapOrNew(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorDownstream)
}

func NewRecordNotFoundError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorRecordNotFound)
}

func wrapOrNew(source error, category goerrors.Category, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, category)
	}
	return goerrors.Wrap(source, category, message)
}

// MapError converts any error into a go-errors envelope with an HTTP code and
// text code populated.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

// HTTPStatus returns the status a handler should answer with for err.
func HTTPStatus(err error) int {
	mapped := MapError(err)
	if mapped == nil {
		return http.StatusOK
	}
	return mapped.Code
}

// IsCategory reports whether err carries the given go-errors category.
func IsCategory(err error, category goerrors.Category) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == category
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = defaultInternalError
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthentication
	case goerrors.CategoryNotFound:
		return ErrorRecordNotFound
	case goerrors.CategoryExternal:
		return ErrorDownstream
	default:
		return ErrorInternal
	}
}

// Stripe only distinguishes 2xx from everything else, so authentication
// failures answer 400 like any other rejected delivery.
func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput,
		goerrors.CategoryValidation,
		goerrors.CategoryAuth,
		goerrors.CategoryExternal:
		return http.StatusBadRequest
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
