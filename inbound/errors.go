package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-gradspeech/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundConfiguration(message string, field string) error {
	return inboundError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.ErrorConfiguration,
		map[string]any{"field": field},
	)
}

func inboundAuthentication(source error, message string, metadata map[string]any) error {
	return inboundWrapError(
		source,
		goerrors.CategoryAuth,
		message,
		http.StatusBadRequest,
		core.ErrorAuthentication,
		metadata,
	)
}

func inboundMalformed(source error, message string, metadata map[string]any) error {
	return inboundWrapError(
		source,
		goerrors.CategoryBadInput,
		message,
		http.StatusBadRequest,
		core.ErrorMalformedEvent,
		metadata,
	)
}

func inboundInFlight(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryConflict,
		http.StatusConflict,
		core.ErrorDeliveryInFlight,
		metadata,
	)
}

func inboundInternal(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.ErrorInternal,
		metadata,
	)
}

// rejection is a locally handled failure: message is returned to the caller
// verbatim with status, and cause is what gets reported. Deferred rejections
// ask the provider to redeliver and are logged, not reported.
type rejection struct {
	status   int
	message  string
	cause    error
	deferred bool
}

func reject(message string, cause error) error {
	return &rejection{
		status:  core.HTTPStatus(cause),
		message: message,
		cause:   cause,
	}
}

func deferDelivery(message string, cause error) error {
	return &rejection{
		status:   core.HTTPStatus(cause),
		message:  message,
		cause:    cause,
		deferred: true,
	}
}

func (r *rejection) Error() string {
	return r.message
}

func (r *rejection) Unwrap() error {
	return r.cause
}
