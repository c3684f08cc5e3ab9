package core

import (
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorConstructors_AssignStableCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		textCode string
		category goerrors.Category
	}{
		{
			name:     "configuration",
			err:      NewConfigurationError("Server configuration error: Missing Stripe key"),
			status:   http.StatusInternalServerError,
			textCode: ErrorConfiguration,
			category: goerrors.CategoryInternal,
		},
		{
			name:     "authentication",
			err:      NewAuthenticationError("Webhook Error: Signature verification failed", nil),
			status:   http.StatusBadRequest,
			textCode: ErrorAuthentication,
			category: goerrors.CategoryAuth,
		},
		{
			name:     "malformed",
			err:      NewMalformedEventError("events: body is not valid JSON", errors.New("unexpected EOF")),
			status:   http.StatusBadRequest,
			textCode: ErrorMalformedEvent,
			category: goerrors.CategoryBadInput,
		},
		{
			name:     "downstream",
			err:      NewDownstreamError("completion: insert failed", errors.New("connection reset")),
			status:   http.StatusBadRequest,
			textCode: ErrorDownstream,
			category: goerrors.CategoryExternal,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, mapped.Code)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if !IsCategory(tc.err, tc.category) {
				t.Fatalf("expected category %v", tc.category)
			}
			if HTTPStatus(tc.err) != tc.status {
				t.Fatalf("expected HTTPStatus %d", tc.status)
			}
		})
	}
}

func TestMapError_PlainErrorBecomesEnvelope(t *testing.T) {
	mapped := MapError(errors.New("unexpected"))
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.Code == 0 || mapped.TextCode == "" {
		t.Fatalf("expected populated envelope, got code=%d text=%q", mapped.Code, mapped.TextCode)
	}
}

func TestHTTPStatus_NilIsOK(t *testing.T) {
	if status := HTTPStatus(nil); status != http.StatusOK {
		t.Fatalf("expected 200 for nil error, got %d", status)
	}
}
