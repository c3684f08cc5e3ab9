package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-gradspeech/core"
)

type stubCompletionReader struct {
	getFn  func(context.Context, string) (core.CompletionRecord, error)
	listFn func(context.Context, int) ([]core.CompletionRecord, error)
}

func (s stubCompletionReader) GetByPreviewID(ctx context.Context, previewID string) (core.CompletionRecord, error) {
	return s.getFn(ctx, previewID)
}

func (s stubCompletionReader) ListPending(ctx context.Context, limit int) ([]core.CompletionRecord, error) {
	return s.listFn(ctx, limit)
}

func TestGetCompletionQuery_QueryDelegates(t *testing.T) {
	q := NewGetCompletionQuery(stubCompletionReader{
		getFn: func(_ context.Context, previewID string) (core.CompletionRecord, error) {
			if previewID != "ab12cd34" {
				t.Fatalf("expected trimmed preview id, got %q", previewID)
			}
			return core.CompletionRecord{ID: "rec_1", PreviewID: previewID}, nil
		},
	})
	record, err := q.Query(context.Background(), GetCompletionMessage{PreviewID: " ab12cd34 "})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if record.ID != "rec_1" {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestGetCompletionQuery_PropagatesNotFound(t *testing.T) {
	q := NewGetCompletionQuery(stubCompletionReader{
		getFn: func(context.Context, string) (core.CompletionRecord, error) {
			return core.CompletionRecord{}, core.NewRecordNotFoundError("missing")
		},
	})
	_, err := q.Query(context.Background(), GetCompletionMessage{PreviewID: "nope"})
	if core.HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d (%v)", core.HTTPStatus(err), err)
	}
}

func TestListPendingQuery_QueryDelegates(t *testing.T) {
	q := NewListPendingQuery(stubCompletionReader{
		listFn: func(_ context.Context, limit int) ([]core.CompletionRecord, error) {
			if limit != 25 {
				t.Fatalf("unexpected limit %d", limit)
			}
			return []core.CompletionRecord{{ID: "a"}, {ID: "b"}}, nil
		},
	})
	records, err := q.Query(context.Background(), ListPendingMessage{Limit: 25})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two records, got %d", len(records))
	}
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := map[string]struct {
		err   error
		field string
	}{
		"blank preview":  {err: (GetCompletionMessage{}).Validate(), field: "preview_id"},
		"negative limit": {err: (ListPendingMessage{Limit: -1}).Validate(), field: "limit"},
		"limit too high": {err: (ListPendingMessage{Limit: MaxPendingLimit + 1}).Validate(), field: "limit"},
	}
	for name, tc := range cases {
		var rich *goerrors.Error
		if !goerrors.As(tc.err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, tc.err)
		}
		if rich.TextCode != core.ErrorBadInput || rich.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected envelope %q/%d", name, rich.TextCode, rich.Code)
		}
		validation := rich.AllValidationErrors()
		if len(validation) == 0 || validation[0].Field != tc.field {
			t.Fatalf("%s: expected %s validation field, got %#v", name, tc.field, validation)
		}
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var get *GetCompletionQuery
	_, err := get.Query(context.Background(), GetCompletionMessage{PreviewID: "x"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}

	var list *ListPendingQuery
	if _, err := list.Query(context.Background(), ListPendingMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}
