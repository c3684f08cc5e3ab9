package command

import (
	"context"
	"errors"
	"net/http"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-gradspeech/core"
	"github.com/stripe/stripe-go/v79"
)

type stubProcessor struct {
	storeFn func(context.Context, core.CheckoutCompletion) (core.CompletionOutcome, error)
}

func (s stubProcessor) Store(ctx context.Context, in core.CheckoutCompletion) (core.CompletionOutcome, error) {
	return s.storeFn(ctx, in)
}

type stubMarker struct {
	markFn func(context.Context, string) (core.CompletionRecord, error)
}

func (s stubMarker) MarkProcessed(ctx context.Context, id string) (core.CompletionRecord, error) {
	return s.markFn(ctx, id)
}

func TestStoreCompletionCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	cmd := NewStoreCompletionCommand(stubProcessor{
		storeFn: func(_ context.Context, in core.CheckoutCompletion) (core.CompletionOutcome, error) {
			called = true
			if in.EventID != "evt_1" || in.Session.ID != "cs_1" {
				t.Fatalf("unexpected completion: %#v", in)
			}
			return core.CompletionOutcome{Stored: true, Record: core.CompletionRecord{ID: "rec_1"}}, nil
		},
	})

	collector := gocmd.NewResult[core.CompletionOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := cmd.Execute(ctx, StoreCompletionMessage{Completion: core.CheckoutCompletion{
		EventID: "evt_1",
		Session: &stripe.CheckoutSession{ID: "cs_1"},
	}})
	if err != nil {
		t.Fatalf("execute store completion: %v", err)
	}
	if !called {
		t.Fatalf("expected processor invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if !result.Stored || result.Record.ID != "rec_1" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestStoreCompletionCommand_RejectsMissingSession(t *testing.T) {
	cmd := NewStoreCompletionCommand(stubProcessor{
		storeFn: func(context.Context, core.CheckoutCompletion) (core.CompletionOutcome, error) {
			t.Fatalf("processor must not be called for invalid messages")
			return core.CompletionOutcome{}, nil
		},
	})
	err := cmd.Execute(context.Background(), StoreCompletionMessage{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected bad input envelope, got %v", err)
	}
}

func TestMarkProcessedCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	cmd := NewMarkProcessedCommand(stubMarker{
		markFn: func(_ context.Context, id string) (core.CompletionRecord, error) {
			if id != "rec_1" {
				t.Fatalf("unexpected record id %q", id)
			}
			return core.CompletionRecord{ID: id, Processed: true}, nil
		},
	})
	collector := gocmd.NewResult[core.CompletionRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := cmd.Execute(ctx, MarkProcessedMessage{RecordID: "rec_1"}); err != nil {
		t.Fatalf("execute mark processed: %v", err)
	}
	record, ok := collector.Load()
	if !ok || !record.Processed {
		t.Fatalf("expected processed record result, got %#v", record)
	}
}

func TestMarkProcessedCommand_PropagatesMarkerError(t *testing.T) {
	expected := errors.New("store down")
	cmd := NewMarkProcessedCommand(stubMarker{
		markFn: func(context.Context, string) (core.CompletionRecord, error) {
			return core.CompletionRecord{}, expected
		},
	})
	if err := cmd.Execute(context.Background(), MarkProcessedMessage{RecordID: "rec_1"}); !errors.Is(err, expected) {
		t.Fatalf("expected marker error, got %v", err)
	}
}

func TestMarkProcessedMessage_ValidateReturnsRichError(t *testing.T) {
	err := (MarkProcessedMessage{RecordID: " "}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "record_id" {
		t.Fatalf("expected record_id validation field, got %#v", validation)
	}
}

func TestCommands_NilDependenciesReturnRichError(t *testing.T) {
	var store *StoreCompletionCommand
	var mark *MarkProcessedCommand
	for name, err := range map[string]error{
		"store": store.Execute(context.Background(), StoreCompletionMessage{}),
		"mark":  mark.Execute(context.Background(), MarkProcessedMessage{}),
	} {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ErrorInternal {
			t.Fatalf("%s: expected internal dependency error, got %q/%q", name, rich.Category, rich.TextCode)
		}
	}
}
