package gocommand

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	gradcommand "github.com/goliatone/go-gradspeech/command"
	"github.com/goliatone/go-gradspeech/core"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "gradspeech.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "gradspeech.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type queueMessage struct{}

func (queueMessage) Type() string { return "gradspeech.command.queue" }

type stubCompletions struct {
	mu      sync.Mutex
	records map[string]core.CompletionRecord
}

func newStubCompletions(records ...core.CompletionRecord) *stubCompletions {
	out := &stubCompletions{records: map[string]core.CompletionRecord{}}
	for _, record := range records {
		out.records[record.ID] = record
	}
	return out
}

func (s *stubCompletions) MarkProcessed(_ context.Context, id string) (core.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return core.CompletionRecord{}, core.NewRecordNotFoundError("missing " + id)
	}
	now := time.Now().UTC()
	record.Processed = true
	record.ProcessedAt = &now
	s.records[id] = record
	return record, nil
}

func (s *stubCompletions) GetByPreviewID(_ context.Context, previewID string) (core.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.PreviewID == previewID {
			return record, nil
		}
	}
	return core.CompletionRecord{}, core.NewRecordNotFoundError("missing preview " + previewID)
}

func (s *stubCompletions) ListPending(_ context.Context, _ int) ([]core.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.CompletionRecord{}
	for _, record := range s.records {
		if !record.Processed {
			out = append(out, record)
		}
	}
	return out, nil
}

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(gradcommand.MarkProcessedMessage{}); err == nil {
		t.Fatalf("expected blank record id to fail validation")
	}
}

func TestCompletionHandlers_DispatchThroughBus(t *testing.T) {
	completions := newStubCompletions(core.CompletionRecord{ID: "rec_1", PreviewID: "ab12cd34"})
	bus := NewBus(command.NewRegistry())
	defer bus.Close()

	if err := RegisterCompletionHandlers(bus, CompletionHandlers{Marker: completions, Reader: completions}); err != nil {
		t.Fatalf("register completion handlers: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	pending, err := ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending record, got %d", len(pending))
	}

	record, err := MarkProcessed(context.Background(), "rec_1")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !record.Processed {
		t.Fatalf("expected processed record from dispatch")
	}

	found, err := GetCompletion(context.Background(), "ab12cd34")
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if !found.Processed {
		t.Fatalf("expected query to observe processed flag")
	}

	if _, err := MarkProcessed(context.Background(), "rec_missing"); err == nil {
		t.Fatalf("expected not found error through dispatch")
	}
}

func TestQueueMirrorWiring(t *testing.T) {
	bus := NewBus(command.NewRegistry())
	defer bus.Close()
	queueRegistry := jobqueuecommand.NewRegistry()

	if err := bus.MirrorToQueue("queue", queueRegistry); err != nil {
		t.Fatalf("mirror to queue: %v", err)
	}
	if !bus.HasResolver("queue") {
		t.Fatalf("expected queue resolver to be registered")
	}
	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })
	if err := RegisterCommand(bus, cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("gradspeech.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestRegisterCommand_RequiresBusAndCommand(t *testing.T) {
	cmd := command.CommandFunc[okMessage](func(context.Context, okMessage) error { return nil })
	if err := RegisterCommand[okMessage](nil, cmd); err == nil {
		t.Fatalf("expected missing bus error")
	}
	if err := RegisterCommand[okMessage](NewBus(nil), nil); err == nil {
		t.Fatalf("expected missing command error")
	}
}
