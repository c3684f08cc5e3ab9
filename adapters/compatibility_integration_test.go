package adapters_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	gocommandadapter "github.com/goliatone/go-gradspeech/adapters/gocommand"
	gojobadapter "github.com/goliatone/go-gradspeech/adapters/gojob"
	"github.com/goliatone/go-gradspeech/adapters/gologger"
	promadapter "github.com/goliatone/go-gradspeech/adapters/prometheus"
	gradcommand "github.com/goliatone/go-gradspeech/command"
	"github.com/goliatone/go-gradspeech/completion"
	"github.com/goliatone/go-gradspeech/core"
	"github.com/goliatone/go-gradspeech/inbound"
	"github.com/goliatone/go-gradspeech/webhooks"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const compatSecret = "whsec_compat"

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logs := &bytes.Buffer{}
	provider := gologger.NewZerologProvider(gologger.NewZerologLogger(logs, "info"))
	_, logger := gologger.Resolve("gradspeech", provider, nil)
	logger.Info("compat probe", "component", "adapters")
	if !strings.Contains(logs.String(), `"component":"adapters"`) {
		t.Fatalf("expected zerolog output through glog provider, got %s", logs.String())
	}

	enqueueProbe := &compatEnqueuer{}
	enqueueAdapter := gojobadapter.NewEnqueuerAdapter(enqueueProbe)
	if err := enqueueAdapter.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          completion.JobIDGenerateSpeech,
		ScriptPath:     "speech.generate",
		Parameters:     map[string]any{"preview_id": "prev0001"},
		IdempotencyKey: "rec_1",
		DedupPolicy:    "drop",
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	last := enqueueProbe.lastMessage()
	if last == nil || last.JobID != completion.JobIDGenerateSpeech || last.IdempotencyKey != "rec_1" {
		t.Fatalf("expected go-job message mapping through enqueuer adapter, got %#v", last)
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	bus := gocommandadapter.NewBus(command.NewRegistry())
	defer bus.Close()
	if err := bus.MirrorToQueue("queue", queueRegistry); err != nil {
		t.Fatalf("mirror to queue: %v", err)
	}
	if err := gocommandadapter.RegisterCommand(bus, command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("gradspeech.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_InboundStoresThroughCommandBus(t *testing.T) {
	ctx := context.Background()
	logs := &bytes.Buffer{}
	logger := gologger.NewZerologProvider(gologger.NewZerologLogger(logs, "info")).GetLogger("inbound")
	recorder := promadapter.NewRecorder()
	telemetry := core.NewTelemetry(logger, recorder)

	jobs := &compatEnqueuer{}
	store := completion.NewMemoryStore()
	processor, err := completion.NewProcessor(store,
		completion.WithJobEnqueuer(gojobadapter.NewEnqueuerAdapter(jobs)),
		completion.WithTelemetry(telemetry),
	)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	bus := gocommandadapter.NewBus(command.NewRegistry())
	defer bus.Close()
	if err := gocommandadapter.RegisterCompletionHandlers(bus, gocommandadapter.CompletionHandlers{
		Processor: processor,
		Marker:    processor,
		Reader:    store,
	}); err != nil {
		t.Fatalf("register completion handlers: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	cfg := core.DefaultConfig()
	cfg.Stripe.SecretKey = "sk_test_compat"
	cfg.Stripe.WebhookSecret = compatSecret
	cfg.Store.URL = "postgres://records.example.test/gradspeech"
	cfg.Store.ServiceKey = "service-role-key"

	handler, err := inbound.NewHandler(cfg, dispatchingProcessor{},
		inbound.WithDeliveryProcessor(webhooks.NewProcessor(webhooks.NewMemoryDeliveryLedger())),
		inbound.WithTelemetry(telemetry),
	)
	if err != nil {
		t.Fatalf("new inbound handler: %v", err)
	}

	body := []byte(fmt.Sprintf(
		`{"id":"evt_compat","object":"event","type":"checkout.session.completed","livemode":false,"data":{"object":{"id":%q,"object":"checkout.session","payment_status":"paid","customer_email":"grad@example.edu","metadata":{"preview_id":"prevcomp"}}}}`,
		"cs_compat",
	))
	resp := handler.Handle(ctx, core.InboundRequest{
		Method: http.MethodPost,
		Path:   "/stripe-webhook",
		Headers: map[string]string{
			"Stripe-Signature": webhooks.SignHeader(body, compatSecret, time.Now()),
		},
		Body: body,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, string(resp.Body))
	}

	record, err := gocommandadapter.GetCompletion(ctx, "prevcomp")
	if err != nil {
		t.Fatalf("get completion through bus: %v", err)
	}
	if record.ID != completion.RecordID("cs_compat") || record.Processed {
		t.Fatalf("unexpected record %#v", record)
	}
	if last := jobs.lastMessage(); last == nil || last.IdempotencyKey != record.ID {
		t.Fatalf("expected speech job for stored record, got %#v", last)
	}
	count, err := testutil.GatherAndCount(recorder.Gatherer())
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if count == 0 {
		t.Fatalf("expected webhook metrics to be recorded")
	}
	if !strings.Contains(logs.String(), `"logger":"inbound"`) {
		t.Fatalf("expected named zerolog output, got %s", logs.String())
	}
}

// dispatchingProcessor routes the handler's store call through the command
// bus.
type dispatchingProcessor struct{}

func (dispatchingProcessor) Store(ctx context.Context, in core.CheckoutCompletion) (core.CompletionOutcome, error) {
	collector := command.NewResult[core.CompletionOutcome]()
	if err := gocommandadapter.Dispatch(command.ContextWithResult(ctx, collector), gradcommand.StoreCompletionMessage{Completion: in}); err != nil {
		return core.CompletionOutcome{}, err
	}
	outcome, ok := collector.Load()
	if !ok {
		return core.CompletionOutcome{}, fmt.Errorf("store completion produced no outcome")
	}
	return outcome, nil
}

type compatMessage struct{}

func (compatMessage) Type() string { return "gradspeech.compat.command" }

type compatEnqueuer struct {
	mu   sync.Mutex
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = msg
	return nil
}

func (e *compatEnqueuer) lastMessage() *job.ExecutionMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
