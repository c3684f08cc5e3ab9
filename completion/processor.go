// Package completion turns verified checkout completions into durable
// completion records and schedules speech generation for them.
package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/core"
	"github.com/stripe/stripe-go/v79"
)

const (
	JobIDGenerateSpeech = "speech.generate"

	ReasonPaymentIncomplete = "payment_incomplete"
)

// CustomerEmailLookup resolves a customer's email when the session carries
// only a customer id.
type CustomerEmailLookup interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

type Processor struct {
	store     core.CompletionStore
	jobs      core.JobEnqueuer
	lookup    CustomerEmailLookup
	telemetry core.Telemetry
	now       func() time.Time
}

type Option func(*Processor)

func WithJobEnqueuer(jobs core.JobEnqueuer) Option {
	return func(p *Processor) {
		p.jobs = jobs
	}
}

func WithCustomerLookup(lookup CustomerEmailLookup) Option {
	return func(p *Processor) {
		p.lookup = lookup
	}
}

func WithTelemetry(telemetry core.Telemetry) Option {
	return func(p *Processor) {
		p.telemetry = telemetry
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(store core.CompletionStore, opts ...Option) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("completion: store is required")
	}
	p := &Processor{
		store: store,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Store writes the completion record for a paid session. Sessions that are
// not settled are skipped without error. A session already on file returns
// the stored record with Duplicate set.
func (p *Processor) Store(ctx context.Context, in core.CheckoutCompletion) (core.CompletionOutcome, error) {
	if p == nil {
		return core.CompletionOutcome{}, fmt.Errorf("completion: processor is not configured")
	}
	startedAt := time.Now()
	outcome, err := p.persist(ctx, in)
	p.telemetry.ObserveOperation(ctx, startedAt, "completion.store", err, map[string]any{
		"event_id":   in.EventID,
		"session_id": sessionID(in),
		"record_id":  outcome.Record.ID,
		"outcome":    outcomeLabel(outcome),
	})
	return outcome, err
}

func (p *Processor) persist(ctx context.Context, in core.CheckoutCompletion) (core.CompletionOutcome, error) {
	if p == nil || p.store == nil {
		return core.CompletionOutcome{}, fmt.Errorf("completion: processor is not configured")
	}
	session := in.Session
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return core.CompletionOutcome{}, core.NewMalformedEventError("completion: checkout session is required", nil)
	}
	if !Paid(session) {
		return core.CompletionOutcome{Reason: ReasonPaymentIncomplete}, nil
	}

	formData, err := FormData(session)
	if err != nil {
		return core.CompletionOutcome{}, err
	}
	recordID := RecordID(session.ID)
	now := p.now()
	record := core.CompletionRecord{
		ID:            recordID,
		PreviewID:     PreviewID(session, recordID),
		SessionID:     strings.TrimSpace(session.ID),
		EventID:       strings.TrimSpace(in.EventID),
		CustomerEmail: p.resolveEmail(ctx, session),
		FormData:      formData,
		Processed:     false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	stored, created, err := p.store.Insert(ctx, record)
	if err != nil {
		return core.CompletionOutcome{}, core.NewDownstreamError("completion: store record: "+err.Error(), err)
	}
	if !created {
		return core.CompletionOutcome{Record: stored, Duplicate: true}, nil
	}

	outcome := core.CompletionOutcome{Record: stored, Stored: true}
	outcome.JobQueued = p.enqueue(ctx, stored)
	return outcome, nil
}

// MarkProcessed flags a record once its speech has been generated.
func (p *Processor) MarkProcessed(ctx context.Context, id string) (core.CompletionRecord, error) {
	if p == nil || p.store == nil {
		return core.CompletionRecord{}, fmt.Errorf("completion: processor is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.CompletionRecord{}, fmt.Errorf("completion: record id is required")
	}
	return p.store.MarkProcessed(ctx, id, p.now())
}

func (p *Processor) resolveEmail(ctx context.Context, session *stripe.CheckoutSession) string {
	if email := CustomerEmail(session); email != "" {
		return email
	}
	id := customerID(session)
	if p.lookup == nil || id == "" {
		return ""
	}
	email, err := p.lookup.CustomerEmail(ctx, id)
	if err != nil {
		p.telemetry.Warn(ctx, "customer email lookup failed", map[string]any{
			"customer_id": id,
			"error":       err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(email)
}

func (p *Processor) enqueue(ctx context.Context, record core.CompletionRecord) bool {
	if p.jobs == nil {
		return false
	}
	err := p.jobs.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: JobIDGenerateSpeech,
		Parameters: map[string]any{
			"record_id":  record.ID,
			"preview_id": record.PreviewID,
			"session_id": record.SessionID,
		},
		IdempotencyKey: record.ID,
		DedupPolicy:    "drop",
	})
	if err != nil {
		// The record stays unprocessed and is still picked up by the pending sweep.
		p.telemetry.Warn(ctx, "speech job enqueue failed", map[string]any{
			"record_id": record.ID,
			"error":     err.Error(),
		})
		return false
	}
	return true
}

func sessionID(in core.CheckoutCompletion) string {
	if in.Session == nil {
		return ""
	}
	return in.Session.ID
}

func outcomeLabel(outcome core.CompletionOutcome) string {
	switch {
	case outcome.Stored:
		return "stored"
	case outcome.Duplicate:
		return "duplicate"
	case outcome.Reason != "":
		return outcome.Reason
	default:
		return "none"
	}
}

var _ core.CompletionProcessor = (*Processor)(nil)
