package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

type DeliveryRecord struct {
	ID             string
	ClaimID        string
	ProviderID     string
	DeliveryID     string
	Status         string
	Attempts       int
	LastError      string
	LeaseExpiresAt *time.Time
	NextAttemptAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliveryLedger tracks every delivery id seen for a provider. Claim returns
// claimed=false when the delivery was already processed or is held by an
// unexpired lease. Dead deliveries stay claimable: the provider owns
// redelivery, and dead only records that attempts ran past the cap.
type DeliveryLedger interface {
	Claim(
		ctx context.Context,
		providerID string,
		deliveryID string,
		payload []byte,
		lease time.Duration,
	) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Minute
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = time.Hour
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Delivery identifies one inbound provider notification.
type Delivery struct {
	ProviderID string
	DeliveryID string
	Payload    []byte
}

// DeliveryResult describes what Process did with a delivery. Deduped means
// the delivery was already processed. InFlight means another attempt holds
// the claim and the outcome is not known yet.
type DeliveryResult struct {
	Record   DeliveryRecord
	Deduped  bool
	InFlight bool
}

// Exhausted reports whether the delivery has failed past the attempt cap.
func (r DeliveryResult) Exhausted() bool {
	return r.Record.Status == DeliveryStatusDead
}

// HandleFunc performs the side effects of a claimed delivery.
type HandleFunc func(ctx context.Context) error

// Processor runs a handler at most once per successfully processed delivery.
// Failed deliveries are released as retry_ready so the provider's next
// redelivery can claim them again.
type Processor struct {
	Ledger      DeliveryLedger
	RetryPolicy RetryPolicy
	ClaimLease  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewProcessor(ledger DeliveryLedger) *Processor {
	return &Processor{
		Ledger:      ledger,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  30 * time.Second,
		MaxAttempts: 8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, delivery Delivery, handle HandleFunc) (DeliveryResult, error) {
	if handle == nil {
		return DeliveryResult{}, fmt.Errorf("webhooks: delivery handler is required")
	}
	providerID := strings.TrimSpace(delivery.ProviderID)
	deliveryID := strings.TrimSpace(delivery.DeliveryID)
	if providerID == "" || deliveryID == "" {
		return DeliveryResult{}, fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	if p == nil || p.Ledger == nil {
		return DeliveryResult{}, handle(ctx)
	}

	record, claimed, err := p.Ledger.Claim(ctx, providerID, deliveryID, delivery.Payload, p.claimLease())
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("webhooks: claim delivery %s: %w", deliveryID, err)
	}
	if !claimed {
		if record.Status == DeliveryStatusProcessing {
			return DeliveryResult{Record: record, InFlight: true}, nil
		}
		return DeliveryResult{Record: record, Deduped: true}, nil
	}

	if err := p.run(ctx, record, handle); err != nil {
		record.Status = FailureStatus(record.Attempts, p.maxAttempts())
		if failErr := p.fail(ctx, record, err); failErr != nil {
			return DeliveryResult{Record: record}, errors.Join(err, failErr)
		}
		return DeliveryResult{Record: record}, err
	}

	if err := p.Ledger.Complete(ctx, record.ClaimID); err != nil {
		return DeliveryResult{Record: record}, fmt.Errorf("webhooks: complete delivery %s: %w", deliveryID, err)
	}
	record.Status = DeliveryStatusProcessed
	return DeliveryResult{Record: record}, nil
}

// run calls handle and releases the claim if handle panics, so the delivery
// does not stay locked until the lease expires.
func (p *Processor) run(ctx context.Context, record DeliveryRecord, handle HandleFunc) error {
	defer func() {
		if recovered := recover(); recovered != nil {
			_ = p.fail(ctx, record, fmt.Errorf("webhooks: delivery handler panic: %v", recovered))
			panic(recovered)
		}
	}()
	return handle(ctx)
}

func (p *Processor) fail(ctx context.Context, record DeliveryRecord, cause error) error {
	nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(record.Attempts))
	if err := p.Ledger.Fail(ctx, record.ClaimID, cause, nextAttemptAt, p.maxAttempts()); err != nil {
		return fmt.Errorf("webhooks: record failed delivery %s: %w", record.DeliveryID, err)
	}
	return nil
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}
