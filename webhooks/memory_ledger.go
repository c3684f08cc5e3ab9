package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDeliveryLedger is a process-local DeliveryLedger for single-instance
// deployments and tests.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]*DeliveryRecord
	claims  map[string]string
	Now     func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		records: map[string]*DeliveryRecord{},
		claims:  map[string]string{},
	}
}

func (l *MemoryDeliveryLedger) Claim(
	_ context.Context,
	providerID string,
	deliveryID string,
	_ []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: provider id and delivery id are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureMaps()

	now := l.now()
	leaseUntil := now.Add(lease)
	key := deliveryKey(providerID, deliveryID)
	record, exists := l.records[key]
	if !exists {
		record = &DeliveryRecord{
			ID:         uuid.NewString(),
			ProviderID: providerID,
			DeliveryID: deliveryID,
			CreatedAt:  now,
		}
		l.records[key] = record
	} else if !Claimable(*record, now) {
		return *record, false, nil
	}

	if record.ClaimID != "" {
		delete(l.claims, record.ClaimID)
	}
	record.ClaimID = uuid.NewString()
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.LeaseExpiresAt = &leaseUntil
	record.UpdatedAt = now
	l.claims[record.ClaimID] = key
	return *record, true, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[deliveryKey(strings.TrimSpace(providerID), strings.TrimSpace(deliveryID))]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %q not found for provider %q", deliveryID, providerID)
	}
	return *record, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.claimed(claimID)
	if err != nil {
		return err
	}
	record.Status = DeliveryStatusProcessed
	record.LeaseExpiresAt = nil
	record.NextAttemptAt = nil
	record.LastError = ""
	record.UpdatedAt = l.now()
	return nil
}

func (l *MemoryDeliveryLedger) Fail(
	_ context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.claimed(claimID)
	if err != nil {
		return err
	}
	record.Status = FailureStatus(record.Attempts, maxAttempts)
	if cause != nil {
		record.LastError = cause.Error()
	}
	next := nextAttemptAt.UTC()
	record.NextAttemptAt = &next
	record.LeaseExpiresAt = nil
	record.UpdatedAt = l.now()
	return nil
}

func (l *MemoryDeliveryLedger) claimed(claimID string) (*DeliveryRecord, error) {
	key, ok := l.claims[strings.TrimSpace(claimID)]
	if !ok {
		return nil, fmt.Errorf("webhooks: claim %q not found", claimID)
	}
	record := l.records[key]
	if record == nil || record.ClaimID != strings.TrimSpace(claimID) {
		return nil, fmt.Errorf("webhooks: claim %q is no longer held", claimID)
	}
	return record, nil
}

func (l *MemoryDeliveryLedger) ensureMaps() {
	if l.records == nil {
		l.records = map[string]*DeliveryRecord{}
	}
	if l.claims == nil {
		l.claims = map[string]string{}
	}
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Claimable reports whether an existing ledger record may be claimed again at
// now. Retry-ready and dead deliveries are always claimable because the
// provider, not the ledger, schedules redelivery.
func Claimable(record DeliveryRecord, now time.Time) bool {
	switch record.Status {
	case DeliveryStatusProcessed:
		return false
	case DeliveryStatusProcessing:
		return record.LeaseExpiresAt != nil && !now.Before(*record.LeaseExpiresAt)
	default:
		return true
	}
}

// FailureStatus returns the status a failed claim moves to after attempts.
func FailureStatus(attempts int, maxAttempts int) string {
	if maxAttempts > 0 && attempts >= maxAttempts {
		return DeliveryStatusDead
	}
	return DeliveryStatusRetryReady
}

func deliveryKey(providerID string, deliveryID string) string {
	return providerID + "\x00" + deliveryID
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
