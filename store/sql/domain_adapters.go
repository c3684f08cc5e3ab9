package sqlstore

import (
	"time"

	"github.com/goliatone/go-gradspeech/core"
	"github.com/goliatone/go-gradspeech/webhooks"
)

func newCompletionRecord(in core.CompletionRecord, now time.Time) *completionRecord {
	record := &completionRecord{
		ID:            in.ID,
		PreviewID:     in.PreviewID,
		SessionID:     in.SessionID,
		EventID:       in.EventID,
		CustomerEmail: in.CustomerEmail,
		FormData:      core.CopyFormData(in.FormData),
		Processed:     in.Processed,
		ProcessedAt:   cloneTimePointer(in.ProcessedAt),
		CreatedAt:     in.CreatedAt.UTC(),
		UpdatedAt:     in.UpdatedAt.UTC(),
	}
	if record.FormData == nil {
		record.FormData = map[string]any{}
	}
	if in.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if in.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	return record
}

func (r *completionRecord) toDomain() core.CompletionRecord {
	if r == nil {
		return core.CompletionRecord{}
	}
	return core.CompletionRecord{
		ID:            r.ID,
		PreviewID:     r.PreviewID,
		SessionID:     r.SessionID,
		EventID:       r.EventID,
		CustomerEmail: r.CustomerEmail,
		FormData:      core.CopyFormData(r.FormData),
		Processed:     r.Processed,
		ProcessedAt:   cloneTimePointer(r.ProcessedAt),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func (r *webhookDeliveryRecord) toDomain() webhooks.DeliveryRecord {
	if r == nil {
		return webhooks.DeliveryRecord{}
	}
	return webhooks.DeliveryRecord{
		ID:             r.ID,
		ClaimID:        r.ClaimID,
		ProviderID:     r.ProviderID,
		DeliveryID:     r.DeliveryID,
		Status:         r.Status,
		Attempts:       r.Attempts,
		LastError:      r.LastError,
		LeaseExpiresAt: cloneTimePointer(r.LeaseExpiresAt),
		NextAttemptAt:  cloneTimePointer(r.NextAttemptAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
