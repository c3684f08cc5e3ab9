package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/webhooks"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookDeliveryStore is the durable webhooks.DeliveryLedger. Claims are
// taken with a conditional update on the previous claim id, so only one
// worker wins a reclaim race.
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
	Now  func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}

	now := s.now()
	leaseUntil := now.Add(lease)
	var out webhooks.DeliveryRecord
	claimed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.findTx(ctx, tx, providerID, deliveryID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := &webhookDeliveryRecord{
				ID:             uuid.NewString(),
				ClaimID:        uuid.NewString(),
				ProviderID:     providerID,
				DeliveryID:     deliveryID,
				Status:         webhooks.DeliveryStatusProcessing,
				Attempts:       1,
				LeaseExpiresAt: &leaseUntil,
				Payload:        append([]byte(nil), payload...),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			claimed = true
			return nil
		}

		current := existing.toDomain()
		if !webhooks.Claimable(current, now) {
			out = current
			return nil
		}

		claimID := uuid.NewString()
		result, updateErr := tx.NewUpdate().
			Model((*webhookDeliveryRecord)(nil)).
			Set("claim_id = ?", claimID).
			Set("status = ?", webhooks.DeliveryStatusProcessing).
			Set("attempts = ?", existing.Attempts+1).
			Set("lease_expires_at = ?", leaseUntil).
			Set("updated_at = ?", now).
			Where("id = ?", existing.ID).
			Where("claim_id = ?", existing.ClaimID).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			// another worker reclaimed it between the read and the update
			current.Status = webhooks.DeliveryStatusProcessing
			out = current
			return nil
		}
		existing.ClaimID = claimID
		existing.Status = webhooks.DeliveryStatusProcessing
		existing.Attempts++
		existing.LeaseExpiresAt = &leaseUntil
		existing.UpdatedAt = now
		out = existing.toDomain()
		claimed = true
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, providerID, deliveryID)
			if getErr != nil {
				return webhooks.DeliveryRecord{}, false, getErr
			}
			return existing, false, nil
		}
		return webhooks.DeliveryRecord{}, false, err
	}
	return out, claimed, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	if s == nil || s.repo == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.SelectBy("delivery_id", "=", strings.TrimSpace(deliveryID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	if len(records) == 0 {
		return webhooks.DeliveryRecord{}, fmt.Errorf(
			"sqlstore: webhook delivery not found for provider %q delivery %q",
			providerID,
			deliveryID,
		)
	}
	return records[0].toDomain(), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("last_error = ?", "").
		Set("lease_expires_at = NULL").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", strings.TrimSpace(claimID)).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireClaimed(result, claimID)
}

func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	record := &webhookDeliveryRecord{}
	if err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.claim_id = ?", claimID).
		Limit(1).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlstore: webhook delivery claim %q not found", claimID)
		}
		return err
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.FailureStatus(record.Attempts, maxAttempts)).
		Set("last_error = ?", lastError).
		Set("lease_expires_at = NULL").
		Set("next_attempt_at = ?", nextAttemptAt.UTC()).
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", claimID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireClaimed(result, claimID)
}

func (s *WebhookDeliveryStore) findTx(
	ctx context.Context,
	tx bun.Tx,
	providerID string,
	deliveryID string,
) (*webhookDeliveryRecord, error) {
	record := &webhookDeliveryRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", providerID).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (s *WebhookDeliveryStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func requireClaimed(result sql.Result, claimID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: webhook delivery claim %q is no longer held", claimID)
	}
	return nil
}
