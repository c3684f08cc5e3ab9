package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const defaultPendingLimit = 100

// CompletionStore persists completion records in pending_form_data. The
// stripe_session_id column is unique, so concurrent inserts for one session
// collapse onto a single row.
type CompletionStore struct {
	db   *bun.DB
	repo repository.Repository[*completionRecord]
	now  func() time.Time
}

func NewCompletionStore(db *bun.DB) (*CompletionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*completionRecord](db, completionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid completion repository wiring: %w", err)
		}
	}
	return &CompletionStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *CompletionStore) Insert(ctx context.Context, in core.CompletionRecord) (core.CompletionRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.CompletionRecord{}, false, fmt.Errorf("sqlstore: completion store is not configured")
	}
	in.ID = strings.TrimSpace(in.ID)
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.PreviewID = strings.TrimSpace(in.PreviewID)
	if in.ID == "" || in.SessionID == "" {
		return core.CompletionRecord{}, false, fmt.Errorf("sqlstore: record id and session id are required")
	}

	record := newCompletionRecord(in, s.now())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if !isUniqueViolation(err) {
			return core.CompletionRecord{}, false, err
		}
		existing, getErr := s.GetBySessionID(ctx, in.SessionID)
		if getErr != nil {
			return core.CompletionRecord{}, false, fmt.Errorf("sqlstore: resolve existing record for session %q: %w", in.SessionID, getErr)
		}
		return existing, false, nil
	}
	return created.toDomain(), true, nil
}

func (s *CompletionStore) Get(ctx context.Context, id string) (core.CompletionRecord, error) {
	return s.findOne(ctx, "id", id)
}

func (s *CompletionStore) GetByPreviewID(ctx context.Context, previewID string) (core.CompletionRecord, error) {
	return s.findOne(ctx, "preview_id", previewID)
}

func (s *CompletionStore) GetBySessionID(ctx context.Context, sessionID string) (core.CompletionRecord, error) {
	return s.findOne(ctx, "stripe_session_id", sessionID)
}

// MarkProcessed flips processed once. Marking an already processed record
// returns it unchanged.
func (s *CompletionStore) MarkProcessed(ctx context.Context, id string, processedAt time.Time) (core.CompletionRecord, error) {
	if s == nil || s.repo == nil {
		return core.CompletionRecord{}, fmt.Errorf("sqlstore: completion store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	record, err := s.findRecord(ctx, "id", trimmedID)
	if err != nil {
		return core.CompletionRecord{}, err
	}
	if record.Processed {
		return record.toDomain(), nil
	}
	at := processedAt.UTC()
	record.Processed = true
	record.ProcessedAt = &at
	record.UpdatedAt = at
	if _, err := s.repo.Update(ctx, record, repository.UpdateByID(trimmedID)); err != nil {
		return core.CompletionRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *CompletionStore) ListPending(ctx context.Context, limit int) ([]core.CompletionRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: completion store is not configured")
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("processed", "=", false),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.CompletionRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *CompletionStore) findOne(ctx context.Context, column string, value string) (core.CompletionRecord, error) {
	record, err := s.findRecord(ctx, column, value)
	if err != nil {
		return core.CompletionRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *CompletionStore) findRecord(ctx context.Context, column string, value string) (*completionRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: completion store is not configured")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, core.NewRecordNotFoundError(fmt.Sprintf("sqlstore: completion %s is required", column))
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy(column, "=", value),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.NewRecordNotFoundError(
			fmt.Sprintf("sqlstore: completion record not found for %s %q", column, value),
		)
	}
	return records[0], nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
