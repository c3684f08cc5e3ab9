package completion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-gradspeech/core"
)

// MemoryStore keeps completion records in process memory. It enforces the
// same uniqueness on session id as the SQL store.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]core.CompletionRecord
	bySession map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      map[string]core.CompletionRecord{},
		bySession: map[string]string{},
	}
}

func (s *MemoryStore) Insert(_ context.Context, record core.CompletionRecord) (core.CompletionRecord, bool, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.SessionID = strings.TrimSpace(record.SessionID)
	if record.ID == "" || record.SessionID == "" {
		return core.CompletionRecord{}, false, fmt.Errorf("completion: record id and session id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySession[record.SessionID]; ok {
		return cloneRecord(s.byID[id]), false, nil
	}
	if _, ok := s.byID[record.ID]; ok {
		return core.CompletionRecord{}, false, fmt.Errorf("completion: record %s already exists for another session", record.ID)
	}
	record.FormData = core.CopyFormData(record.FormData)
	s.byID[record.ID] = record
	s.bySession[record.SessionID] = record.ID
	return cloneRecord(record), true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (core.CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.CompletionRecord{}, core.NewRecordNotFoundError(fmt.Sprintf("completion: record %q not found", id))
	}
	return cloneRecord(record), nil
}

func (s *MemoryStore) GetByPreviewID(_ context.Context, previewID string) (core.CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	previewID = strings.TrimSpace(previewID)
	for _, record := range s.byID {
		if record.PreviewID == previewID {
			return cloneRecord(record), nil
		}
	}
	return core.CompletionRecord{}, core.NewRecordNotFoundError(fmt.Sprintf("completion: preview %q not found", previewID))
}

func (s *MemoryStore) GetBySessionID(_ context.Context, sessionID string) (core.CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySession[strings.TrimSpace(sessionID)]
	if !ok {
		return core.CompletionRecord{}, core.NewRecordNotFoundError(fmt.Sprintf("completion: session %q not found", sessionID))
	}
	return cloneRecord(s.byID[id]), nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, id string, processedAt time.Time) (core.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.CompletionRecord{}, core.NewRecordNotFoundError(fmt.Sprintf("completion: record %q not found", id))
	}
	if !record.Processed {
		at := processedAt.UTC()
		record.Processed = true
		record.ProcessedAt = &at
		record.UpdatedAt = at
		s.byID[record.ID] = record
	}
	return cloneRecord(record), nil
}

func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]core.CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CompletionRecord, 0)
	for _, record := range s.byID {
		if !record.Processed {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneRecord(record core.CompletionRecord) core.CompletionRecord {
	record.FormData = core.CopyFormData(record.FormData)
	if record.ProcessedAt != nil {
		at := *record.ProcessedAt
		record.ProcessedAt = &at
	}
	return record
}

var _ core.CompletionStore = (*MemoryStore)(nil)
