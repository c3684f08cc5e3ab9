package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-gradspeech/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const completionPreviewCacheKeyPrefix = "gradspeech::completion_preview::v1"

// CachedCompletionStore serves preview lookups through a read-through cache
// and invalidates the entry whenever a record changes.
type CachedCompletionStore struct {
	base  core.CompletionStore
	cache repositorycache.CacheService
}

func NewCachedCompletionStore(
	base core.CompletionStore,
	cacheService repositorycache.CacheService,
) (*CachedCompletionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base completion store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: completion cache service is required")
	}
	return &CachedCompletionStore{base: base, cache: cacheService}, nil
}

// CompletionPreviewCacheKey returns gradspeech::completion_preview::v1::<preview_id>
// with the id URL-path escaped.
func CompletionPreviewCacheKey(previewID string) (string, error) {
	previewID = strings.TrimSpace(previewID)
	if previewID == "" {
		return "", fmt.Errorf("sqlstore: preview id is required")
	}
	return completionPreviewCacheKeyPrefix + "::" + url.PathEscape(previewID), nil
}

func (s *CachedCompletionStore) Insert(ctx context.Context, record core.CompletionRecord) (core.CompletionRecord, bool, error) {
	if s == nil || s.base == nil {
		return core.CompletionRecord{}, false, fmt.Errorf("sqlstore: cached completion store is not configured")
	}
	return s.base.Insert(ctx, record)
}

func (s *CachedCompletionStore) Get(ctx context.Context, id string) (core.CompletionRecord, error) {
	if s == nil || s.base == nil {
		return core.CompletionRecord{}, fmt.Errorf("sqlstore: cached completion store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedCompletionStore) GetByPreviewID(ctx context.Context, previewID string) (core.CompletionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CompletionRecord{}, fmt.Errorf("sqlstore: cached completion store is not configured")
	}
	cacheKey, err := CompletionPreviewCacheKey(previewID)
	if err != nil {
		return core.CompletionRecord{}, err
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.CompletionRecord, error) {
		return s.base.GetByPreviewID(ctx, strings.TrimSpace(previewID))
	})
	if err != nil {
		return core.CompletionRecord{}, err
	}
	return cloneCompletion(record), nil
}

func (s *CachedCompletionStore) GetBySessionID(ctx context.Context, sessionID string) (core.CompletionRecord, error) {
	if s == nil || s.base == nil {
		return core.CompletionRecord{}, fmt.Errorf("sqlstore: cached completion store is not configured")
	}
	return s.base.GetBySessionID(ctx, sessionID)
}

func (s *CachedCompletionStore) MarkProcessed(ctx context.Context, id string, processedAt time.Time) (core.CompletionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.CompletionRecord{}, fmt.Errorf("sqlstore: cached completion store is not configured")
	}
	record, err := s.base.MarkProcessed(ctx, id, processedAt)
	if err != nil {
		return core.CompletionRecord{}, err
	}
	cacheKey, err := CompletionPreviewCacheKey(record.PreviewID)
	if err != nil {
		return record, nil
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.CompletionRecord{}, err
	}
	return record, nil
}

func (s *CachedCompletionStore) ListPending(ctx context.Context, limit int) ([]core.CompletionRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached completion store is not configured")
	}
	return s.base.ListPending(ctx, limit)
}

func cloneCompletion(record core.CompletionRecord) core.CompletionRecord {
	record.FormData = core.CopyFormData(record.FormData)
	record.ProcessedAt = cloneTimePointer(record.ProcessedAt)
	return record
}
