package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-gradspeech/core"
)

type GetCompletionQuery struct {
	reader core.CompletionReader
}

func NewGetCompletionQuery(reader core.CompletionReader) *GetCompletionQuery {
	return &GetCompletionQuery{reader: reader}
}

func (q *GetCompletionQuery) Query(ctx context.Context, msg GetCompletionMessage) (core.CompletionRecord, error) {
	if q == nil || q.reader == nil {
		return core.CompletionRecord{}, queryDependencyError("query: completion reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.CompletionRecord{}, err
	}
	return q.reader.GetByPreviewID(ctx, strings.TrimSpace(msg.PreviewID))
}

type ListPendingQuery struct {
	reader core.CompletionReader
}

func NewListPendingQuery(reader core.CompletionReader) *ListPendingQuery {
	return &ListPendingQuery{reader: reader}
}

// Query returns unprocessed records oldest first. A zero limit uses the
// store default.
func (q *ListPendingQuery) Query(ctx context.Context, msg ListPendingMessage) ([]core.CompletionRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: completion reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListPending(ctx, msg.Limit)
}
