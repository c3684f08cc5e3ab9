package query

import "strings"

const (
	TypeGetCompletion = "gradspeech.query.completion.get"
	TypeListPending   = "gradspeech.query.completion.list_pending"

	MaxPendingLimit = 500
)

// GetCompletionMessage looks a record up by the preview id the web client
// holds.
type GetCompletionMessage struct {
	PreviewID string
}

func (GetCompletionMessage) Type() string { return TypeGetCompletion }

func (m GetCompletionMessage) Validate() error {
	if strings.TrimSpace(m.PreviewID) == "" {
		return queryValidationError("preview_id", "preview id is required")
	}
	return nil
}

type ListPendingMessage struct {
	Limit int
}

func (ListPendingMessage) Type() string { return TypeListPending }

func (m ListPendingMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Limit > MaxPendingLimit {
		return queryValidationError("limit", "limit must be <= 500")
	}
	return nil
}
