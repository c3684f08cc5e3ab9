package command

import (
	"strings"

	"github.com/goliatone/go-gradspeech/core"
)

const (
	TypeStoreCompletion = "gradspeech.command.completion.store"
	TypeMarkProcessed   = "gradspeech.command.completion.mark_processed"
)

// StoreCompletionMessage carries a verified checkout completion.
type StoreCompletionMessage struct {
	Completion core.CheckoutCompletion
}

func (StoreCompletionMessage) Type() string { return TypeStoreCompletion }

func (m StoreCompletionMessage) Validate() error {
	if m.Completion.Session == nil {
		return commandValidationError("session", "checkout session is required")
	}
	if strings.TrimSpace(m.Completion.Session.ID) == "" {
		return commandValidationError("session.id", "checkout session id is required")
	}
	return nil
}

// MarkProcessedMessage flags a completion record as consumed by the speech
// generator.
type MarkProcessedMessage struct {
	RecordID string
}

func (MarkProcessedMessage) Type() string { return TypeMarkProcessed }

func (m MarkProcessedMessage) Validate() error {
	if strings.TrimSpace(m.RecordID) == "" {
		return commandValidationError("record_id", "record id is required")
	}
	return nil
}
