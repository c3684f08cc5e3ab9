package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-gradspeech/core"
)

type CompletionMarker interface {
	MarkProcessed(ctx context.Context, id string) (core.CompletionRecord, error)
}

type StoreCompletionCommand struct {
	processor core.CompletionProcessor
}

func NewStoreCompletionCommand(processor core.CompletionProcessor) *StoreCompletionCommand {
	return &StoreCompletionCommand{processor: processor}
}

func (c *StoreCompletionCommand) Execute(ctx context.Context, msg StoreCompletionMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: completion processor is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.processor.Store(ctx, msg.Completion)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MarkProcessedCommand struct {
	marker CompletionMarker
}

func NewMarkProcessedCommand(marker CompletionMarker) *MarkProcessedCommand {
	return &MarkProcessedCommand{marker: marker}
}

func (c *MarkProcessedCommand) Execute(ctx context.Context, msg MarkProcessedMessage) error {
	if c == nil || c.marker == nil {
		return commandDependencyError("command: completion marker is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.marker.MarkProcessed(ctx, msg.RecordID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// storeResult hands the command output to a gocmd result collector when the
// caller attached one to ctx.
func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
