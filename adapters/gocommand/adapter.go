package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	gradcommand "github.com/goliatone/go-gradspeech/command"
	"github.com/goliatone/go-gradspeech/core"
	gradquery "github.com/goliatone/go-gradspeech/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Bus registers gradspeech commands and queries with a go-command registry
// and the process-wide dispatcher. Close drops every subscription it made.
type Bus struct {
	registry *command.Registry

	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// MirrorToQueue mirrors every registered command into a go-job queue registry
// when the bus is initialized, so the same handlers can run from a worker.
func (b *Bus) MirrorToQueue(key string, queueRegistry *jobqueuecommand.Registry) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (b *Bus) HasResolver(key string) bool {
	if b == nil || b.registry == nil {
		return false
	}
	return b.registry.HasResolver(strings.TrimSpace(key))
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.Initialize()
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subscriptions := b.subscriptions
	b.subscriptions = nil
	b.mu.Unlock()
	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

func (b *Bus) track(subscription commanddispatcher.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = append(b.subscriptions, subscription)
}

// RegisterCommand subscribes cmd on the dispatcher and records it in the
// registry. A registry failure undoes the subscription.
func RegisterCommand[T any](b *Bus, cmd command.Commander[T], runnerOpts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := b.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.track(subscription)
	return nil
}

func RegisterQuery[T any, R any](b *Bus, qry command.Querier[T, R], runnerOpts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := b.registry.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.track(subscription)
	return nil
}

// CompletionHandlers are the services behind the completion commands and
// queries. Nil members are skipped.
type CompletionHandlers struct {
	Processor core.CompletionProcessor
	Marker    gradcommand.CompletionMarker
	Reader    core.CompletionReader
}

func RegisterCompletionHandlers(b *Bus, handlers CompletionHandlers) error {
	if handlers.Processor != nil {
		if err := RegisterCommand(b, gradcommand.NewStoreCompletionCommand(handlers.Processor)); err != nil {
			return fmt.Errorf("gocommand: register store completion: %w", err)
		}
	}
	if handlers.Marker != nil {
		if err := RegisterCommand(b, gradcommand.NewMarkProcessedCommand(handlers.Marker)); err != nil {
			return fmt.Errorf("gocommand: register mark processed: %w", err)
		}
	}
	if handlers.Reader != nil {
		if err := RegisterQuery(b, gradquery.NewGetCompletionQuery(handlers.Reader)); err != nil {
			return fmt.Errorf("gocommand: register get completion: %w", err)
		}
		if err := RegisterQuery(b, gradquery.NewListPendingQuery(handlers.Reader)); err != nil {
			return fmt.Errorf("gocommand: register list pending: %w", err)
		}
	}
	return nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// MarkProcessed dispatches a MarkProcessedMessage and returns the record the
// command produced.
func MarkProcessed(ctx context.Context, recordID string) (core.CompletionRecord, error) {
	collector := command.NewResult[core.CompletionRecord]()
	if err := Dispatch(command.ContextWithResult(ctx, collector), gradcommand.MarkProcessedMessage{RecordID: recordID}); err != nil {
		return core.CompletionRecord{}, err
	}
	record, ok := collector.Load()
	if !ok {
		return core.CompletionRecord{}, fmt.Errorf("gocommand: mark processed produced no result")
	}
	return record, nil
}

func GetCompletion(ctx context.Context, previewID string) (core.CompletionRecord, error) {
	return Query[gradquery.GetCompletionMessage, core.CompletionRecord](ctx, gradquery.GetCompletionMessage{PreviewID: previewID})
}

func ListPending(ctx context.Context, limit int) ([]core.CompletionRecord, error) {
	return Query[gradquery.ListPendingMessage, []core.CompletionRecord](ctx, gradquery.ListPendingMessage{Limit: limit})
}
