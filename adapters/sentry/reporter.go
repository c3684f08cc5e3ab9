package sentry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goliatone/go-gradspeech/core"
	"github.com/google/uuid"
)

// Reporter sends captured errors to Sentry. Each capture runs in its own
// scope so tags and contexts never leak between requests.
type Reporter struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
}

type Config struct {
	DSN          string
	Environment  string
	Release      string
	FlushTimeout time.Duration
	// BeforeSend is passed through to the client options.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

func NewReporter(cfg Config) (*Reporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         strings.TrimSpace(cfg.DSN),
		Environment: strings.TrimSpace(cfg.Environment),
		Release:     strings.TrimSpace(cfg.Release),
		BeforeSend:  cfg.BeforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry: new client: %w", err)
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = 2 * time.Second
	}
	return &Reporter{
		hub:          sentry.NewHub(client, sentry.NewScope()),
		flushTimeout: flush,
	}, nil
}

// Capture returns the Sentry event id, or a generated uuid when the event was
// dropped, so callers always have an id to hand back.
func (r *Reporter) Capture(ctx context.Context, err error, report core.ErrorReport) string {
	if err == nil {
		return ""
	}
	hub := r.hubFor(ctx)
	if hub == nil {
		return uuid.NewString()
	}
	var eventID *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(report.Tags)
		extras := map[string]any{}
		for key, value := range report.Context {
			if nested, ok := value.(map[string]any); ok {
				scope.SetContext(key, sentry.Context(nested))
				continue
			}
			extras[key] = value
		}
		if len(extras) > 0 {
			scope.SetContext("webhook", sentry.Context(extras))
		}
		eventID = hub.CaptureException(err)
	})
	if eventID == nil || *eventID == "" {
		return uuid.NewString()
	}
	return string(*eventID)
}

// Flush waits for queued events up to the configured timeout.
func (r *Reporter) Flush() bool {
	if r == nil || r.hub == nil {
		return true
	}
	return r.hub.Flush(r.flushTimeout)
}

func (r *Reporter) hubFor(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	if r == nil || r.hub == nil {
		return nil
	}
	return r.hub.Clone()
}

var _ core.ErrorReporter = (*Reporter)(nil)
