package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ErrorReport carries the tags and structured context attached to a
// captured error.
type ErrorReport struct {
	Tags    map[string]string
	Context map[string]any
}

// ErrorReporter forwards errors to an external tracker and returns the
// tracking id callers can quote back to support.
type ErrorReporter interface {
	Capture(ctx context.Context, err error, report ErrorReport) string
}

// InboundRequest is the transport-neutral view of a webhook delivery. Body is
// the exact byte sequence received; signatures are computed over it.
type InboundRequest struct {
	Method   string
	Path     string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// CompletionProcessor persists the outcome of a completed checkout. The
// ingestion handler calls it at most once per verified delivery and never
// retries.
type CompletionProcessor interface {
	Store(ctx context.Context, completion CheckoutCompletion) (CompletionOutcome, error)
}

type CompletionStore interface {
	// Insert stores record unless one already exists for its session id, in
	// which case the existing record is returned with created=false.
	Insert(ctx context.Context, record CompletionRecord) (stored CompletionRecord, created bool, err error)
	Get(ctx context.Context, id string) (CompletionRecord, error)
	GetByPreviewID(ctx context.Context, previewID string) (CompletionRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (CompletionRecord, error)
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) (CompletionRecord, error)
	ListPending(ctx context.Context, limit int) ([]CompletionRecord, error)
}

type CompletionReader interface {
	GetByPreviewID(ctx context.Context, previewID string) (CompletionRecord, error)
	ListPending(ctx context.Context, limit int) ([]CompletionRecord, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}
