package core

import (
	"context"

	"github.com/google/uuid"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// NopErrorReporter drops errors but still hands out a tracking id so
// responses keep their shape when no tracker is configured.
type NopErrorReporter struct{}

func (NopErrorReporter) Capture(context.Context, error, ErrorReport) string {
	return uuid.NewString()
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ ErrorReporter   = NopErrorReporter{}
)
