package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Telemetry bundles the logger and metrics recorder shared by the webhook
// components. A zero Telemetry is valid and discards everything.
type Telemetry struct {
	Logger  Logger
	Metrics MetricsRecorder
	Prefix  string
}

func NewTelemetry(logger Logger, metrics MetricsRecorder) Telemetry {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return Telemetry{
		Logger:  glog.Ensure(logger),
		Metrics: metrics,
		Prefix:  "webhook",
	}
}

// ObserveOperation records a counter and a duration histogram for operation
// and logs its outcome.
func (t Telemetry) ObserveOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	contextFields := cloneFields(fields)
	contextFields["operation"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"event_type", "mode", "outcome"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	t.IncCounter(ctx, operation+".total", 1, tags)
	t.ObserveHistogram(ctx, operation+".duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)

	if err != nil {
		t.Log(ctx, "error", operation+" failed", contextFields)
		return
	}
	t.Log(ctx, "info", operation+" succeeded", contextFields)
}

func (t Telemetry) Info(ctx context.Context, message string, fields map[string]any) {
	t.Log(ctx, "info", message, fields)
}

func (t Telemetry) Warn(ctx context.Context, message string, fields map[string]any) {
	t.Log(ctx, "warn", message, fields)
}

func (t Telemetry) Error(ctx context.Context, message string, fields map[string]any) {
	t.Log(ctx, "error", message, fields)
}

// Log writes message at level with fields redacted for secrets.
func (t Telemetry) Log(ctx context.Context, level string, message string, fields map[string]any) {
	if t.Logger == nil {
		return
	}
	logger := t.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	safe := RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(safe))
	}
	args := flattenFields(safe)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (t Telemetry) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if t.Metrics == nil {
		return
	}
	t.Metrics.IncCounter(ctx, t.metricName(name), value, cloneTags(tags))
}

func (t Telemetry) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if t.Metrics == nil {
		return
	}
	t.Metrics.ObserveHistogram(ctx, t.metricName(name), value, cloneTags(tags))
}

func (t Telemetry) metricName(name string) string {
	name = strings.TrimSpace(name)
	prefix := strings.TrimSpace(t.Prefix)
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
