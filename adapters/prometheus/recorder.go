package prometheus

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/goliatone/go-gradspeech/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels are the tag keys the webhook telemetry emits. Tags outside
// the label set are dropped and missing ones are exported as "".
var DefaultLabels = []string{"operation", "status", "event_type", "mode", "outcome"}

// Recorder is a core.MetricsRecorder that lazily registers one CounterVec or
// HistogramVec per metric name. Dotted names become underscored Prometheus
// names under the namespace.
type Recorder struct {
	registry  *prom.Registry
	namespace string
	labels    []string
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		if len(labels) > 0 {
			r.labels = append([]string(nil), labels...)
		}
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithRegistry registers metrics on registry instead of a private one.
func WithRegistry(registry *prom.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		registry:   prom.NewRegistry(),
		namespace:  "gradspeech",
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Gatherer exposes the registry for promhttp.
func (r *Recorder) Gatherer() prom.Gatherer {
	return r.registry
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter := r.counter(name)
	if counter == nil {
		return
	}
	counter.WithLabelValues(r.labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram := r.histogram(name)
	if histogram == nil {
		return
	}
	histogram.WithLabelValues(r.labelValues(tags)...).Observe(value)
}

func (r *Recorder) counter(name string) *prom.CounterVec {
	fqName := r.fqName(name)
	if fqName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[fqName]; ok {
		return existing
	}
	vec := prom.NewCounterVec(prom.CounterOpts{
		Name: fqName,
		Help: "Counter for " + strings.TrimSpace(name),
	}, r.labels)
	if err := r.registry.Register(vec); err != nil {
		if already, ok := err.(prom.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prom.CounterVec); ok {
				vec = existing
			}
		} else {
			return nil
		}
	}
	r.counters[fqName] = vec
	return vec
}

func (r *Recorder) histogram(name string) *prom.HistogramVec {
	fqName := r.fqName(name)
	if fqName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[fqName]; ok {
		return existing
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Name:    fqName,
		Help:    "Histogram for " + strings.TrimSpace(name),
		Buckets: r.buckets,
	}, r.labels)
	if err := r.registry.Register(vec); err != nil {
		if already, ok := err.(prom.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prom.HistogramVec); ok {
				vec = existing
			}
		} else {
			return nil
		}
	}
	r.histograms[fqName] = vec
	return vec
}

func (r *Recorder) fqName(name string) string {
	name = sanitizeName(name)
	if name == "" {
		return ""
	}
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

func (r *Recorder) labelValues(tags map[string]string) []string {
	values := make([]string, len(r.labels))
	for i, label := range r.labels {
		values[i] = tags[label]
	}
	return values
}

// sanitizeName maps anything outside [a-zA-Z0-9_] to '_' and prefixes a
// leading digit.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
