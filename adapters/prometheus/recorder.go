// Package prometheus exports orchestrator metrics through client_golang.
package prometheus

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-socialengine/core"
)

const DefaultNamespace = "social"

// Labels are fixed so one collector serves every tag combination the
// orchestrator emits. Missing tags are exported as empty strings.
var Labels = []string{"operation", "status", "provider_id", "outcome", "error_kind"}

// DurationBuckets are in milliseconds, up to the default attempt timeout.
var DurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}

type Recorder struct {
	registerer prom.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if ns := sanitize(namespace); ns != "" {
			r.namespace = ns
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// NewRecorder registers collectors lazily on registerer. A nil registerer
// uses prometheus.DefaultRegisterer.
func NewRecorder(registerer prom.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		namespace:  DefaultNamespace,
		buckets:    DurationBuckets,
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

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	counter := r.counter(metricName(r.namespace, name))
	if counter == nil {
		return
	}
	counter.WithLabelValues(labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram := r.histogram(metricName(r.namespace, name))
	if histogram == nil {
		return
	}
	histogram.WithLabelValues(labelValues(tags)...).Observe(value)
}

func (r *Recorder) counter(name string) *prom.CounterVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	vec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      "Social login " + strings.ReplaceAll(name, "_", " ") + ".",
	}, Labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		shared, ok := already.ExistingCollector.(*prom.CounterVec)
		if !ok {
			return nil
		}
		vec = shared
	}
	r.counters[name] = vec
	return vec
}

func (r *Recorder) histogram(name string) *prom.HistogramVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      "Social login " + strings.ReplaceAll(name, "_", " ") + ".",
		Buckets:   r.buckets,
	}, Labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil
		}
		shared, ok := already.ExistingCollector.(*prom.HistogramVec)
		if !ok {
			return nil
		}
		vec = shared
	}
	r.histograms[name] = vec
	return vec
}

// Handler serves the metrics gathered by gatherer, or the default gatherer
// when nil.
func Handler(gatherer prom.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// metricName strips the namespace prefix the orchestrator adds and converts
// the dotted name into a prometheus identifier.
func metricName(namespace string, name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, namespace+".")
	return sanitize(name)
}

func sanitize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(value))
	for i, ch := range value {
		switch {
		case ch >= 'a' && ch <= 'z', ch == '_':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func labelValues(tags map[string]string) []string {
	values := make([]string, len(Labels))
	for i, label := range Labels {
		values[i] = strings.TrimSpace(tags[label])
	}
	return values
}

var _ core.MetricsRecorder = (*Recorder)(nil)
