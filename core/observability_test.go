package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) hasCounter(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.counters {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func (m *captureMetricsRecorder) hasHistogram(name string, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.histograms {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) hasLog(level string, message string, operation string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range *l.records {
		if item.level == level && item.msg == message && item.fields["operation"] == operation {
			return true
		}
	}
	return false
}

func TestTelemetry_ObserveFailureTagsAndLogs(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tel := telemetry{logger: logger, metrics: metrics, now: func() time.Time { return now }}

	tel.observe(context.Background(), now.Add(-250*time.Millisecond), "Begin", errors.New("boom"), map[string]any{
		"provider_id": "linkedin",
		"outcome":     "error",
	})

	if !metrics.hasCounter("social.begin.total", "failure") {
		t.Fatalf("expected failure counter")
	}
	if !metrics.hasHistogram("social.begin.duration_ms", "failure") {
		t.Fatalf("expected duration histogram")
	}
	metrics.mu.Lock()
	histogram := metrics.histograms[0]
	counter := metrics.counters[0]
	metrics.mu.Unlock()
	if histogram.value != 250 {
		t.Fatalf("expected 250ms duration, got %v", histogram.value)
	}
	if counter.tags["provider_id"] != "linkedin" || counter.tags["outcome"] != "error" {
		t.Fatalf("expected provider and outcome tags, got %#v", counter.tags)
	}
	if !logger.hasLog("error", "begin failed", "begin") {
		t.Fatalf("expected structured failure log")
	}
}

func TestTelemetry_NilSinksAreSafe(t *testing.T) {
	tel := telemetry{}
	tel.observe(context.Background(), time.Now(), "configure", nil, nil)
}
