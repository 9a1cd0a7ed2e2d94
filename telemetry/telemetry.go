// Package telemetry provides lazily-initialized Prometheus-backed metric
// handles, falling back to a no-op implementation when telemetry is
// disabled.
package telemetry

import (
	"net/http"
	"sync"
)

// CountMeter is a single counter.
type CountMeter interface {
	Add(int64)
}

// CountVecMeter is a labeled counter.
type CountVecMeter interface {
	AddWithLabel(int64, map[string]string)
}

// GaugeMeter is a single gauge.
type GaugeMeter interface {
	Gauge(int64)
}

// GaugeVecMeter is a labeled gauge.
type GaugeVecMeter interface {
	GaugeWithLabel(int64, map[string]string)
}

// HistogramMeter observes unlabeled samples.
type HistogramMeter interface {
	Observe(int64)
}

// HistogramVecMeter observes labeled samples.
type HistogramVecMeter interface {
	ObserveWithLabels(int64, map[string]string)
}

var (
	mu       sync.Mutex
	instance Telemetry = defaultNoopTelemetry()
	enabled            = false
)

// Telemetry is the backing registry of meters.
type Telemetry interface {
	GetOrCreateCountMeter(name string) CountMeter
	GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter
	GetOrCreateGaugeMeter(name string) GaugeMeter
	GetOrCreateGaugeVecMeter(name string, labels []string) GaugeVecMeter
	GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter
	GetOrCreateHistogramVecMeter(name string, labels []string, buckets []int64) HistogramVecMeter
	GetOrCreateHandler() http.Handler
}

// Enable switches the process-wide instance to the Prometheus-backed one.
// Idempotent; call once at startup before any LazyLoad meter is touched.
func Enable(namespace string) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		return
	}
	instance = newPromTelemetry(namespace)
	enabled = true
}

// Handler returns the metrics HTTP handler, or nil when disabled.
func Handler() http.Handler {
	mu.Lock()
	defer mu.Unlock()
	return instance.GetOrCreateHandler()
}

// LazyLoad defers meter construction until first use, so call sites can be
// declared as package-level vars without forcing metric registration order.
func LazyLoad[T any](build func() T) func() T {
	var (
		once sync.Once
		val  T
	)
	return func() T {
		once.Do(func() {
			val = build()
		})
		return val
	}
}

// BucketHTTPReqs are the default HTTP request-duration histogram buckets
// (ms).
var BucketHTTPReqs = []int64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Counter returns a process-wide, unlabeled counter.
func Counter(name string) CountMeter {
	mu.Lock()
	defer mu.Unlock()
	return instance.GetOrCreateCountMeter(name)
}

// CounterVec returns a process-wide, labeled counter.
func CounterVec(name string, labels []string) CountVecMeter {
	mu.Lock()
	defer mu.Unlock()
	return instance.GetOrCreateCountVecMeter(name, labels)
}

// Gauge returns a process-wide, unlabeled gauge.
func Gauge(name string) GaugeMeter {
	mu.Lock()
	defer mu.Unlock()
	return instance.GetOrCreateGaugeMeter(name)
}

// GaugeVec returns a process-wide, labeled gauge.
func GaugeVec(name string, labels []string) GaugeVecMeter {
	mu.Lock()
	defer mu.Unlock()
	return instance.GetOrCreateGaugeVecMeter(name, labels)
}

// HistogramVecWithHTTPBuckets returns a labeled histogram using the
// default HTTP-duration buckets.
func HistogramVecWithHTTPBuckets(name string, labels []string) HistogramVecMeter {
	mu.Lock()
	defer mu.Unlock()
	return instance.GetOrCreateHistogramVecMeter(name, labels, BucketHTTPReqs)
}
