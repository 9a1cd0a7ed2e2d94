package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promTelemetry is the Prometheus-backed Telemetry implementation enabled
// in production via Enable(namespace).
type promTelemetry struct {
	namespace string
	registry  *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	hists    map[string]*prometheus.HistogramVec
}

func newPromTelemetry(namespace string) Telemetry {
	return &promTelemetry{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		hists:     make(map[string]*prometheus.HistogramVec),
	}
}

func (p *promTelemetry) counterVec(name string, labels []string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      name,
	}, labels)
	p.registry.MustRegister(c)
	p.counters[name] = c
	return c
}

func (p *promTelemetry) gaugeVec(name string, labels []string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      name,
	}, labels)
	p.registry.MustRegister(g)
	p.gauges[name] = g
	return g
}

func (p *promTelemetry) histVec(name string, labels []string, buckets []int64) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.hists[name]; ok {
		return h
	}
	fbuckets := make([]float64, len(buckets))
	for i, b := range buckets {
		fbuckets[i] = float64(b)
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: p.namespace,
		Name:      name,
		Buckets:   fbuckets,
	}, labels)
	p.registry.MustRegister(h)
	p.hists[name] = h
	return h
}

func (p *promTelemetry) GetOrCreateCountMeter(name string) CountMeter {
	return &promCount{vec: p.counterVec(name, nil)}
}

func (p *promTelemetry) GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter {
	return &promCount{vec: p.counterVec(name, labels)}
}

func (p *promTelemetry) GetOrCreateGaugeMeter(name string) GaugeMeter {
	return &promGauge{vec: p.gaugeVec(name, nil)}
}

func (p *promTelemetry) GetOrCreateGaugeVecMeter(name string, labels []string) GaugeVecMeter {
	return &promGauge{vec: p.gaugeVec(name, labels)}
}

func (p *promTelemetry) GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter {
	return &promHist{vec: p.histVec(name, nil, buckets)}
}

func (p *promTelemetry) GetOrCreateHistogramVecMeter(name string, labels []string, buckets []int64) HistogramVecMeter {
	return &promHist{vec: p.histVec(name, labels, buckets)}
}

func (p *promTelemetry) GetOrCreateHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

type promCount struct{ vec *prometheus.CounterVec }

func (c *promCount) Add(n int64)                             { c.vec.WithLabelValues().Add(float64(n)) }
func (c *promCount) AddWithLabel(n int64, l map[string]string) { c.vec.With(l).Add(float64(n)) }

type promGauge struct{ vec *prometheus.GaugeVec }

func (g *promGauge) Gauge(n int64)                              { g.vec.WithLabelValues().Set(float64(n)) }
func (g *promGauge) GaugeWithLabel(n int64, l map[string]string) { g.vec.With(l).Set(float64(n)) }

type promHist struct{ vec *prometheus.HistogramVec }

func (h *promHist) Observe(n int64)                              { h.vec.WithLabelValues().Observe(float64(n)) }
func (h *promHist) ObserveWithLabels(n int64, l map[string]string) { h.vec.With(l).Observe(float64(n)) }
