// Package prom implements the bridge metrics interfaces on top of the
// Prometheus client library.
package prom

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

// Provider creates Prometheus collectors on first use. Label names for a
// metric are fixed by the first observation; later observations with a
// different label set are dropped and logged.
type Provider struct {
	namespace  string
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	logger     *zap.Logger

	mu         sync.Mutex
	counters   map[string]*vec[*prometheus.CounterVec]
	histograms map[string]*vec[*prometheus.HistogramVec]
	gauges     map[string]*vec[*prometheus.GaugeVec]
}

type vec[T any] struct {
	once   sync.Once
	labels []string
	v      T
	err    error
}

// NewProvider returns a provider registering into a private registry.
func NewProvider(namespace string, logger *zap.Logger) *Provider {
	registry := prometheus.NewRegistry()
	return NewProviderWithRegistry(namespace, registry, registry, logger)
}

// NewProviderWithRegistry returns a provider using the given registerer and
// gatherer, e.g. prometheus.DefaultRegisterer and prometheus.DefaultGatherer.
func NewProviderWithRegistry(namespace string, registerer prometheus.Registerer, gatherer prometheus.Gatherer, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		namespace:  namespace,
		registerer: registerer,
		gatherer:   gatherer,
		logger:     logger,
		counters:   make(map[string]*vec[*prometheus.CounterVec]),
		histograms: make(map[string]*vec[*prometheus.HistogramVec]),
		gauges:     make(map[string]*vec[*prometheus.GaugeVec]),
	}
}

// Handler serves the gathered metrics in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying gatherer, mostly for tests.
func (p *Provider) Gatherer() prometheus.Gatherer {
	return p.gatherer
}

func (p *Provider) Counter(name string) o11y.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.counters[name]
	if !ok {
		v = &vec[*prometheus.CounterVec]{}
		p.counters[name] = v
	}
	return &counter{provider: p, name: name, vec: v}
}

func (p *Provider) Histogram(name string) o11y.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.histograms[name]
	if !ok {
		v = &vec[*prometheus.HistogramVec]{}
		p.histograms[name] = v
	}
	return &histogram{provider: p, name: name, vec: v}
}

func (p *Provider) Gauge(name string) o11y.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.gauges[name]
	if !ok {
		v = &vec[*prometheus.GaugeVec]{}
		p.gauges[name] = v
	}
	return &gauge{provider: p, name: name, vec: v}
}

func labelNames(labels []o11y.Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Key
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []o11y.Label) prometheus.Labels {
	values := make(prometheus.Labels, len(labels))
	for _, l := range labels {
		values[l.Key] = l.Value
	}
	return values
}

func help(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

// register registers c, reusing an already registered identical collector.
func register[T prometheus.Collector](p *Provider, c T) (T, error) {
	if err := p.registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type counter struct {
	provider *Provider
	name     string
	vec      *vec[*prometheus.CounterVec]
}

func (c *counter) Add(_ context.Context, value int64, labels ...o11y.Label) {
	c.vec.once.Do(func() {
		c.vec.labels = labelNames(labels)
		c.vec.v, c.vec.err = register(c.provider, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.provider.namespace,
			Name:      c.name,
			Help:      help(c.name),
		}, c.vec.labels))
	})
	if !c.provider.usable(c.name, c.vec.err, c.vec.labels, labels) {
		return
	}
	c.vec.v.With(labelValues(labels)).Add(float64(value))
}

type histogram struct {
	provider *Provider
	name     string
	vec      *vec[*prometheus.HistogramVec]
}

func (h *histogram) Record(_ context.Context, value float64, labels ...o11y.Label) {
	h.vec.once.Do(func() {
		h.vec.labels = labelNames(labels)
		h.vec.v, h.vec.err = register(h.provider, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: h.provider.namespace,
			Name:      h.name,
			Help:      help(h.name),
			Buckets:   prometheus.DefBuckets,
		}, h.vec.labels))
	})
	if !h.provider.usable(h.name, h.vec.err, h.vec.labels, labels) {
		return
	}
	h.vec.v.With(labelValues(labels)).Observe(value)
}

type gauge struct {
	provider *Provider
	name     string
	vec      *vec[*prometheus.GaugeVec]
}

func (g *gauge) Set(_ context.Context, value float64, labels ...o11y.Label) {
	g.vec.once.Do(func() {
		g.vec.labels = labelNames(labels)
		g.vec.v, g.vec.err = register(g.provider, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: g.provider.namespace,
			Name:      g.name,
			Help:      help(g.name),
		}, g.vec.labels))
	})
	if !g.provider.usable(g.name, g.vec.err, g.vec.labels, labels) {
		return
	}
	g.vec.v.With(labelValues(labels)).Set(value)
}

func (p *Provider) usable(name string, err error, registered []string, labels []o11y.Label) bool {
	if err != nil {
		p.logger.Debug("Metric unavailable", zap.String("metric", name), zap.Error(err))
		return false
	}
	if !sameLabels(registered, labelNames(labels)) {
		p.logger.Warn("Metric label mismatch",
			zap.String("metric", name),
			zap.Strings("registered", registered),
			zap.Strings("got", labelNames(labels)),
		)
		return false
	}
	return true
}
