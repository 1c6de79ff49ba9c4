// Package metrics implements a small Prometheus-text-format metric
// collection. Counters and gauges are cheap enough to touch from the
// motion task's tick path; everything else (gathering, serving) happens
// on the HTTP side.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels is a set of metric label key-value pairs.
type Labels map[string]string

func labelKey(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

func formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		v := labels[k]
		v = strings.ReplaceAll(v, "\\", "\\\\")
		v = strings.ReplaceAll(v, "\"", "\\\"")
		v = strings.ReplaceAll(v, "\n", "\\n")
		fmt.Fprintf(&sb, "%s=%q", k, v)
	}
	sb.WriteByte('}')
	return sb.String()
}

// Metric is anything the registry can expose.
type Metric interface {
	Name() string
	Write(sb *strings.Builder)
}

// Counter is a monotonically increasing value, safe for concurrent use.
type Counter struct {
	name   string
	help   string
	series sync.Map // labelKey -> *counterSeries
}

type counterSeries struct {
	labels Labels
	value  uint64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Name() string { return c.name }

// Inc increments the counter by 1.
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increments the counter by delta.
func (c *Counter) Add(labels Labels, delta uint64) {
	v, _ := c.series.LoadOrStore(labelKey(labels), &counterSeries{labels: labels})
	atomic.AddUint64(&v.(*counterSeries).value, delta)
}

// Get returns the current value for the label set.
func (c *Counter) Get(labels Labels) uint64 {
	v, ok := c.series.Load(labelKey(labels))
	if !ok {
		return 0
	}
	return atomic.LoadUint64(&v.(*counterSeries).value)
}

func (c *Counter) Write(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
	c.series.Range(func(_, v interface{}) bool {
		s := v.(*counterSeries)
		fmt.Fprintf(sb, "%s%s %d\n", c.name, formatLabels(s.labels), atomic.LoadUint64(&s.value))
		return true
	})
}

// Gauge is a value that can move in either direction.
type Gauge struct {
	name   string
	help   string
	series sync.Map // labelKey -> *gaugeSeries
}

type gaugeSeries struct {
	labels Labels
	bits   uint64 // float64 via math bits, accessed atomically
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Name() string { return g.name }

// Set replaces the gauge value for the label set.
func (g *Gauge) Set(labels Labels, value float64) {
	v, _ := g.series.LoadOrStore(labelKey(labels), &gaugeSeries{labels: labels})
	atomic.StoreUint64(&v.(*gaugeSeries).bits, math.Float64bits(value))
}

// Get returns the current value for the label set.
func (g *Gauge) Get(labels Labels) float64 {
	v, ok := g.series.Load(labelKey(labels))
	if !ok {
		return 0
	}
	return math.Float64frombits(atomic.LoadUint64(&v.(*gaugeSeries).bits))
}

func (g *Gauge) Write(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
	g.series.Range(func(_, v interface{}) bool {
		s := v.(*gaugeSeries)
		fmt.Fprintf(sb, "%s%s %g\n", g.name, formatLabels(s.labels), math.Float64frombits(atomic.LoadUint64(&s.bits)))
		return true
	})
}

// Histogram tracks a distribution of observations in cumulative buckets.
type Histogram struct {
	name   string
	help   string
	bounds []float64
	series sync.Map // labelKey -> *histogramSeries
}

type histogramSeries struct {
	mu      sync.Mutex
	labels  Labels
	count   uint64
	sum     float64
	buckets []uint64
}

func NewHistogram(name, help string, bounds []float64) *Histogram {
	sorted := make([]float64, len(bounds))
	copy(sorted, bounds)
	sort.Float64s(sorted)
	return &Histogram{name: name, help: help, bounds: sorted}
}

func (h *Histogram) Name() string { return h.name }

// Observe records one observation.
func (h *Histogram) Observe(labels Labels, value float64) {
	v, _ := h.series.LoadOrStore(labelKey(labels), &histogramSeries{
		labels:  labels,
		buckets: make([]uint64, len(h.bounds)),
	})
	s := v.(*histogramSeries)
	s.mu.Lock()
	s.count++
	s.sum += value
	for i, bound := range h.bounds {
		if value <= bound {
			s.buckets[i]++
		}
	}
	s.mu.Unlock()
}

// Timer returns a function that observes the elapsed time when called.
func (h *Histogram) Timer(labels Labels) func() {
	start := time.Now()
	return func() { h.Observe(labels, time.Since(start).Seconds()) }
}

// Count returns the number of observations for the label set.
func (h *Histogram) Count(labels Labels) uint64 {
	v, ok := h.series.Load(labelKey(labels))
	if !ok {
		return 0
	}
	s := v.(*histogramSeries)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (h *Histogram) Write(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	h.series.Range(func(_, v interface{}) bool {
		s := v.(*histogramSeries)
		s.mu.Lock()
		count := s.count
		sum := s.sum
		counts := make([]uint64, len(s.buckets))
		copy(counts, s.buckets)
		s.mu.Unlock()

		cumulative := uint64(0)
		for i, bound := range h.bounds {
			cumulative += counts[i]
			bl := make(Labels, len(s.labels)+1)
			for k, val := range s.labels {
				bl[k] = val
			}
			bl["le"] = fmt.Sprintf("%g", bound)
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(bl), cumulative)
		}
		bl := make(Labels, len(s.labels)+1)
		for k, val := range s.labels {
			bl[k] = val
		}
		bl["le"] = "+Inf"
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, formatLabels(bl), count)
		fmt.Fprintf(sb, "%s_sum%s %g\n", h.name, formatLabels(s.labels), sum)
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, formatLabels(s.labels), count)
		return true
	})
}

// Registry holds metrics and renders them in registration order.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric. Duplicate names are an error.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.Name()
	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = m
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a metric and panics on a duplicate name.
func (r *Registry) MustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Gather renders all metrics in Prometheus text format.
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		if m, ok := r.metrics[name]; ok {
			m.Write(&sb)
		}
	}
	return sb.String()
}
