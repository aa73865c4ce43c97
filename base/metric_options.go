package base

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type MetricGateway interface {
	prometheus.Collector
}

// MetricFunc refreshes the metric right before it is scraped. Metrics updated
// in place (counters, vectors, histograms) have no MetricFunc.
type MetricFunc func(ctx context.Context, metric MetricGateway) error

// MetricOptions descrbes struct with options for metrics
type MetricOptions struct {
	// Metric name
	Name string
	// Metric is a metric
	Metric MetricGateway
	// Func is a func for update metric
	Func MetricFunc
}

func NewMetricOptions(name string, metric MetricGateway, f MetricFunc) *MetricOptions {
	return &MetricOptions{
		Name:   name,
		Metric: metric,
		Func:   f,
	}
}

type GaugeFunc func(ctx context.Context) (float64, error)

func metricName(fullName, postfix string) string {
	return fullName + "_" + strings.ReplaceAll(postfix, " ", "_")
}

// NewGauge builds a gauge refreshed by f before every scrape.
func NewGauge(fullName, postfix, help string, f GaugeFunc) *MetricOptions {
	name := metricName(fullName, postfix)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: fullName + " " + help})

	return NewMetricOptions(name, gauge, func(ctx context.Context, m MetricGateway) error {
		g, ok := m.(prometheus.Gauge)
		if !ok {
			return ErrFailedTypecastMetric
		}

		v, err := f(ctx)
		if err != nil {
			return errors.Wrap(err, "metric handler")
		}
		g.Set(v)
		return nil
	})
}

func NewCounter(fullName, postfix, help string) *MetricOptions {
	name := metricName(fullName, postfix)
	return NewMetricOptions(name,
		prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: fullName + " " + help}), nil)
}

func NewCounterVec(fullName, postfix, help string, labels []string) *MetricOptions {
	name := metricName(fullName, postfix)
	return NewMetricOptions(name,
		prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: fullName + " " + help}, labels), nil)
}

func NewHistogramVec(fullName, postfix, help string, buckets []float64, labels []string) *MetricOptions {
	name := metricName(fullName, postfix)
	opts := prometheus.HistogramOpts{Name: name, Help: fullName + " " + help, Buckets: buckets}
	return NewMetricOptions(name, prometheus.NewHistogramVec(opts, labels), nil)
}

type MapMetricsOptions struct {
	mu      sync.Mutex
	options map[string]*MetricOptions
}

func NewMapMetricsOptions() *MapMetricsOptions {
	return &MapMetricsOptions{
		options: make(map[string]*MetricOptions),
	}
}

func (mmo *MapMetricsOptions) Append(src *MapMetricsOptions) error {
	src.mu.Lock()
	defer src.mu.Unlock()
	mmo.mu.Lock()
	defer mmo.mu.Unlock()

	for k, m := range src.options {
		if _, ok := mmo.options[k]; ok {
			return errors.Wrapf(ErrConflictName, "name: %s", k)
		}

		mmo.options[k] = m
	}

	return nil
}

func (mmo *MapMetricsOptions) Add(options *MetricOptions) error {
	mmo.mu.Lock()
	defer mmo.mu.Unlock()

	if options == nil {
		return ErrOptionsIsNil
	}

	if options.Name == "" {
		return ErrEmptyMetricName
	}

	if options.Metric == nil {
		return ErrMetricIsNil
	}

	if _, ok := mmo.options[options.Name]; ok {
		return errors.Wrapf(ErrConflictName, "name: %s", options.Name)
	}

	mmo.options[options.Name] = options

	return nil
}

// addMetric adds opts to mmo and returns its metric as T.
func addMetric[T MetricGateway](mmo *MapMetricsOptions, opts *MetricOptions) (T, error) {
	var zero T
	if err := mmo.Add(opts); err != nil {
		return zero, errors.Wrap(err, "add to metrics map")
	}

	metric, ok := opts.Metric.(T)
	if !ok {
		return zero, ErrFailedTypecastMetric
	}
	return metric, nil
}

func (mmo *MapMetricsOptions) AddMetricGauge(fullName, postfix, help string, f GaugeFunc) (prometheus.Gauge, error) {
	return addMetric[prometheus.Gauge](mmo, NewGauge(fullName, postfix, help, f))
}

func (mmo *MapMetricsOptions) AddCounter(fullName, postfix, help string) (prometheus.Counter, error) {
	return addMetric[prometheus.Counter](mmo, NewCounter(fullName, postfix, help))
}

func (mmo *MapMetricsOptions) AddCounterVec(fullName, postfix, help string, labels []string) (*prometheus.CounterVec, error) {
	return addMetric[*prometheus.CounterVec](mmo, NewCounterVec(fullName, postfix, help, labels))
}

func (mmo *MapMetricsOptions) AddHistogramVec(fullName, postfix, help string, buckets []float64,
	labels []string) (*prometheus.HistogramVec, error) {
	return addMetric[*prometheus.HistogramVec](mmo, NewHistogramVec(fullName, postfix, help, buckets, labels))
}

// Update calls refresh functions of all metrics that have one.
func (mmo *MapMetricsOptions) Update(ctx context.Context) error {
	mmo.mu.Lock()
	defer mmo.mu.Unlock()

	for k, v := range mmo.options {
		if v.Func == nil {
			continue
		}
		if err := v.Func(ctx, v.Metric); err != nil {
			return errors.Wrapf(err, "update metric %s", k)
		}
	}

	return nil
}

func (mmo *MapMetricsOptions) Registrate(register prometheus.Registerer) error {
	mmo.mu.Lock()
	defer mmo.mu.Unlock()

	for name, v := range mmo.options {
		if err := register.Register(v.Metric); err != nil {
			return errors.Wrapf(err, "registrate metric %s", name)
		}
	}

	return nil
}

func (mmo *MapMetricsOptions) Len() int {
	mmo.mu.Lock()
	defer mmo.mu.Unlock()
	return len(mmo.options)
}

func (mmo *MapMetricsOptions) Get(name string) (*MetricOptions, bool) {
	mmo.mu.Lock()
	defer mmo.mu.Unlock()
	v, ok := mmo.options[name]
	return v, ok
}
