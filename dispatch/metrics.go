package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	queries      *prometheus.CounterVec
	execDuration *prometheus.HistogramVec
	waitDuration prometheus.Observer
	dialDuration prometheus.Observer
	dialFailures prometheus.Counter
	rejected     prometheus.Counter
}

// nolint:funlen // many metrics
func (e *Engine) buildMetrics(_ context.Context) error {
	fullName := e.GetFullName()
	metrics := e.MetricsStorage.GetMetrics()
	m := &engineMetrics{}

	var err error
	m.queries, err = metrics.AddCounterVec(fullName, "queries total", "resolved queries by status", []string{"status"})
	if err != nil {
		return errors.Wrap(err, "add counter vec metric")
	}

	m.execDuration, err = metrics.AddHistogramVec(fullName, "execution seconds", "time spent on the remote call",
		prometheus.DefBuckets, []string{"status"})
	if err != nil {
		return errors.Wrap(err, "add histogram vec metric")
	}

	waitDuration, err := metrics.AddHistogramVec(fullName, "wait seconds", "time from submission to getting a connection",
		prometheus.DefBuckets, nil)
	if err != nil {
		return errors.Wrap(err, "add histogram vec metric")
	}
	m.waitDuration = waitDuration.WithLabelValues()

	dialDuration, err := metrics.AddHistogramVec(fullName, "dial seconds", "time spent establishing connections",
		prometheus.DefBuckets, nil)
	if err != nil {
		return errors.Wrap(err, "add histogram vec metric")
	}
	m.dialDuration = dialDuration.WithLabelValues()

	m.dialFailures, err = metrics.AddCounter(fullName, "dial failures total", "failed connection establishments")
	if err != nil {
		return errors.Wrap(err, "add counter metric")
	}

	m.rejected, err = metrics.AddCounter(fullName, "rejected total", "queries rejected at submission")
	if err != nil {
		return errors.Wrap(err, "add counter metric")
	}

	gauges := []struct {
		postfix string
		help    string
		f       func() float64
	}{
		{"active queries", "queries holding a connection", func() float64 {
			return float64(e.GetActiveQueryCount())
		}},
		{"awaiting queries", "queries waiting for a connection", func() float64 {
			return float64(e.GetAwaitingQueryCount())
		}},
		{"open connections", "established connections", func() float64 {
			return float64(e.pool.Size())
		}},
		{"idle connections", "idle connections", func() float64 {
			return float64(e.pool.IdleCount())
		}},
		{"inuse connections", "connections in use", func() float64 {
			return float64(e.pool.InUseCount())
		}},
	}

	for _, g := range gauges {
		f := g.f
		if _, err := metrics.AddMetricGauge(fullName, g.postfix, g.help, func(ctx context.Context) (float64, error) {
			return f(), nil
		}); err != nil {
			return errors.Wrap(err, "add gauge metric")
		}
	}

	e.metrics = m
	return nil
}

func (e *Engine) buildReadyHandlers(_ context.Context) error {
	checkOptions := e.ReadyCheckStorage.GetReadyHandlers()
	if err := checkOptions.AddCheck(e.GetFullName()+"_running", func(ctx context.Context) error {
		if e.getState() != stateRunning {
			return ErrNotRunning
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "add ready check")
	}

	return nil
}

func (e *Engine) buildAliveHandlers(_ context.Context) error {
	checkOptions := e.AliveCheckStorage.GetAliveHandlers()
	if err := checkOptions.AddCheck(e.GetFullName()+"_loop", func(ctx context.Context) error {
		select {
		case <-e.done:
			if !e.IsShuttingDown() {
				return errors.Wrap(ErrNotRunning, "loop exited")
			}
		default:
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "add alive check")
	}

	return nil
}
