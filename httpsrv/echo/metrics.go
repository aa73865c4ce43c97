package echo

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/soldatov-s/go-dispatch/base"
)

var httpLabels = []string{"code", "method", "url"}

type httpMetrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	requestSize  *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec
}

func newHTTPMetrics(fullName string, metrics *base.MapMetricsOptions) (*httpMetrics, error) {
	m := &httpMetrics{}
	sizeBuckets := prometheus.ExponentialBuckets(64, 4, 8)

	var err error
	m.requests, err = metrics.AddCounterVec(fullName, "requests total",
		"How many HTTP requests processed, partitioned by status code and HTTP method.", httpLabels)
	if err != nil {
		return nil, errors.Wrap(err, "add requests counter")
	}

	histograms := []struct {
		target  **prometheus.HistogramVec
		postfix string
		help    string
		buckets []float64
	}{
		{&m.duration, "request duration seconds", "The HTTP request latencies in seconds.", prometheus.DefBuckets},
		{&m.requestSize, "request size bytes", "The HTTP request sizes in bytes.", sizeBuckets},
		{&m.responseSize, "response size bytes", "The HTTP response sizes in bytes.", sizeBuckets},
	}
	for _, h := range histograms {
		*h.target, err = metrics.AddHistogramVec(fullName, h.postfix, h.help, h.buckets, httpLabels)
		if err != nil {
			return nil, errors.Wrapf(err, "add %s histogram", h.postfix)
		}
	}

	return m, nil
}

func (m *httpMetrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Path() == "/metrics" {
			return next(c)
		}

		start := time.Now()
		err := next(c)

		labels := []string{
			strconv.Itoa(responseStatus(c, err)),
			c.Request().Method,
			c.Path(),
		}
		m.requests.WithLabelValues(labels...).Inc()
		m.duration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.requestSize.WithLabelValues(labels...).Observe(float64(approximateRequestSize(c.Request())))
		m.responseSize.WithLabelValues(labels...).Observe(float64(c.Response().Size))

		return err
	}
}

// responseStatus is the status the error handler is going to write for err.
func responseStatus(c echo.Context, err error) int {
	status := c.Response().Status
	if err == nil {
		return status
	}

	var httpError *echo.HTTPError
	if errors.As(err, &httpError) {
		return httpError.Code
	}
	if status == 0 || status == http.StatusOK {
		return http.StatusInternalServerError
	}
	return status
}

func approximateRequestSize(r *http.Request) int {
	size := len(r.Method) + len(r.Proto) + len(r.Host)
	if r.URL != nil {
		size += len(r.URL.Path)
	}

	for name, values := range r.Header {
		size += len(name)
		for _, v := range values {
			size += len(v)
		}
	}

	if r.ContentLength > 0 {
		size += int(r.ContentLength)
	}
	return size
}
