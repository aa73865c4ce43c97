// Package echo serves the query API, metrics and health checks over HTTP.
package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/soldatov-s/go-dispatch/base"
	"github.com/soldatov-s/go-dispatch/x/httpx"
	"golang.org/x/sync/errgroup"
)

const (
	ProviderName = "echo"
	DefaultName  = "api"
)

var (
	ErrEmptyHTTPHandler  = errors.New("empty http handler")
	ErrUnknownHTTPMethod = errors.New("unknown http method")
)

// Enity describes every HTTP server's structure and configuration.
type Enity struct {
	*base.Enity
	*base.MetricsStorage
	config     *Config
	server     *echo.Echo
	errorGroup *errgroup.Group
	metrics    *httpMetrics
}

// NewEnity configures structure and creates new echo HTTP server. Errors of
// the listener are reported to errorGroup.
func NewEnity(ctx context.Context, name string, config *Config, errorGroup *errgroup.Group,
	middlewares ...echo.MiddlewareFunc) (*Enity, error) {
	if config == nil || errorGroup == nil {
		return nil, base.ErrInvalidEnityOptions
	}

	enity := &Enity{
		Enity:          base.NewEnity(&base.EnityDeps{ProviderName: ProviderName, Name: name}),
		MetricsStorage: base.NewMetricsStorage(),
		config:         config.SetDefault(),
		errorGroup:     errorGroup,
	}

	metrics, err := newHTTPMetrics(enity.GetFullName(), enity.GetMetrics())
	if err != nil {
		return nil, errors.Wrap(err, "build metrics")
	}
	enity.metrics = metrics

	server := enity.config.NewEcho()
	server.Use(metrics.middleware)
	server.Use(middlewares...)
	enity.server = server

	enity.GetLogger(ctx).Debug().Str("address", enity.config.Address).Msg("http server created")
	return enity, nil
}

func (e *Enity) GetConfig() *Config {
	return e.config
}

func (e *Enity) GetServer() *echo.Echo {
	return e.server
}

// APIGroup returns the routing group of the API version.
func (e *Enity) APIGroup(ctx context.Context, version string, middlewares ...echo.MiddlewareFunc) *echo.Group {
	e.GetLogger(ctx).Debug().Str("api version group", "v"+version).Msg("creating new API group")
	return e.server.Group("/api/v"+version, middlewares...)
}

// Start starts HTTP server listening.
func (e *Enity) Start(ctx context.Context) error {
	logger := e.GetLogger(ctx)

	e.errorGroup.Go(func() error {
		logger.Info().Str("address", e.config.Address).Msg("starting server...")

		var err error
		if e.config.CertFile != "" && e.config.KeyFile != "" {
			err = e.server.StartTLS(e.config.Address, e.config.CertFile, e.config.KeyFile)
		} else {
			err = e.server.Start(e.config.Address)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "start http server")
		}

		return nil
	})

	return nil
}

// Shutdown stops HTTP server listening.
func (e *Enity) Shutdown(ctx context.Context) error {
	e.SetShuttingDown(true)
	if err := e.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}

	return nil
}

var registrableMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
	http.MethodPatch, http.MethodOptions, http.MethodHead,
}

// RegisterEndpoint mounts a plain net/http handler on the server.
func (e *Enity) RegisterEndpoint(method, endpoint string, handler http.Handler, m ...httpx.MiddleWareFunc) error {
	if handler == nil {
		return ErrEmptyHTTPHandler
	}

	if !lo.Contains(registrableMethods, method) {
		return errors.Wrap(ErrUnknownHTTPMethod, method)
	}

	e.server.Add(method, endpoint, echo.WrapHandler(handler),
		lo.Map(m, func(mw httpx.MiddleWareFunc, _ int) echo.MiddlewareFunc {
			return echo.WrapMiddleware(mw)
		})...)

	return nil
}
