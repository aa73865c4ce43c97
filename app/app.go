// Package app runs the service components: it starts them in the order they
// were added, serves their metrics and health checks and shuts them down in
// reverse order.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/soldatov-s/go-dispatch/base"
	"github.com/soldatov-s/go-dispatch/log"
	"github.com/soldatov-s/go-dispatch/x/httpx"
	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -source=app.go -destination=mock_app_test.go -package=app_test

const (
	ReadyEndpoint   = "/health/ready"
	AliveEndpoint   = "/health/alive"
	MetricsEndpoint = "/metrics"
)

var (
	ErrAppendMetrics            = errors.New("failed to append metrics")
	ErrAliveHandlers            = errors.New("failed to append alive handlers")
	ErrReadyHandlers            = errors.New("failed to append ready handlers")
	ErrNotFindStatsHTTP         = errors.New("not find http server for stats")
	ErrFailedTypeCastHTTPServer = errors.New("failed typecast to http server")
)

type HTTPServer interface {
	RegisterEndpoint(method, endpoint string, handler http.Handler, m ...httpx.MiddleWareFunc) error
}

type EnityMetricsGateway interface {
	GetMetrics() *base.MapMetricsOptions
}

type EnityAliveGateway interface {
	GetAliveHandlers() *base.MapCheckOptions
}

type EnityReadyGateway interface {
	GetReadyHandlers() *base.MapCheckOptions
}

type EnityGateway interface {
	Shutdown(ctx context.Context) error
	Start(ctx context.Context) error
	GetFullName() string
}

type ManagerDeps struct {
	Meta *Meta
	// StatsHTTPEnityName is the full name of the http server enity
	// serving metrics and health checks. Empty means no stats endpoints.
	StatsHTTPEnityName string
	Logger             *log.Logger
	ErrorGroup         *errgroup.Group
}

type Meta struct {
	Name        string
	Builded     string
	Hash        string
	Version     string
	Description string
}

func (m *Meta) SetDefault() *Meta {
	var metaCopy Meta
	if m != nil {
		metaCopy = *m
	}

	if metaCopy.Description == "" {
		metaCopy.Description = "no description"
	}

	if metaCopy.Name == "" {
		metaCopy.Name = "unknown"
	}

	if metaCopy.Version == "" {
		metaCopy.Version = "0.0.0"
	}

	return &metaCopy
}

func (m *Meta) BuildInfo() string {
	return m.Version + ", builded: " + m.Builded + ", hash: " + m.Hash
}

type Manager struct {
	*base.MetricsStorage
	*base.ReadyCheckStorage
	*base.AliveCheckStorage
	meta               *Meta
	mu                 sync.Mutex
	enities            []EnityGateway // start order
	statsHTTPEnityName string
	register           prometheus.Registerer
	logger             *log.Logger
	signals            []os.Signal
	errorGroup         *errgroup.Group
	shutdownOnce       sync.Once
	shutdownErr        error
}

type ManagerOption func(*Manager)

func WithCustomRegister(register prometheus.Registerer) ManagerOption {
	return func(c *Manager) {
		c.register = register
	}
}

func WithCustomSignals(signals []os.Signal) ManagerOption {
	return func(c *Manager) {
		c.signals = signals
	}
}

func NewManager(deps *ManagerDeps, opts ...ManagerOption) *Manager {
	app := &Manager{
		MetricsStorage:     base.NewMetricsStorage(),
		AliveCheckStorage:  base.NewAliveCheckStorage(),
		ReadyCheckStorage:  base.NewReadyCheckStorage(),
		meta:               deps.Meta.SetDefault(),
		enities:            make([]EnityGateway, 0, 4),
		statsHTTPEnityName: deps.StatsHTTPEnityName,
		register:           prometheus.DefaultRegisterer,
		logger:             deps.Logger,
		signals:            defaultOSSignals(),
		errorGroup:         deps.ErrorGroup,
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

func defaultOSSignals() []os.Signal {
	return []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT}
}

func (a *Manager) Meta() *Meta {
	return a.meta
}

type ErrSignal struct {
	Signal os.Signal
}

func (e ErrSignal) Error() string {
	return fmt.Sprintf("got error signal %s", e.Signal.String())
}

// OSSignalWaiter shuts the application down on the first OS signal.
func (a *Manager) OSSignalWaiter(ctx context.Context) error {
	logger := a.logger.Zerolog()
	closeSignal := make(chan os.Signal, 1)
	signal.Notify(closeSignal, a.signals...)

	a.errorGroup.Go(func() error {
		defer signal.Stop(closeSignal)

		select {
		case s := <-closeSignal:
			logger.Info().Msgf("got os signal: %s", s.String())
			if err := a.Shutdown(ctx); err != nil {
				return errors.Wrap(err, "shutdown app")
			}
			return ErrSignal{Signal: s}
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	return nil
}

// Loop is application loop
func (a *Manager) Loop(ctx context.Context) error {
	logger := a.logger.Zerolog()
	if err := a.errorGroup.Wait(); err != nil {
		switch {
		case isExitSignal(err):
			logger.Info().Msg("exited by exit signal")
		default:
			return errors.Wrap(err, "exited with error")
		}
	}
	return nil
}

func isExitSignal(err error) bool {
	errSig := ErrSignal{}
	return errors.As(err, &errSig)
}

func (a *Manager) Start(ctx context.Context) error {
	a.logger.Zerolog().Info().
		Str("name", a.meta.Name).
		Str("build", a.meta.BuildInfo()).
		Msg("starting application")

	for _, e := range a.enities {
		if err := e.Start(ctx); err != nil {
			return errors.Wrapf(err, "start enity %q", e.GetFullName())
		}
	}

	if a.statsHTTPEnityName == "" {
		return nil
	}

	if err := a.startStatistic(ctx); err != nil {
		return errors.Wrap(err, "start statistics")
	}

	return nil
}

// Shutdown stops enities in reverse order. A failing enity does not keep
// the rest running. Only the first call does the work, later calls return
// its result.
func (a *Manager) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		var result *multierror.Error
		for _, e := range lo.Reverse(append([]EnityGateway(nil), a.enities...)) {
			if err := e.Shutdown(ctx); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "shutdown enity %q", e.GetFullName()))
			}
		}
		a.shutdownErr = result.ErrorOrNil()
	})
	return a.shutdownErr
}

// Add registers e and collects its metrics and health checks. Enities
// start in the order they were added.
func (a *Manager) Add(ctx context.Context, e EnityGateway) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.find(e.GetFullName()); ok {
		return base.ErrConflictName
	}

	if v, ok := e.(EnityMetricsGateway); ok {
		if err := a.GetMetrics().Append(v.GetMetrics()); err != nil {
			return errors.Wrap(ErrAppendMetrics, err.Error())
		}
	}

	if v, ok := e.(EnityAliveGateway); ok {
		if err := a.GetAliveHandlers().Append(v.GetAliveHandlers()); err != nil {
			return errors.Wrap(ErrAliveHandlers, err.Error())
		}
	}

	if v, ok := e.(EnityReadyGateway); ok {
		if err := a.GetReadyHandlers().Append(v.GetReadyHandlers()); err != nil {
			return errors.Wrap(ErrReadyHandlers, err.Error())
		}
	}

	a.enities = append(a.enities, e)
	return nil
}

func (a *Manager) find(fullName string) (EnityGateway, bool) {
	return lo.Find(a.enities, func(e EnityGateway) bool {
		return e.GetFullName() == fullName
	})
}

func (a *Manager) startStatistic(ctx context.Context) error {
	enity, ok := a.find(a.statsHTTPEnityName)
	if !ok {
		return ErrNotFindStatsHTTP
	}

	httpSrv, ok := enity.(HTTPServer)
	if !ok {
		return ErrFailedTypeCastHTTPServer
	}

	if err := a.GetMetrics().Registrate(a.register); err != nil {
		return errors.Wrap(err, "registrate metrics")
	}

	if err := a.logger.GetMetrics().Registrate(a.register); err != nil {
		return errors.Wrap(err, "registrate logger metrics")
	}

	endpoints := []struct {
		path    string
		handler http.Handler
		mws     []httpx.MiddleWareFunc
	}{
		{
			path:    MetricsEndpoint,
			handler: promhttp.HandlerFor(a.gatherer(), promhttp.HandlerOpts{}),
			mws: []httpx.MiddleWareFunc{func(h http.Handler) http.Handler {
				return a.PrometheusMiddleware(ctx, h)
			}},
		},
		{
			path: AliveEndpoint,
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				a.AliveCheckHandler(ctx, w)
			}),
		},
		{
			path: ReadyEndpoint,
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				a.ReadyCheckHandler(ctx, w)
			}),
		},
	}

	for _, ep := range endpoints {
		if err := httpSrv.RegisterEndpoint(http.MethodGet, ep.path, ep.handler, ep.mws...); err != nil {
			return errors.Wrapf(err, "register %s endpoint", ep.path)
		}
	}

	return nil
}

// gatherer serves the metrics of a custom registerer when it can gather
// them, the default registry otherwise.
func (a *Manager) gatherer() prometheus.Gatherer {
	if g, ok := a.register.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}
