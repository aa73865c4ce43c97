package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/soldatov-s/go-dispatch/app"
	"github.com/soldatov-s/go-dispatch/config"
	"github.com/soldatov-s/go-dispatch/dispatch"
	"github.com/soldatov-s/go-dispatch/events/rabbitmq"
	"github.com/soldatov-s/go-dispatch/httpsrv/echo"
	"github.com/soldatov-s/go-dispatch/log"
	"github.com/soldatov-s/go-dispatch/pool/driver"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Set with -ldflags "-X main.version=..."
var (
	version string
	builded string
	hash    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dispatchd",
		Short:         "asynchronous database query dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		exec   bool
		repeat int
	)
	queryCmd := app.CreateQueryCmd(func(cmd *cobra.Command, args []string) error {
		return runQueries(cmd.Context(), args, exec, repeat)
	})
	queryCmd.Flags().BoolVar(&exec, "exec", false, "run statements without reading rows")
	queryCmd.Flags().IntVar(&repeat, "repeat", 1, "submit every statement this many times")

	rootCmd.AddCommand(
		app.CreateServeCmd(func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		}),
		queryCmd,
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func meta() *app.Meta {
	return &app.Meta{
		Name:        "dispatchd",
		Builded:     builded,
		Hash:        hash,
		Version:     version,
		Description: "asynchronous database query dispatcher",
	}
}

func setup(ctx context.Context) (context.Context, *config.Config, *log.Logger, error) {
	cfg, err := config.Parse()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "parse config")
	}

	logger, err := log.NewLogger(ctx, cfg.Log)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "new logger")
	}

	return logger.WithContext(ctx), cfg, logger, nil
}

func newEngine(ctx context.Context, cfg *config.Config, opts ...dispatch.Option) (*dispatch.Engine, error) {
	connector, err := cfg.Connector()
	if err != nil {
		return nil, errors.Wrap(err, "build connector")
	}

	engine, err := dispatch.NewEngine(ctx, dispatch.DefaultName, cfg.Engine, connector, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "new engine")
	}

	return engine, nil
}

func serve(ctx context.Context) error {
	ctx, cfg, logger, err := setup(ctx)
	if err != nil {
		return err
	}

	errGroup, ctx := errgroup.WithContext(ctx)

	httpSrv, err := echo.NewEnity(ctx, echo.DefaultName, cfg.HTTP, errGroup, echo.DefaultMiddlewares(ctx)...)
	if err != nil {
		return errors.Wrap(err, "new http server")
	}

	manager := app.NewManager(&app.ManagerDeps{
		Meta:               meta(),
		StatsHTTPEnityName: httpSrv.GetFullName(),
		Logger:             logger,
		ErrorGroup:         errGroup,
	})

	var opts []dispatch.Option
	if cfg.PublishEvents {
		conn, err := rabbitmq.Dial(cfg.Rabbitmq.URL)
		if err != nil {
			return errors.Wrap(err, "dial rabbitmq")
		}

		publisher, err := rabbitmq.NewPublisher(ctx, rabbitmq.DefaultName, cfg.Rabbitmq, conn)
		if err != nil {
			_ = conn.Close()
			return errors.Wrap(err, "new publisher")
		}

		if err := manager.Add(ctx, publisher); err != nil {
			return errors.Wrap(err, "add publisher")
		}
		opts = append(opts, dispatch.WithCompletionHook(publisher.Hook))
	}

	engine, err := newEngine(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	if err := manager.Add(ctx, engine); err != nil {
		return errors.Wrap(err, "add engine")
	}

	echo.NewQueryHandler(engine).Register(httpSrv.APIGroup(ctx, "1"))
	if err := manager.Add(ctx, httpSrv); err != nil {
		return errors.Wrap(err, "add http server")
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Zerolog().Err(err).Msg("shutdown")
		}
	}()

	if err := manager.Start(ctx); err != nil {
		return errors.Wrap(err, "start")
	}

	if err := manager.OSSignalWaiter(ctx); err != nil {
		return errors.Wrap(err, "wait os signal")
	}

	return manager.Loop(ctx)
}

type queryOutput struct {
	Statement string           `json:"statement"`
	Result    *dispatch.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// runQueries submits every statement repeat times at once and prints the
// results in submission order as JSON lines.
func runQueries(ctx context.Context, statements []string, exec bool, repeat int) error {
	ctx, cfg, _, err := setup(ctx)
	if err != nil {
		return err
	}

	engine, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}

	if err := engine.Start(ctx); err != nil {
		return errors.Wrap(err, "start engine")
	}
	defer engine.Stop()

	if repeat < 1 {
		repeat = 1
	}

	outputs := make([]queryOutput, 0, len(statements)*repeat)
	for i := 0; i < repeat; i++ {
		for _, s := range statements {
			outputs = append(outputs, queryOutput{Statement: s})
		}
	}

	var g errgroup.Group
	for i := range outputs {
		out := &outputs[i]
		g.Go(func() error {
			res, err := engine.Do(ctx, &driver.Statement{Query: out.Statement, Exec: exec})
			out.Result = res
			if err != nil {
				out.Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for i := range outputs {
		if outputs[i].Error != "" {
			failed++
		}
		if err := enc.Encode(&outputs[i]); err != nil {
			return errors.Wrap(err, "encode result")
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d queries failed", failed, len(outputs))
	}

	return nil
}
