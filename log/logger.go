package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/soldatov-s/go-dispatch/base"
)

type Logger struct {
	zerolog zerolog.Logger
	*base.MetricsStorage
}

func NewLogger(ctx context.Context, config *Config) (*Logger, error) {
	return newLogger(ctx, config, os.Stdout)
}

func newLogger(ctx context.Context, config *Config, out io.Writer) (*Logger, error) {
	logger := &Logger{
		MetricsStorage: base.NewMetricsStorage(),
	}
	config = config.SetDefault()
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return nil, errors.Wrap(err, "parse level")
	}

	zerolog.SetGlobalLevel(level)

	output := buildLoggerOutput(out, config.HumanFriendly, config.NoColoredOutput)

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	l := zerolog.New(output).With().Timestamp().Logger()
	l = l.Hook(NewTracingHook(config.WithTrace))

	logger.zerolog = l
	if err := logger.buildMetrics(ctx); err != nil {
		return nil, errors.Wrap(err, "build metrics")
	}

	return logger, nil
}

func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zerolog
}

// WithContext attaches the logger to ctx, so that zerolog.Ctx finds it.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zerolog.WithContext(ctx)
}

func buildLoggerOutput(out io.Writer, isHumanFriendly, isNoColoredOutput bool) io.Writer {
	if !isHumanFriendly {
		return out
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    isNoColoredOutput,
		TimeFormat: time.RFC3339,
	}

	output.FormatLevel = func(i interface{}) string {
		var v string

		if ii, ok := i.(string); ok {
			ii = strings.ToUpper(ii)
			switch ii {
			case "DEBUG", "ERROR", "FATAL", "INFO", "WARN", "PANIC", "TRACE":
				v = fmt.Sprintf("%-5s", ii)
			default:
				v = ii
			}
		}

		return fmt.Sprintf("| %s |", v)
	}

	return output
}

func (l *Logger) buildMetrics(_ context.Context) error {
	fullName := "logger"

	helpWarns := "How many warnings occurred."
	warnsMetric, err := l.MetricsStorage.GetMetrics().AddCounter(fullName, "warns total", helpWarns)
	if err != nil {
		return errors.Wrap(err, "add counter metric")
	}
	l.zerolog = l.zerolog.Hook(NewMetricWarnHook(warnsMetric))

	helpErrors := "How many errors occurred."
	errorsMetric, err := l.MetricsStorage.GetMetrics().AddCounter(fullName, "errors total", helpErrors)
	if err != nil {
		return errors.Wrap(err, "add counter metric")
	}
	l.zerolog = l.zerolog.Hook(NewMetricErrorHook(errorsMetric))

	return nil
}
