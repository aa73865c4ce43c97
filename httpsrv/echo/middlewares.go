package echo

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var ErrNotFoundZerolog = errors.New("not found zerolog")

func DefaultMiddlewares(ctx context.Context) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.Recover(),
		RequestID(ctx),
		HydrationZerolog(ctx),
	}
}

// CORSDefault allows requests from any origin with GET, HEAD or POST method.
func CORSDefault() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
		},
		AllowHeaders: []string{
			"Accept",
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"X-Request-Id",
		},
	})
}

func RequestID(ctx context.Context) echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Skipper: middleware.DefaultSkipper,
		Generator: func() string {
			id, err := uuid.NewRandom()
			if err != nil {
				zerolog.Ctx(ctx).Err(err).Msg("generate request id")
				return ""
			}
			return id.String()
		},
	})
}

func GetReqID(ec echo.Context) string {
	if id := ec.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return ec.Response().Header().Get(echo.HeaderXRequestID)
}

const zerologCtxKey = "zerolog"

// HydrationZerolog puts a logger with the request id into the echo context.
func HydrationZerolog(ctx context.Context) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := zerolog.Ctx(ctx).With().Str("request_id", GetReqID(c)).Logger()
			c.Set(zerologCtxKey, &l)
			return next(c)
		}
	}
}

func GetZerologger(ec echo.Context) (*zerolog.Logger, error) {
	logger, ok := ec.Get(zerologCtxKey).(*zerolog.Logger)
	if !ok {
		return nil, ErrNotFoundZerolog
	}
	return logger, nil
}
