// Package pgx connects the pool to PostgreSQL with the native pgx protocol
// implementation, one *pgx.Conn per pool connection.
package pgx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/soldatov-s/go-dispatch/pool/driver"
)

const (
	defaultDSN          = "postgres://db:db@localhost:15432/db?sslmode=disable"
	defaultCloseTimeout = 5 * time.Second
)

type Config struct {
	// DSN is a connection string in form of URL or key/value pairs.
	DSN string `envconfig:"optional"`
	// CloseTimeout bounds the graceful termination of a connection.
	CloseTimeout time.Duration `envconfig:"optional"`
}

// SetDefault returns a copy of the config with empty fields filled in.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	if cfgCopy.DSN == "" {
		cfgCopy.DSN = defaultDSN
	}

	if cfgCopy.CloseTimeout <= 0 {
		cfgCopy.CloseTimeout = defaultCloseTimeout
	}

	return &cfgCopy
}

type Connector struct {
	config *pgx.ConnConfig
	cfg    *Config
}

func NewConnector(cfg *Config) (*Connector, error) {
	cfg = cfg.SetDefault()
	connConfig, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	return &Connector{config: connConfig, cfg: cfg}, nil
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	dsn := driver.RedactDSN(c.cfg.DSN)
	zerolog.Ctx(ctx).Debug().Str("dsn", dsn).Msg("establishing connection...")

	conn, err := pgx.ConnectConfig(ctx, c.config.Copy())
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	return &Conn{conn: conn, closeTimeout: c.cfg.CloseTimeout}, nil
}

type Conn struct {
	conn         *pgx.Conn
	closeTimeout time.Duration
}

func (c *Conn) Execute(ctx context.Context, payload interface{}) (interface{}, error) {
	stmt, err := driver.ToStatement(payload)
	if err != nil {
		return nil, err
	}

	if stmt.Exec {
		tag, err := c.conn.Exec(ctx, stmt.Query, stmt.Args...)
		if err != nil {
			return nil, errors.Wrap(err, "exec")
		}
		return &driver.ExecResult{RowsAffected: tag.RowsAffected()}, nil
	}

	rows, err := c.conn.Query(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}

	columns := make([]string, 0)
	collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (map[string]interface{}, error) {
		if len(columns) == 0 {
			for _, fd := range row.FieldDescriptions() {
				columns = append(columns, fd.Name)
			}
		}
		return pgx.RowToMap(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect rows")
	}

	return &driver.Rows{Columns: columns, Rows: collected}, nil
}

// IsValid reports false once pgx has given up on the underlying link.
func (c *Conn) IsValid() bool {
	return !c.conn.IsClosed()
}

func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
	defer cancel()
	return c.conn.Close(ctx)
}
