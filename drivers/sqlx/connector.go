// Package sqlx connects the pool to PostgreSQL and ClickHouse through
// database/sql.
package sqlx

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/soldatov-s/go-dispatch/drivers/sqlx/migrations"
	"github.com/soldatov-s/go-dispatch/pool/driver"

	// database/sql drivers
	_ "github.com/ClickHouse/clickhouse-go"
	_ "github.com/lib/pq"
)

var ErrUnsupportedDialect = errors.New("unsupported dialect")

// Connector opens one *sqlx.DB per pool connection, limited to a single
// underlying link, so the pool keeps full control over connection count.
type Connector struct {
	config   *Config
	migrator *migrations.Migrator
}

func NewConnector(cfg *Config) (*Connector, error) {
	cfg = cfg.SetDefault()
	switch cfg.Dialect {
	case DialectPostgres, DialectClickHouse:
	default:
		return nil, errors.Wrapf(ErrUnsupportedDialect, "%q", cfg.Dialect)
	}

	return &Connector{
		config:   cfg,
		migrator: migrations.NewMigrator(cfg.Dialect, cfg.Migrate),
	}, nil
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	dsn := driver.RedactDSN(c.config.DSN)
	zerolog.Ctx(ctx).Debug().
		Str("dialect", c.config.Dialect).
		Str("dsn", dsn).
		Msg("establishing connection...")

	db, err := sqlx.ConnectContext(ctx, c.config.Dialect, c.config.ComposeDSN())
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := c.migrator.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	return &Conn{db: db, dialect: c.config.Dialect}, nil
}
