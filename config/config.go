// Package config loads the service configuration from environment
// variables. Every variable is optional and carries the DISPATCH prefix,
// e.g. DISPATCH_DRIVER, DISPATCH_ENGINE_POOL_MAX_OPEN_CONNS,
// DISPATCH_REDIS_DSN or DISPATCH_RABBITMQ_URL.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/soldatov-s/go-dispatch/dispatch"
	"github.com/soldatov-s/go-dispatch/drivers/mongo"
	"github.com/soldatov-s/go-dispatch/drivers/mysql"
	"github.com/soldatov-s/go-dispatch/drivers/pgx"
	"github.com/soldatov-s/go-dispatch/drivers/redis"
	"github.com/soldatov-s/go-dispatch/drivers/sqlx"
	"github.com/soldatov-s/go-dispatch/events/rabbitmq"
	"github.com/soldatov-s/go-dispatch/httpsrv/echo"
	"github.com/soldatov-s/go-dispatch/log"
	"github.com/soldatov-s/go-dispatch/pool/driver"
	"github.com/vrischmann/envconfig"
)

const DefaultPrefix = "DISPATCH"

const (
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
	DriverPGX        = "pgx"
	DriverMySQL      = "mysql"
	DriverRedis      = "redis"
	DriverMongo      = "mongo"
)

var ErrUnknownDriver = errors.New("unknown driver")

type Config struct {
	// Driver selects the database: postgres, clickhouse, pgx, mysql, redis
	// or mongo. Default: postgres.
	Driver string `envconfig:"optional"`
	// PublishEvents enables publishing of completion events to RabbitMQ.
	PublishEvents bool `envconfig:"optional"`

	Log      *log.Config
	Engine   *dispatch.Config
	HTTP     *echo.Config
	Rabbitmq *rabbitmq.Config

	// SQL serves both the postgres and the clickhouse drivers, its
	// dialect is always set from Driver.
	SQL   *sqlx.Config
	PGX   *pgx.Config
	Mysql *mysql.Config
	Redis *redis.Config
	Mongo *mongo.Config
}

// Parse reads the configuration from environment variables with the
// DISPATCH prefix.
func Parse() (*Config, error) {
	return ParseWithPrefix(DefaultPrefix)
}

func ParseWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.InitWithOptions(&cfg, envconfig.Options{
		Prefix:      prefix,
		AllOptional: true,
	}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}

	return cfg.SetDefault(), nil
}

// SetDefault returns a copy of the config with empty fields filled in.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	cfgCopy.Driver = strings.ToLower(cfgCopy.Driver)
	if cfgCopy.Driver == "" {
		cfgCopy.Driver = DriverPostgres
	}

	cfgCopy.Log = cfgCopy.Log.SetDefault()
	cfgCopy.Engine = cfgCopy.Engine.SetDefault()
	cfgCopy.HTTP = cfgCopy.HTTP.SetDefault()
	cfgCopy.Rabbitmq = cfgCopy.Rabbitmq.SetDefault()

	var sqlCfg sqlx.Config
	if cfgCopy.SQL != nil {
		sqlCfg = *cfgCopy.SQL
	}
	if cfgCopy.Driver == DriverPostgres || cfgCopy.Driver == DriverClickHouse {
		sqlCfg.Dialect = cfgCopy.Driver
	}
	cfgCopy.SQL = sqlCfg.SetDefault()

	cfgCopy.PGX = cfgCopy.PGX.SetDefault()
	cfgCopy.Mysql = cfgCopy.Mysql.SetDefault()
	cfgCopy.Redis = cfgCopy.Redis.SetDefault()
	cfgCopy.Mongo = cfgCopy.Mongo.SetDefault()

	return &cfgCopy
}

// Connector builds the connector of the selected driver.
func (c *Config) Connector() (driver.Connector, error) {
	switch c.Driver {
	case DriverPostgres, DriverClickHouse:
		return sqlx.NewConnector(c.SQL)
	case DriverPGX:
		return pgx.NewConnector(c.PGX)
	case DriverMySQL:
		return mysql.NewConnector(c.Mysql), nil
	case DriverRedis:
		return redis.NewConnector(c.Redis)
	case DriverMongo:
		return mongo.NewConnector(c.Mongo), nil
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "%q", c.Driver)
	}
}
