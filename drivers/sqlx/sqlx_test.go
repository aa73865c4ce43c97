package sqlx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/soldatov-s/go-dispatch/pool/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSetDefault(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		dialect string
		dsn     string
	}{
		{
			name:    "nil",
			dialect: DialectPostgres,
			dsn:     defaultPostgresDSN + "?" + defaultPostgresOptions,
		},
		{
			name:    "clickhouse",
			cfg:     &Config{Dialect: "ClickHouse"},
			dialect: DialectClickHouse,
			dsn:     defaultClickHouseDSN + "?" + defaultClickHouseOptions,
		},
		{
			name:    "dsn with query",
			cfg:     &Config{DSN: "postgres://u:p@db/app?sslmode=require", Options: "connect_timeout=5"},
			dialect: DialectPostgres,
			dsn:     "postgres://u:p@db/app?sslmode=require&connect_timeout=5",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg.SetDefault()
			assert.Equal(t, tt.dialect, cfg.Dialect)
			assert.Equal(t, tt.dsn, cfg.ComposeDSN())
			require.NotNil(t, cfg.Migrate)
		})
	}
}

func TestNewConnectorUnsupportedDialect(t *testing.T) {
	_, err := NewConnector(&Config{Dialect: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}

func TestExecuteUnsupportedPayload(t *testing.T) {
	c := &Conn{}
	_, err := c.Execute(context.Background(), 42)
	assert.ErrorIs(t, err, driver.ErrUnsupportedPayload)
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("DISPATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_POSTGRES_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connector, err := NewConnector(&Config{DSN: dsn, Options: "sslmode=disable"})
	require.NoError(t, err)

	conn, err := connector.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	pinger, ok := conn.(driver.Pinger)
	require.True(t, ok)
	require.NoError(t, pinger.Ping(ctx))

	res, err := conn.Execute(ctx, driver.Statement{Query: "select $1::text as name", Args: []interface{}{"dispatch"}})
	require.NoError(t, err)
	rows := res.(*driver.Rows)
	assert.Equal(t, []string{"name"}, rows.Columns)
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, "dispatch", rows.Rows[0]["name"])

	res, err = conn.Execute(ctx, driver.Statement{Query: "create temporary table t (id int)", Exec: true})
	require.NoError(t, err)
	assert.IsType(t, &driver.ExecResult{}, res)

	_, err = conn.Execute(ctx, "select * from missing_table")
	assert.Error(t, err)
}
