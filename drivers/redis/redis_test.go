package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/soldatov-s/go-dispatch/pool/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnector(t *testing.T) {
	c, err := NewConnector(&Config{DSN: "redis://:secret@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", c.options.Addr)
	assert.Equal(t, 2, c.options.DB)
	assert.Equal(t, 1, c.options.PoolSize)

	_, err = NewConnector(&Config{DSN: "http://cache"})
	assert.Error(t, err)
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		stmt *driver.Statement
		want []interface{}
	}{
		{
			name: "literal",
			stmt: &driver.Statement{Query: "GET  key"},
			want: []interface{}{"GET", "key"},
		},
		{
			name: "with args",
			stmt: &driver.Statement{Query: "SET", Args: []interface{}{"key", 5}},
			want: []interface{}{"SET", "key", 5},
		},
		{
			name: "empty",
			stmt: &driver.Statement{},
			want: []interface{}{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, commandArgs(tt.stmt))
		})
	}
}

func TestExecuteEmptyCommand(t *testing.T) {
	c := &Conn{}
	_, err := c.Execute(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestIntegration(t *testing.T) {
	dsn := os.Getenv("DISPATCH_TEST_REDIS_DSN")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_REDIS_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connector, err := NewConnector(&Config{DSN: dsn})
	require.NoError(t, err)

	conn, err := connector.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Execute(ctx, driver.Statement{Query: "SET", Args: []interface{}{"dispatch:test", "v"}})
	require.NoError(t, err)

	res, err := conn.Execute(ctx, "GET dispatch:test")
	require.NoError(t, err)
	assert.Equal(t, "v", res)

	res, err = conn.Execute(ctx, "GET dispatch:missing")
	require.NoError(t, err)
	assert.Nil(t, res)
}
