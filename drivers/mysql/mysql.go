// Package mysql connects the pool to MySQL with a native protocol client.
package mysql

import (
	"context"
	"net"
	"time"

	"github.com/go-mysql-org/go-mysql/client"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/soldatov-s/go-dispatch/pool/driver"
)

const (
	defaultAddr = "127.0.0.1:3306"
	defaultUser = "root"
)

type Config struct {
	Addr     string `envconfig:"optional"`
	User     string `envconfig:"optional"`
	Password string `envconfig:"optional"`
	DB       string `envconfig:"optional"`
	Charset  string `envconfig:"optional"`
}

// SetDefault returns a copy of the config with empty fields filled in.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	if cfgCopy.Addr == "" {
		cfgCopy.Addr = defaultAddr
	}

	if cfgCopy.User == "" {
		cfgCopy.User = defaultUser
	}

	return &cfgCopy
}

type Connector struct {
	config *Config
}

func NewConnector(cfg *Config) *Connector {
	return &Connector{config: cfg.SetDefault()}
}

func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	zerolog.Ctx(ctx).Debug().
		Str("addr", c.config.Addr).
		Str("user", c.config.User).
		Msg("establishing connection...")

	dialer := &net.Dialer{}
	conn, err := client.ConnectWithDialer(ctx, "tcp", c.config.Addr, c.config.User, c.config.Password,
		c.config.DB, dialer.DialContext)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	if c.config.Charset != "" {
		if err := conn.SetCharset(c.config.Charset); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "set charset")
		}
	}

	return &Conn{conn: conn}, nil
}

type Conn struct {
	conn *client.Conn
}

// Execute runs the statement with the text protocol, or as a prepared
// statement when it carries arguments. The client has no context support,
// so the context deadline is applied to the socket.
func (c *Conn) Execute(ctx context.Context, payload interface{}) (interface{}, error) {
	stmt, err := driver.ToStatement(payload)
	if err != nil {
		return nil, err
	}

	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}

	res, err := c.conn.Execute(stmt.Query, stmt.Args...)
	if err != nil {
		return nil, errors.Wrap(err, "execute")
	}

	if stmt.Exec || res.Resultset == nil {
		return &driver.ExecResult{
			RowsAffected: int64(res.AffectedRows),
			LastInsertID: int64(res.InsertId),
		}, nil
	}

	columns := make([]string, len(res.Fields))
	for i, f := range res.Fields {
		columns[i] = string(f.Name)
	}

	rows := &driver.Rows{
		Columns: columns,
		Rows:    make([]map[string]interface{}, 0, res.RowNumber()),
	}

	for i := 0; i < res.RowNumber(); i++ {
		row := make(map[string]interface{}, len(columns))
		for j, name := range columns {
			v, err := res.GetValue(i, j)
			if err != nil {
				return nil, errors.Wrapf(err, "get value %d:%d", i, j)
			}
			row[name] = driver.NormalizeValue(v)
		}
		rows.Rows = append(rows.Rows, row)
	}

	return rows, nil
}

func (c *Conn) applyDeadline(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return errors.Wrap(err, "set deadline")
	}
	return nil
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.applyDeadline(ctx); err != nil {
		return err
	}
	return c.conn.Ping()
}

func (c *Conn) Close() error {
	_ = c.conn.SetDeadline(time.Now().Add(time.Second))
	return c.conn.Close()
}
