package echo

import (
	"time"

	"github.com/labstack/echo/v4"
)

const defaultAddress = "localhost:9000"

type Config struct {
	// Address to listen on, host:port.
	Address string `envconfig:"optional"`
	// CertFile and KeyFile enable TLS when both are set.
	CertFile string `envconfig:"optional"`
	KeyFile  string `envconfig:"optional"`

	DisableHTTP2 bool `envconfig:"optional"`
	Debug        bool `envconfig:"optional"`
	// ShowBanner prints the echo banner and the listen address on start.
	ShowBanner bool `envconfig:"optional"`

	// ReadHeaderTimeout defaults to 5s, ReadTimeout and WriteTimeout to
	// 10s. WriteTimeout also bounds how long a query request may wait for
	// its result.
	ReadHeaderTimeout time.Duration `envconfig:"optional"`
	ReadTimeout       time.Duration `envconfig:"optional"`
	WriteTimeout      time.Duration `envconfig:"optional"`
}

// SetDefault returns a copy of the config with empty fields filled in.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	if cfgCopy.Address == "" {
		cfgCopy.Address = defaultAddress
	}

	for _, d := range []struct {
		field *time.Duration
		value time.Duration
	}{
		{&cfgCopy.ReadHeaderTimeout, 5 * time.Second},
		{&cfgCopy.ReadTimeout, 10 * time.Second},
		{&cfgCopy.WriteTimeout, 10 * time.Second},
	} {
		if *d.field <= 0 {
			*d.field = d.value
		}
	}

	return &cfgCopy
}

// NewEcho builds an echo server out of the config.
func (c *Config) NewEcho() *echo.Echo {
	srv := echo.New()
	srv.Debug = c.Debug
	srv.DisableHTTP2 = c.DisableHTTP2
	srv.HideBanner = !c.ShowBanner
	srv.HidePort = !c.ShowBanner

	srv.Server.Addr = c.Address
	srv.Server.ReadHeaderTimeout = c.ReadHeaderTimeout
	srv.Server.ReadTimeout = c.ReadTimeout
	srv.Server.WriteTimeout = c.WriteTimeout

	return srv
}
