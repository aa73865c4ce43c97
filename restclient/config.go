package restclient

import "time"

const (
	defaultBaseURL               = "http://localhost:9000"
	defaultTimeout               = 30 * time.Second
	defaultDialerTimeout         = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
)

type Config struct {
	// BaseURL of a dispatchd instance, e.g. http://localhost:9000
	BaseURL string `envconfig:"optional"`
	// Timeout bounds a whole request including the query execution.
	Timeout               time.Duration `envconfig:"optional"`
	DialerTimeout         time.Duration `envconfig:"optional"`
	TLSHandshakeTimeout   time.Duration `envconfig:"optional"`
	IdleConnTimeout       time.Duration `envconfig:"optional"`
	ResponseHeaderTimeout time.Duration `envconfig:"optional"`
}

// SetDefault returns a copy of the config with empty fields filled in.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	if cfgCopy.BaseURL == "" {
		cfgCopy.BaseURL = defaultBaseURL
	}

	if cfgCopy.Timeout <= 0 {
		cfgCopy.Timeout = defaultTimeout
	}

	if cfgCopy.DialerTimeout <= 0 {
		cfgCopy.DialerTimeout = defaultDialerTimeout
	}

	if cfgCopy.TLSHandshakeTimeout <= 0 {
		cfgCopy.TLSHandshakeTimeout = defaultTLSHandshakeTimeout
	}

	if cfgCopy.IdleConnTimeout <= 0 {
		cfgCopy.IdleConnTimeout = defaultIdleConnTimeout
	}

	if cfgCopy.ResponseHeaderTimeout <= 0 {
		cfgCopy.ResponseHeaderTimeout = defaultResponseHeaderTimeout
	}

	return &cfgCopy
}
