package pool

import "time"

type Config struct {
	// MaxOpenConns limits connections open at once, established or being
	// established. Zero means no limit.
	MaxOpenConns int `envconfig:"optional"`
	// MaxIdleConns limits idle connections kept for reuse. Zero means
	// MaxOpenConns (or no limit when MaxOpenConns is zero).
	MaxIdleConns int `envconfig:"optional"`
	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration `envconfig:"optional"`
	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration `envconfig:"optional"`
}

// SetDefault returns a copy of the config with negative values cleared.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	if cfgCopy.MaxOpenConns < 0 {
		cfgCopy.MaxOpenConns = 0
	}

	if cfgCopy.MaxIdleConns < 0 {
		cfgCopy.MaxIdleConns = 0
	}

	if cfgCopy.ConnMaxLifetime < 0 {
		cfgCopy.ConnMaxLifetime = 0
	}

	if cfgCopy.ConnMaxIdleTime < 0 {
		cfgCopy.ConnMaxIdleTime = 0
	}

	return &cfgCopy
}
