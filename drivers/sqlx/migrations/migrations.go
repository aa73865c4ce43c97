// Package migrations applies goose migrations to a freshly established
// database connection.
package migrations

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pressly/goose"
	"github.com/rs/zerolog"
)

const (
	ActionNothing = "nothing"
	ActionUp      = "up"
	ActionDown    = "down"
)

var ErrUnsupportedAction = errors.New("unsupported migration action")

// goose keeps dialect and table name in package globals.
var gooseMu sync.Mutex

type Config struct {
	// Action for migration, may be: nothing, up, down
	Action string `envconfig:"optional"`
	// Count of applied/rollbacked migration, zero means all
	Count int64 `envconfig:"optional"`
	// Directory is a path to migrate scripts
	Directory string `envconfig:"optional"`
	// Schema is created before migrating when set
	Schema string `envconfig:"optional"`
}

// SetDefault checks migration options. If required field is empty - it will
// be filled with some default value.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	cfgCopy.Action = strings.ToLower(cfgCopy.Action)
	if cfgCopy.Action == "" {
		cfgCopy.Action = ActionNothing
	}

	if cfgCopy.Directory == "" {
		cfgCopy.Directory = "."
	}

	return &cfgCopy
}

type Migrator struct {
	dialect string
	cfg     *Config

	mu       sync.Mutex
	migrated bool
}

func NewMigrator(dialect string, cfg *Config) *Migrator {
	return &Migrator{
		dialect: dialect,
		cfg:     cfg.SetDefault(),
	}
}

func (m *Migrator) Migrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migrated
}

// Migrate runs the configured action once. After the first success it's a
// no-op, so it can be called for every new connection.
func (m *Migrator) Migrate(ctx context.Context, db *sql.DB) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.migrated || m.cfg.Action == ActionNothing {
		m.migrated = true
		return nil
	}

	logger := zerolog.Ctx(ctx).With().Str("subsystem", "database migrations").Logger()

	if m.cfg.Schema != "" {
		if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+m.cfg.Schema); err != nil {
			return errors.Wrap(err, "create schema")
		}
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(m.dialect); err != nil {
		return errors.Wrap(err, "set dialect")
	}

	if m.cfg.Schema != "" {
		goose.SetTableName(m.cfg.Schema + ".goose_db_version")
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return errors.Wrap(err, "get database version")
	}
	logger.Debug().Int64("database version", current).Msg("current database version obtained")

	if err := m.migrate(&logger, db, current); err != nil {
		return errors.Wrap(err, "execute migration sequence")
	}

	logger.Info().Msg("database migrated successfully")
	m.migrated = true
	return nil
}

func (m *Migrator) migrate(logger *zerolog.Logger, db *sql.DB, current int64) error {
	switch {
	case m.cfg.Action == ActionUp && m.cfg.Count == 0:
		logger.Info().Msg("applying all unapplied migrations...")
		return goose.Up(db, m.cfg.Directory)
	case m.cfg.Action == ActionUp:
		version := current + m.cfg.Count
		logger.Info().Int64("new version", version).Msg("migrating database to specific version")
		return goose.UpTo(db, m.cfg.Directory, version)
	case m.cfg.Action == ActionDown && m.cfg.Count == 0:
		logger.Warn().Msg("downgrading database to zero state")
		return goose.DownTo(db, m.cfg.Directory, 0)
	case m.cfg.Action == ActionDown:
		version := current - m.cfg.Count
		logger.Info().Int64("new version", version).Msg("downgrading database to specific version")
		return goose.DownTo(db, m.cfg.Directory, version)
	default:
		return errors.Wrapf(ErrUnsupportedAction, "%q", m.cfg.Action)
	}
}
