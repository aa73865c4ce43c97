package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSetDefault(t *testing.T) {
	var nilCfg *Config
	cfg := nilCfg.SetDefault()
	assert.Equal(t, ActionNothing, cfg.Action)
	assert.Equal(t, ".", cfg.Directory)

	src := &Config{Action: "UP", Directory: "/migrations"}
	cfg = src.SetDefault()
	assert.Equal(t, ActionUp, cfg.Action)
	assert.Equal(t, "/migrations", cfg.Directory)
	assert.Equal(t, "UP", src.Action)
}

func TestMigrateNothing(t *testing.T) {
	m := NewMigrator("postgres", nil)
	require.False(t, m.Migrated())

	// No database access happens for ActionNothing.
	require.NoError(t, m.Migrate(context.Background(), nil))
	assert.True(t, m.Migrated())
}

func TestMigrateUnsupportedAction(t *testing.T) {
	m := NewMigrator("postgres", &Config{Action: "sideways"})
	err := m.migrate(nil, nil, 0)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}
