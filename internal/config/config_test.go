package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "revkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, DefaultPath, cfg.Database.Path)
	assert.Equal(t, Duration(72*time.Hour), cfg.Engine.DeletionDelay)
	assert.False(t, cfg.Engine.Simulation)
	assert.False(t, cfg.Events.Redis.Enabled())
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  host: db.internal
  user: rev
  password: secret
  name: records
  max_conns: 4
events:
  log: true
  redis:
    addr: localhost:6379
    stream: audit
engine:
  simulation: true
  deletion_delay: 24h
log:
  level: debug
  format: json
schema:
  paths: [types.yaml, extra.cue]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.True(t, cfg.Events.Log)
	assert.True(t, cfg.Events.Redis.Enabled())
	assert.Equal(t, "audit", cfg.Events.Redis.Stream)
	assert.True(t, cfg.Engine.Simulation)
	assert.Equal(t, Duration(24*time.Hour), cfg.Engine.DeletionDelay)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, []string{"types.yaml", "extra.cue"}, cfg.Schema.Paths)

	driver, dsn := cfg.Database.DataSource()
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "host=db.internal port=5432 user=rev password=secret dbname=records sslmode=disable", dsn)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  path: from-file.db\nengine:\n  deletion_delay: 1h\n")
	t.Setenv("REVKIT_DATABASE_PATH", "from-env.db")
	t.Setenv("REVKIT_DELETION_DELAY", "30m")
	t.Setenv("REVKIT_SIMULATION", "true")
	t.Setenv("REVKIT_REDIS_ADDR", "redis:6379")
	t.Setenv("REVKIT_REDIS_DB", "2")
	t.Setenv("REVKIT_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	driver, dsn := cfg.Database.DataSource()
	assert.Equal(t, "sqlite3", driver)
	assert.Equal(t, "from-env.db", dsn)
	assert.Equal(t, Duration(30*time.Minute), cfg.Engine.DeletionDelay)
	assert.True(t, cfg.Engine.Simulation)
	assert.Equal(t, "redis:6379", cfg.Events.Redis.Addr)
	assert.Equal(t, 2, cfg.Events.Redis.DB)
	assert.Equal(t, slog.LevelWarn, cfg.Log.SlogLevel())
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	t.Setenv("REVKIT_DATABASE_MAX_CONNS", "many")
	t.Setenv("REVKIT_SIMULATION", "perhaps")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Database.MaxConns)
	assert.False(t, cfg.Engine.Simulation)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "database:\n  flavour: mysql\n", "flavour"},
		{"bad duration", "engine:\n  deletion_delay: soon\n", "soon"},
		{"unknown driver", "database:\n  driver: mysql\n", "database.driver"},
		{"negative delay", "engine:\n  deletion_delay: -1h\n", "deletion_delay"},
		{"postgres without dsn", "database:\n  driver: postgres\n", "database.dsn"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestDatabaseConfig_ExplicitDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", DSN: "postgres://u@h/db", Host: "ignored"}
	assert.Equal(t, "postgres://u@h/db", c.GetDSN())
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "log.format")
}
