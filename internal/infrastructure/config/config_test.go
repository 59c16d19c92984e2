package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/core/entity"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ORDERFLOW_STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, "log", cfg.Notification.Backend)

	locs, err := cfg.Ledger.Locations()
	require.NoError(t, err)
	assert.Equal(t, []entity.Location{entity.LocationNG, entity.LocationPH}, locs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ORDERFLOW_STORAGE_DRIVER", "postgres")
	t.Setenv("ORDERFLOW_DATABASE_DSN", "postgres://localhost/orderflow")
	t.Setenv("ORDERFLOW_LEDGER_ALLOCATION_ORDER", "PH,ng")
	t.Setenv("ORDERFLOW_LOCK_WAIT", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/orderflow", cfg.Database.DSN)
	assert.Equal(t, 500*time.Millisecond, cfg.Lock.Wait)

	locs, err := cfg.Ledger.Locations()
	require.NoError(t, err)
	assert.Equal(t, []entity.Location{entity.LocationPH, entity.LocationNG}, locs)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "orderflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
http:
  port: "9090"
ledger:
  allocation_order: [PH]
`), 0o600))
	t.Setenv("ORDERFLOW_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, []string{"PH"}, cfg.Ledger.AllocationOrder)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Storage:      StorageConfig{Driver: DriverMemory},
			Lock:         LockConfig{Backend: "local"},
			Notification: NotificationConfig{Backend: "log"},
			Ledger:       LedgerConfig{AllocationOrder: []string{"NG"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, true},
		{"redis lock without redis", func(c *Config) { c.Lock.Backend = "redis" }, true},
		{"outbox on memory", func(c *Config) { c.Notification.Backend = "outbox" }, true},
		{"unknown location", func(c *Config) { c.Ledger.AllocationOrder = []string{"XX"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
