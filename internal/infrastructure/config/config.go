// Package config loads application configuration with viper. Values come
// from built-in defaults, an optional config file and ORDERFLOW_* environment
// variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"orderflow/internal/core/entity"
)

// EnvPrefix prefixes every environment override, e.g. ORDERFLOW_DATABASE_DSN.
const EnvPrefix = "ORDERFLOW"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Lock         LockConfig         `mapstructure:"lock"`
	Notification NotificationConfig `mapstructure:"notification"`
	Idempotency  IdempotencyConfig  `mapstructure:"idempotency"`
	Log          LogConfig          `mapstructure:"log"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool { return c.Env == "development" }

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// LockConfig tunes per-line locking.
type LockConfig struct {
	// Backend is "local" or "redis".
	Backend string        `mapstructure:"backend"`
	Prefix  string        `mapstructure:"prefix"`
	Wait    time.Duration `mapstructure:"wait"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// NotificationConfig selects where domain events go.
type NotificationConfig struct {
	// Backend is "log", "outbox" or "redis".
	Backend       string `mapstructure:"backend"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// IdempotencyConfig tunes the Idempotency-Key middleware.
type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LedgerConfig tunes stock allocation.
type LedgerConfig struct {
	// AllocationOrder lists main locations in reservation priority.
	AllocationOrder []string `mapstructure:"allocation_order"`
}

// Locations parses AllocationOrder.
func (c LedgerConfig) Locations() ([]entity.Location, error) {
	out := make([]entity.Location, 0, len(c.AllocationOrder))
	for _, raw := range c.AllocationOrder {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		loc, err := entity.ParseLocation(strings.ToUpper(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// WorkerConfig tunes the background worker.
type WorkerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	PurgeAfter      time.Duration `mapstructure:"purge_after"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "orderflow")
	v.SetDefault("app.env", "development")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.driver", DriverPostgres)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.migrations_dir", "db/migrations")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.prefix", "orderflow:lock:")
	v.SetDefault("lock.wait", 2*time.Second)
	v.SetDefault("lock.ttl", 30*time.Second)

	v.SetDefault("notification.backend", "log")
	v.SetDefault("notification.channel_prefix", "orderflow:events:")

	v.SetDefault("idempotency.enabled", false)
	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("ledger.allocation_order", []string{"NG", "PH"})

	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.batch_size", 100)
	v.SetDefault("worker.purge_after", 7*24*time.Hour)
	v.SetDefault("worker.cleanup_interval", time.Hour)
}

// Load reads configuration. The file named by ORDERFLOW_CONFIG is read when
// set; otherwise config.yaml is looked up in the working directory and
// ./config, and a missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Env values arrive as one comma separated string.
	if len(cfg.Ledger.AllocationOrder) == 1 {
		cfg.Ledger.AllocationOrder = strings.Split(cfg.Ledger.AllocationOrder[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the %s driver", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Lock.Backend {
	case "local":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("lock.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}

	switch c.Notification.Backend {
	case "log":
	case "outbox":
		if c.Storage.Driver != DriverPostgres {
			return fmt.Errorf("notification.backend=outbox requires the %s driver", DriverPostgres)
		}
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("notification.backend=redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown notification backend %q", c.Notification.Backend)
	}

	if _, err := c.Ledger.Locations(); err != nil {
		return fmt.Errorf("ledger.allocation_order: %w", err)
	}
	return nil
}
