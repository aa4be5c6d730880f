// Package config loads process configuration from defaults, an optional
// config file and TERMREPO_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TERMREPO"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Log configures the zap logger.
type Log struct {
	Level  string
	Format string
}

// Store selects and configures the persistence backend.
type Store struct {
	Backend   string
	TxTimeout time.Duration
	Postgres  PostgresConfig
}

// PostgresConfig holds connection and pool settings.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// DSN renders a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Name, p.SSLMode)
}

// Lock selects the family lock backend.
type Lock struct {
	Backend string
	TTL     time.Duration
	Redis   RedisConfig
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Reference configures reference resolution.
type Reference struct {
	// ListerBaseURL switches child listing to the HTTP lister when set.
	ListerBaseURL string
	ListerTimeout time.Duration
	ListerRetries int
}

// Config is the full process configuration.
type Config struct {
	ServiceName   string
	DefaultLocale string
	Server        Server
	Log           Log
	Store         Store
	Lock          Lock
	Reference     Reference
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "termrepo")
	v.SetDefault("default_locale", "en")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.tx_timeout", 5*time.Second)
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "termrepo")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.name", "termrepo")
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.postgres.max_open_conns", 25)
	v.SetDefault("store.postgres.max_idle_conns", 5)
	v.SetDefault("store.postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("store.postgres.migrate", true)

	v.SetDefault("lock.backend", BackendMemory)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.redis.url", "")
	v.SetDefault("lock.redis.pool_size", 10)
	v.SetDefault("lock.redis.min_idle_conns", 2)
	v.SetDefault("lock.redis.dial_timeout", 5*time.Second)
	v.SetDefault("lock.redis.read_timeout", 3*time.Second)
	v.SetDefault("lock.redis.write_timeout", 3*time.Second)

	v.SetDefault("reference.lister_base_url", "")
	v.SetDefault("reference.lister_timeout", 10*time.Second)
	v.SetDefault("reference.lister_retries", 2)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. TERMREPO_STORE_POSTGRES_HOST overrides
// store.postgres.host, and so on.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		ServiceName:   v.GetString("service_name"),
		DefaultLocale: v.GetString("default_locale"),
		Server: Server{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Store: Store{
			Backend:   strings.ToLower(v.GetString("store.backend")),
			TxTimeout: v.GetDuration("store.tx_timeout"),
			Postgres: PostgresConfig{
				Host:            v.GetString("store.postgres.host"),
				Port:            v.GetInt("store.postgres.port"),
				User:            v.GetString("store.postgres.user"),
				Password:        v.GetString("store.postgres.password"),
				Name:            v.GetString("store.postgres.name"),
				SSLMode:         v.GetString("store.postgres.sslmode"),
				MaxOpenConns:    v.GetInt("store.postgres.max_open_conns"),
				MaxIdleConns:    v.GetInt("store.postgres.max_idle_conns"),
				ConnMaxLifetime: v.GetDuration("store.postgres.conn_max_lifetime"),
				Migrate:         v.GetBool("store.postgres.migrate"),
			},
		},
		Lock: Lock{
			Backend: strings.ToLower(v.GetString("lock.backend")),
			TTL:     v.GetDuration("lock.ttl"),
			Redis: RedisConfig{
				URL:          v.GetString("lock.redis.url"),
				PoolSize:     v.GetInt("lock.redis.pool_size"),
				MinIdleConns: v.GetInt("lock.redis.min_idle_conns"),
				DialTimeout:  v.GetDuration("lock.redis.dial_timeout"),
				ReadTimeout:  v.GetDuration("lock.redis.read_timeout"),
				WriteTimeout: v.GetDuration("lock.redis.write_timeout"),
			},
		},
		Reference: Reference{
			ListerBaseURL: v.GetString("reference.lister_base_url"),
			ListerTimeout: v.GetDuration("reference.lister_timeout"),
			ListerRetries: v.GetInt("reference.lister_retries"),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendMemory, BackendPostgres, c.Store.Backend)
	}
	switch c.Lock.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Lock.Redis.URL == "" {
			return fmt.Errorf("lock.redis.url is required when lock.backend is %q", BackendRedis)
		}
	default:
		return fmt.Errorf("lock.backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Lock.Backend)
	}
	return nil
}
