package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "VITALSUP_CONFIG"
	supabaseURLEnv    = "SUPABASE_URL"
	supabaseAnonEnv   = "SUPABASE_ANON_KEY"
	unpaywallEmailEnv = "UNPAYWALL_EMAIL"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	badgerPathEnv     = "BADGER_PATH"
	logLevelEnv       = "LOG_LEVEL"
)

// Config holds settings shared by the web app, the resolver function and the CLI.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Functions FunctionsConfig `yaml:"functions"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Unpaywall UnpaywallConfig `yaml:"unpaywall"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig is the web application listener.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	SessionMaxAge  time.Duration `yaml:"sessionMaxAge"`
	SnapshotWorker bool          `yaml:"snapshotWorker"`
	// SecureCookies marks the review session cookie Secure; enable behind TLS.
	SecureCookies bool `yaml:"secureCookies"`
}

// FunctionsConfig is the resolver function listener.
type FunctionsConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// SupabaseConfig locates the function gateway the proxy forwards to.
type SupabaseConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anonKey"`
}

// UnpaywallConfig describes how to contact the Unpaywall API.
type UnpaywallConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	Email             string        `yaml:"email"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	// CacheSize of zero disables result caching.
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTtl"`
}

// StoreConfig selects and locates the article store.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	RedisAddr   string `yaml:"redisAddr"`
	BadgerPath  string `yaml:"badgerPath"`
	PostgresDSN string `yaml:"postgresDsn"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Load reads the YAML file at path (or $VITALSUP_CONFIG) over the defaults
// and applies environment overrides. A missing path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(supabaseURLEnv); v != "" {
		c.Supabase.URL = v
	}
	if v := os.Getenv(supabaseAnonEnv); v != "" {
		c.Supabase.AnonKey = v
	}
	if v := os.Getenv(unpaywallEmailEnv); v != "" {
		c.Unpaywall.Email = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Store.PostgresDSN = v
		c.Store.Driver = DriverPostgres
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv(badgerPathEnv); v != "" {
		c.Store.BadgerPath = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverRedis:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("config: store driver %q needs postgresDsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// Default is the local development setup.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":3000",
			SessionMaxAge:  2 * time.Hour,
			SnapshotWorker: true,
		},
		Functions: FunctionsConfig{
			Addr:           ":54321",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Unpaywall: UnpaywallConfig{
			BaseURL:           "https://api.unpaywall.org",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
			CacheSize:         512,
			CacheTTL:          time.Hour,
		},
		Store: StoreConfig{
			Driver:     DriverRedis,
			RedisAddr:  "localhost:6379",
			BadgerPath: "./badger-data",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: true,
		},
	}
}
