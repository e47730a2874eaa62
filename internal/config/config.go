package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Vault     VaultDBConfig
	Cache     CacheConfig
	Gateway   GatewayConfig
	Scheduler SchedulerConfig
	Hydration HydrationConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"37420"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	// WriteTimeout defaults to 0: the event stream holds its response open
	// indefinitely.
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"0"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"vinted-hq"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"console"`
}

// VaultDBConfig holds vault database settings. The items table can live in
// SQLite (default) or MySQL; queue and ontology tables are always SQLite.
type VaultDBConfig struct {
	Type string `envconfig:"VAULT_DB_TYPE" default:"sqlite"` // sqlite or mysql
	Path string `envconfig:"VAULT_DB_PATH" default:"./data/vault.db"`
	// MySQL settings (schema assumed provisioned)
	Host     string `envconfig:"VAULT_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"VAULT_DB_PORT" default:"3306"`
	Name     string `envconfig:"VAULT_DB_NAME" default:"vinted_hq"`
	User     string `envconfig:"VAULT_DB_USER" default:"root"`
	Password string `envconfig:"VAULT_DB_PASS" default:""`
}

// CacheConfig holds detail-hydration cache settings.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// GatewayConfig holds marketplace gateway settings.
type GatewayConfig struct {
	BaseURL         string        `envconfig:"GATEWAY_BASE_URL" default:"https://www.vinted.co.uk"`
	UserID          int64         `envconfig:"GATEWAY_USER_ID" default:"0"`
	Cookie          string        `envconfig:"GATEWAY_COOKIE" default:""`
	CSRFToken       string        `envconfig:"GATEWAY_CSRF_TOKEN" default:""`
	AnonID          string        `envconfig:"GATEWAY_ANON_ID" default:""`
	UserAgent       string        `envconfig:"GATEWAY_USER_AGENT" default:"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"`
	Timeout         time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	PostDeleteDelay time.Duration `envconfig:"GATEWAY_POST_DELETE_DELAY" default:"10s"`
}

// SchedulerConfig holds relist queue scheduler settings.
type SchedulerConfig struct {
	MinDelay     time.Duration `envconfig:"SCHED_MIN_DELAY" default:"20s"`
	MaxDelay     time.Duration `envconfig:"SCHED_MAX_DELAY" default:"180s"`
	Tick         time.Duration `envconfig:"SCHED_TICK" default:"1s"`
	ThumbnailDir string        `envconfig:"SCHED_THUMBNAIL_DIR" default:"./data/thumbnails"`
}

// HydrationConfig governs the full-detail cache freshness window.
type HydrationConfig struct {
	TTL time.Duration `envconfig:"HYDRATION_TTL" default:"168h"` // 7 days
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MySQLDSN returns the MySQL data source name.
func (v *VaultDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		v.User, v.Password, v.Host, v.Port, v.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Scheduler.MinDelay > cfg.Scheduler.MaxDelay {
		return nil, fmt.Errorf("SCHED_MIN_DELAY %v exceeds SCHED_MAX_DELAY %v",
			cfg.Scheduler.MinDelay, cfg.Scheduler.MaxDelay)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
