package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Application
	App AppConfig `mapstructure:"app"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Metrics
	Metrics MetricsConfig `mapstructure:"metrics"`

	// GeoIP
	GeoIP GeoIPConfig `mapstructure:"geoip"`

	// Click ingestion
	Ingest IngestConfig `mapstructure:"ingest"`

	// Expiry sweeper
	Sweeper SweeperConfig `mapstructure:"sweeper"`
}

type AppConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	Port            int      `mapstructure:"port"`
	AliasLength     int      `mapstructure:"alias_length"`
	ReservedAliases []string `mapstructure:"reserved_aliases"`
	DefaultExpiry   string   `mapstructure:"default_expiry"`
	MaxExpiry       string   `mapstructure:"max_expiry"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type GeoIPConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type IngestConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	BatchSize  int `mapstructure:"batch_size"`
}

type SweeperConfig struct {
	HourUTC int `mapstructure:"hour_utc"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.alias_length", 7)
	// Route-prefix collisions; stored lower-cased, checked case-insensitively.
	v.SetDefault("app.reserved_aliases", []string{
		"api", "auth", "user", "links", "analytics", "qrcode", "bulk",
		"login", "register", "logout", "admin", "health", "metrics",
	})
	v.SetDefault("app.default_expiry", "P1M")
	v.SetDefault("app.max_expiry", "P5Y")

	v.SetDefault("metrics.port", 9090)

	v.SetDefault("ingest.buffer_size", 1024)
	v.SetDefault("ingest.batch_size", 10)

	v.SetDefault("sweeper.hour_utc", 1)
}

func bindEnvVars(v *viper.Viper) {
	// Application
	v.BindEnv("app.base_url", "APP_BASE_URL")
	v.BindEnv("app.port", "APP_PORT")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Metrics
	v.BindEnv("metrics.enabled", "METRICS_ENABLED")
	v.BindEnv("metrics.port", "METRICS_PORT")

	// GeoIP
	v.BindEnv("geoip.database_path", "GEOIP_DB_PATH")
}
