package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Map       MapConfig       `mapstructure:"map"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"` // postgres | memory
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

// MapConfig configures the map engine and how annotations are drawn.
// The access token is either given directly or fetched from TokenURL.
type MapConfig struct {
	AccessToken  string        `mapstructure:"access_token"`
	TokenURL     string        `mapstructure:"token_url"`
	TokenTimeout time.Duration `mapstructure:"token_timeout"`
	FitPadding   int           `mapstructure:"fit_padding"`
	FitMaxZoom   float64       `mapstructure:"fit_max_zoom"`
	PassHalfSide float64       `mapstructure:"pass_half_side"` // degrees
	FillColor    string        `mapstructure:"fill_color"`
	FillOpacity  float64       `mapstructure:"fill_opacity"`
	LineWidth    float64       `mapstructure:"line_width"`
}

// SweeperConfig drives the orphan micro-area sweep.
type SweeperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	return load(service, viper.New())
}

func load(service string, v *viper.Viper) (*Config, error) {
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: HUNTMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("HUNTMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("storage.backend", StoragePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "huntmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "huntmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("map.access_token", "")
	v.SetDefault("map.token_url", "")
	v.SetDefault("map.token_timeout", 10*time.Second)
	v.SetDefault("map.fit_padding", 50)
	v.SetDefault("map.fit_max_zoom", 15)
	v.SetDefault("map.pass_half_side", 0.0001)
	v.SetDefault("map.fill_color", "#e8590c")
	v.SetDefault("map.fill_opacity", 0.2)
	v.SetDefault("map.line_width", 2)
	v.SetDefault("sweeper.interval", 15*time.Minute)
	v.SetDefault("sweeper.grace_period", time.Hour)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "huntmap-sweeper")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Storage.Backend {
	case StoragePostgres:
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Sprintf("storage.backend must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage.Backend))
	}

	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if c.Map.FitPadding < 0 {
		errs = append(errs, "map.fit_padding must not be negative")
	}
	if c.Map.FitMaxZoom <= 0 || c.Map.FitMaxZoom > 24 {
		errs = append(errs, fmt.Sprintf("map.fit_max_zoom must be in (0, 24], got %g", c.Map.FitMaxZoom))
	}
	if c.Map.PassHalfSide <= 0 || c.Map.PassHalfSide > 0.1 {
		errs = append(errs, fmt.Sprintf("map.pass_half_side must be in (0, 0.1] degrees, got %g", c.Map.PassHalfSide))
	}
	if c.Map.FillOpacity < 0 || c.Map.FillOpacity > 1 {
		errs = append(errs, "map.fill_opacity must be within [0, 1]")
	}

	if c.Sweeper.Interval <= 0 {
		errs = append(errs, "sweeper.interval must be positive")
	}
	if c.Sweeper.GracePeriod < time.Minute {
		errs = append(errs, "sweeper.grace_period must be at least 1m")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
