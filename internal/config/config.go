package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const devSecret = "dev-secret-change-in-production"

// Config holds all configuration for the API service, the front-end and
// the CLI.
type Config struct {
	// Server
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"go_env"`

	// Database. An empty DatabaseURL selects the embedded SQLite store.
	DatabaseURL string `mapstructure:"database_url"`
	DBMaxConns  int32  `mapstructure:"db_max_conns"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisURL    string `mapstructure:"redis_url"`
	NATSURL     string `mapstructure:"nats_url"`

	// Security
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	ManifestSecret string        `mapstructure:"manifest_secret"`
	SecureCookies  bool          `mapstructure:"secure_cookies"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RateLimit      int           `mapstructure:"rate_limit"` // requests per minute per client

	// Training
	OutputDir        string  `mapstructure:"output_dir"`
	TimestampOutputs bool    `mapstructure:"timestamp_outputs"`
	MaxUploadBytes   int64   `mapstructure:"max_upload_bytes"`
	Seed             int64   `mapstructure:"seed"`
	TestRatio        float64 `mapstructure:"test_ratio"`
	Folds            int     `mapstructure:"folds"`
	TuneIterations   int     `mapstructure:"tune_iterations"`
	ModelCacheSize   int     `mapstructure:"model_cache_size"`

	// Observability
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// Front-end
	FrontendPort string `mapstructure:"frontend_port"`
	APIURL       string `mapstructure:"api_url"`
}

// New returns a viper instance with defaults, environment variables and the
// optional autotab.yaml config file applied. Environment variables use the
// upper-case key (PORT, DATABASE_URL, OUTPUT_DIR, ...).
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("go_env", "development")
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_conns", 10)
	v.SetDefault("sqlite_path", "autotab.db")
	v.SetDefault("redis_url", "")
	v.SetDefault("nats_url", "")

	v.SetDefault("jwt_secret", devSecret)
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("manifest_secret", "")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("cors_origins", []string{"http://localhost:8501"})
	v.SetDefault("rate_limit", 120)

	v.SetDefault("output_dir", "outputs")
	v.SetDefault("timestamp_outputs", true)
	v.SetDefault("max_upload_bytes", 32<<20)
	v.SetDefault("seed", 42)
	v.SetDefault("test_ratio", 0.25)
	v.SetDefault("folds", 10)
	v.SetDefault("tune_iterations", 10)
	v.SetDefault("model_cache_size", 16)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("otlp_endpoint", "")

	v.SetDefault("frontend_port", "8501")
	v.SetDefault("api_url", "http://localhost:8080")

	if path := os.Getenv("AUTOTAB_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("autotab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/autotab")
	}
	return v
}

// Load reads configuration from the environment and the optional config file.
func Load() (*Config, error) {
	return FromViper(New())
}

// FromViper decodes and validates the configuration held by v. The CLI binds
// its flags onto v before calling this.
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(c.CORSOrigins) == 1 && strings.Contains(c.CORSOrigins[0], ",") {
		c.CORSOrigins = strings.Split(c.CORSOrigins[0], ",")
	}
	if c.ManifestSecret == "" {
		c.ManifestSecret = c.JWTSecret
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == devSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.TestRatio <= 0 || c.TestRatio >= 1 {
		return fmt.Errorf("test_ratio must be in (0, 1), got %g", c.TestRatio)
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must not be empty")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token_ttl must be positive")
	}
	return nil
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesPostgres reports whether a Postgres URL is configured.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}
