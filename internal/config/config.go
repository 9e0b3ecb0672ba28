package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema           string        `mapstructure:"DB_SCHEMA"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	CacheTTL           time.Duration `mapstructure:"CACHE_TTL"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	MaxBatchSize       int           `mapstructure:"MAX_BATCH_SIZE"`
	ExposeErrorDetails *bool         `mapstructure:"-"`
	OTLPEndpoint       string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRate    float64       `mapstructure:"OTEL_TRACE_SAMPLE_RATE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"REDIS_URL", "CACHE_TTL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "BODY_LIMIT", "MAX_BATCH_SIZE",
	"EXPOSE_ERROR_DETAILS", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACE_SAMPLE_RATE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("MAX_BATCH_SIZE", 1000)
	v.SetDefault("OTEL_TRACE_SAMPLE_RATE", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	if v.IsSet("EXPOSE_ERROR_DETAILS") && v.GetString("EXPOSE_ERROR_DETAILS") != "" {
		expose := v.GetBool("EXPOSE_ERROR_DETAILS")
		cfg.ExposeErrorDetails = &expose
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthConfigured reports whether bearer tokens can be verified, either with
// a shared signing key or against a JWKS endpoint.
func (c *Config) AuthConfigured() bool {
	return c.AuthSigningKey != "" || c.AuthJWKSURL != ""
}

// ShowErrorDetails reports whether store error text is returned to clients.
// Unless set explicitly it follows the environment.
func (c *Config) ShowErrorDetails() bool {
	if c.ExposeErrorDetails != nil {
		return *c.ExposeErrorDetails
	}
	return c.IsDev()
}

// Validate checks that the configuration is safe to run. Outside
// development a way to verify tokens must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && !c.AuthConfigured() {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q; "+
				"refusing to start without authentication configuration", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive, got %d", c.MaxBatchSize)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("OTEL_TRACE_SAMPLE_RATE must be between 0 and 1, got %v", c.TraceSampleRate)
	}
	return nil
}
