package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	Connection ConnectionConfig
	Providers  ProvidersConfig
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	FrontendURL     string
	CORSOrigins     []string
	Environment     string
	RateLimitRPS    float64
	RateLimitBurst  int
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// For SQLite
	Path string
}

// AuthConfig contains API authentication configuration
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string
	Format     string // json or console
	OutputPath string
}

// ConnectionConfig tunes token refresh, probing and the refresh worker
type ConnectionConfig struct {
	// TokenSkew is how long before expiry a token is treated as expired
	TokenSkew       time.Duration
	RefreshTimeout  time.Duration
	ExchangeTimeout time.Duration
	ProbeTimeout    time.Duration
	StatusTimeout   time.Duration
	// ProbeConcurrency bounds parallel capability calls per status check
	ProbeConcurrency int
	// Fallback selects the fetch fallback policy: none or sample
	Fallback string

	TokenEncryptionKey string

	KeeperEnabled  bool
	KeeperSchedule string
	KeeperWindow   time.Duration
	KeeperBatch    int
}

// ProvidersConfig locates the provider catalog
type ProvidersConfig struct {
	CatalogPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "farmlink"),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Path:            getEnv("DB_PATH", "./farmlink.db"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Connection: ConnectionConfig{
			TokenSkew:          getEnvAsDuration("TOKEN_SKEW", 5*time.Minute),
			RefreshTimeout:     getEnvAsDuration("TOKEN_REFRESH_TIMEOUT", 15*time.Second),
			ExchangeTimeout:    getEnvAsDuration("TOKEN_EXCHANGE_TIMEOUT", 30*time.Second),
			ProbeTimeout:       getEnvAsDuration("PROBE_TIMEOUT", 10*time.Second),
			StatusTimeout:      getEnvAsDuration("STATUS_TIMEOUT", 30*time.Second),
			ProbeConcurrency:   getEnvAsInt("PROBE_CONCURRENCY", 8),
			Fallback:           strings.ToLower(getEnv("FETCH_FALLBACK", "none")),
			TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
			KeeperEnabled:      getEnvAsBool("TOKEN_KEEPER_ENABLED", true),
			KeeperSchedule:     getEnv("TOKEN_KEEPER_SCHEDULE", "@every 10m"),
			KeeperWindow:       getEnvAsDuration("TOKEN_KEEPER_WINDOW", 15*time.Minute),
			KeeperBatch:        getEnvAsInt("TOKEN_KEEPER_BATCH", 100),
		},
		Providers: ProvidersConfig{
			CatalogPath: getEnv("PROVIDERS_CATALOG", "./providers.yaml"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Connection.Fallback != "none" && c.Connection.Fallback != "sample" {
		return fmt.Errorf("unsupported fetch fallback: %s", c.Connection.Fallback)
	}

	if c.Connection.ProbeConcurrency < 1 {
		return fmt.Errorf("PROBE_CONCURRENCY must be at least 1")
	}

	for name, d := range map[string]time.Duration{
		"TOKEN_REFRESH_TIMEOUT":  c.Connection.RefreshTimeout,
		"TOKEN_EXCHANGE_TIMEOUT": c.Connection.ExchangeTimeout,
		"PROBE_TIMEOUT":          c.Connection.ProbeTimeout,
		"STATUS_TIMEOUT":         c.Connection.StatusTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.Connection.TokenSkew < 0 {
		return fmt.Errorf("TOKEN_SKEW must not be negative")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// AllowedOrigins lists the browser origins accepted by CORS: the frontend,
// any extra configured origins, and the usual dev servers when the frontend
// runs locally.
func (s ServerConfig) AllowedOrigins() []string {
	origins := append([]string{s.FrontendURL}, s.CORSOrigins...)
	if strings.Contains(s.FrontendURL, "localhost") || strings.Contains(s.FrontendURL, "127.0.0.1") {
		origins = append(origins,
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		)
	}
	return origins
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
