package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPGX      = "pgx"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Durable store configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Offline asset cache configuration
	Offline OfflineConfig

	// Share link configuration
	Share ShareConfig

	// Route engine configuration
	Engine EngineConfig

	// Profile creation rate limiting
	RateLimit RateLimitConfig

	// In-memory profile store limits
	Profiles ProfilesConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`          // debug, info, warn, error
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// DatabaseConfig holds durable store configuration
type DatabaseConfig struct {
	Driver             string        `env:"STORE_DRIVER" envDefault:"sqlite"` // sqlite, pgx, postgres, memory
	URL                string        `env:"DATABASE_URL"`
	SQLitePath         string        `env:"SQLITE_PATH" envDefault:"farert.db"`
	MaxConnections     int           `env:"DATABASE_MAX_CONNECTIONS" envDefault:"10"`
	MaxIdleConnections int           `env:"DATABASE_MAX_IDLE_CONNECTIONS" envDefault:"5"`
	ConnMaxLifetime    time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string        `env:"JWT_SECRET"`
	ProfileTokenExpiry time.Duration `env:"PROFILE_TOKEN_EXPIRY" envDefault:"8760h"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	AllowedMethods []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
}

// OfflineConfig holds offline asset cache configuration
type OfflineConfig struct {
	Enabled       bool          `env:"OFFLINE_ENABLED" envDefault:"true"`
	Origin        string        `env:"OFFLINE_ORIGIN"`
	ManifestPath  string        `env:"OFFLINE_MANIFEST"`
	Precache      []string      `env:"OFFLINE_PRECACHE" envSeparator:","`
	SweepSchedule string        `env:"OFFLINE_SWEEP_SCHEDULE" envDefault:"@every 1h"`
	Concurrency   int           `env:"OFFLINE_CONCURRENCY" envDefault:"8"`
	FetchTimeout  time.Duration `env:"OFFLINE_FETCH_TIMEOUT" envDefault:"30s"`
	MaxEntryBytes int64         `env:"OFFLINE_MAX_ENTRY_BYTES" envDefault:"8388608"`
}

// ShareConfig holds share link configuration
type ShareConfig struct {
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
}

// EngineConfig holds route engine configuration
type EngineConfig struct {
	CatalogPath string `env:"ENGINE_CATALOG"`
}

// RateLimitConfig holds profile creation rate limiting configuration
type RateLimitConfig struct {
	MaxProfilesPerIP int           `env:"PROFILE_RATE_LIMIT" envDefault:"20"`
	Window           time.Duration `env:"PROFILE_RATE_WINDOW" envDefault:"1h"`
	CleanupSchedule  string        `env:"PROFILE_RATE_CLEANUP_SCHEDULE" envDefault:"@every 15m"`
}

// ProfilesConfig bounds how many profile stores stay loaded in memory
type ProfilesConfig struct {
	MaxLoadedStores int           `env:"PROFILE_STORE_CACHE_SIZE" envDefault:"1000"`
	StoreIdleTTL    time.Duration `env:"PROFILE_STORE_IDLE_TTL" envDefault:"30m"`
	EvictSchedule   string        `env:"PROFILE_STORE_EVICT_SCHEDULE" envDefault:"@every 5m"`
}

// Load loads configuration from a .env file (if present) and the environment
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return Parse()
}

// Parse reads configuration from the environment only
func Parse() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	config.Database.Driver = strings.ToLower(strings.TrimSpace(config.Database.Driver))

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPGX, DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %s", c.Database.Driver)
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for store driver sqlite")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be sqlite, pgx, postgres or memory)", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Offline.Enabled {
		if c.Offline.Origin == "" {
			return fmt.Errorf("OFFLINE_ORIGIN is required when OFFLINE_ENABLED is true")
		}
		if _, err := c.Offline.OriginURL(); err != nil {
			return err
		}
	}

	return nil
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// OriginURL parses the application origin the offline gateway fronts
func (o OfflineConfig) OriginURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(o.Origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid OFFLINE_ORIGIN: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OFFLINE_ORIGIN: %q is not an absolute URL", o.Origin)
	}
	return u, nil
}
