package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OFFLINE_ORIGIN", "https://farert.example/")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "farert.db", cfg.Database.SQLitePath)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Offline.Enabled)
	assert.Equal(t, "@every 1h", cfg.Offline.SweepSchedule)
	assert.Equal(t, int64(8<<20), cfg.Offline.MaxEntryBytes)
	assert.Equal(t, 1000, cfg.Profiles.MaxLoadedStores)
	assert.Equal(t, 30*time.Minute, cfg.Profiles.StoreIdleTTL)
	assert.False(t, cfg.IsProduction())

	origin, err := cfg.Offline.OriginURL()
	require.NoError(t, err)
	assert.Equal(t, "https://farert.example", origin.String())
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "PGX")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/farert")
	t.Setenv("OFFLINE_ENABLED", "false")
	t.Setenv("OFFLINE_PRECACHE", "/,/detail")
	t.Setenv("PROFILE_TOKEN_EXPIRY", "24h")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, DriverPGX, cfg.Database.Driver)
	assert.Equal(t, []string{"/", "/detail"}, cfg.Offline.Precache)
	assert.Equal(t, 24*time.Hour, cfg.JWT.ProfileTokenExpiry)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: DriverMemory},
			JWT:      JWTConfig{Secret: "secret"},
			Offline:  OfflineConfig{Enabled: true, Origin: "http://localhost:5173"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "STORE_DRIVER"},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, "DATABASE_URL"},
		{"sqlite without path", func(c *Config) { c.Database.Driver = DriverSQLite }, "SQLITE_PATH"},
		{"offline without origin", func(c *Config) { c.Offline.Origin = "" }, "OFFLINE_ORIGIN"},
		{"relative origin", func(c *Config) { c.Offline.Origin = "/app" }, "OFFLINE_ORIGIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
