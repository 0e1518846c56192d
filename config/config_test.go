package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("DUPLICATE_PAIR_CAP", "")
	t.Setenv("CRON_ENABLED", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 50, cfg.DuplicatePairCap)
	assert.True(t, cfg.CronEnabled)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DUPLICATE_PAIR_CAP", "10")
	t.Setenv("CRON_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()

	assert.Equal(t, "9090", cfg.APIPort)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, 10, cfg.DuplicatePairCap)
	assert.False(t, cfg.CronEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("JWT_EXPIRATION_HOURS", "twelve")
	t.Setenv("CRON_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 12, cfg.JWTExpirationHours)
	assert.True(t, cfg.CronEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "development defaults are valid", mutate: func(c *Config) {}},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.DatabaseDriver = "mysql" },
			wantErr: "unsupported DATABASE_DRIVER",
		},
		{
			name:    "default secret in production",
			mutate:  func(c *Config) { c.APIEnvironment = "production" },
			wantErr: "JWT_SECRET",
		},
		{
			name: "custom secret in production",
			mutate: func(c *Config) {
				c.APIEnvironment = "production"
				c.JWTSecret = "s3cr3t"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{DatabaseDriver: "postgres", JWTSecret: defaultJWTSecret, JWTExpirationHours: 12, APIEnvironment: "development"}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
