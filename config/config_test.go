package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("JWT_SECRET", "")

	cfg := LoadConfig()

	assert.Equal(t, 3000, cfg.ServerPort)
	assert.Equal(t, "http://localhost:5173", cfg.ClientURL)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "task-events", cfg.MQ.Channel)
	assert.False(t, cfg.Production())
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("JWT_SECRET", "   ")

	cfg := LoadConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	require.NoError(t, LoadConfig().Validate())
}

func TestDSNFromParts(t *testing.T) {
	t.Parallel()

	d := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "ann",
		Password: "p@ss",
		DBName:   "tasks",
		UseSSL:   true,
	}
	assert.Equal(t, "postgres://ann:p%40ss@db:5433/tasks?sslmode=require", d.DSN())

	d.URL = " postgres://override "
	assert.Equal(t, "postgres://override", d.DSN())
}

func TestInvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("TOKEN_TTL", "-5m")
	t.Setenv("ENV", "production")

	cfg := LoadConfig()
	assert.Equal(t, 3000, cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.Production())
}
