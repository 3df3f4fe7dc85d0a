package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://file::memory:")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.DailyLimit)
	assert.Equal(t, "immediate", cfg.QuotaPolicy)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, 60*time.Second, cfg.ModelTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_NAME", "charts")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("DAILY_LIMIT", "3")
	t.Setenv("QUOTA_POLICY", "Deferred")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Contains(t, cfg.DatabaseURL, "host=db")
	assert.Contains(t, cfg.DatabaseURL, "port=5432")
	assert.Equal(t, 3, cfg.DailyLimit)
	assert.Equal(t, "deferred", cfg.QuotaPolicy)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestFromEnvErrors(t *testing.T) {
	t.Run("missing database", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("DB_HOST", "")
		t.Setenv("GEMINI_API_KEY", "key")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "sqlite://file::memory:")
		t.Setenv("GEMINI_API_KEY", "")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "GEMINI_API_KEY")
	})

	t.Run("non positive limit", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "sqlite://file::memory:")
		t.Setenv("GEMINI_API_KEY", "key")
		t.Setenv("DAILY_LIMIT", "0")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}
