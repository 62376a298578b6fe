package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REDIS_HOST", "REDIS_PORT", "REDIS_USE_TLS", "GEMINI_MODEL", "GEMINI_TIMEOUT",
		"SUBMIT_DELAY_MS", "PRODUCT_NAME", "WEBP_QUALITY", "MAX_UPLOAD_MB", "PORT",
		"GEMINI_API_KEY", "API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash-image", cfg.GeminiModel)
	assert.Equal(t, 120*time.Second, cfg.GeminiTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.SubmitDelay)
	assert.Equal(t, "nanogen", cfg.ProductName)
	assert.Equal(t, float32(90), cfg.WebPQuality)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Greater(t, cfg.MaxRequestBytes(), cfg.MaxUploadBytes()*4/3)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.RedisEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_USE_TLS", "true")
	t.Setenv("GEMINI_TIMEOUT", "45s")
	t.Setenv("SUBMIT_DELAY_MS", "0")
	t.Setenv("PRODUCT_NAME", "studio")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.RedisUseTLS)
	assert.Equal(t, "cache.internal:6380", cfg.GetRedisAddr())
	assert.Equal(t, 45*time.Second, cfg.GeminiTimeout)
	assert.Zero(t, cfg.SubmitDelay)
	assert.Equal(t, "studio", cfg.ProductName)
}

func TestFromEnv_TimeoutAsSeconds(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_TIMEOUT", "30")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.GeminiTimeout)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"SUBMIT_DELAY_MS": "soon",
		"WEBP_QUALITY":    "150",
		"MAX_UPLOAD_MB":   "0",
		"GEMINI_TIMEOUT":  "-5s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestAPIKey_ReadAtCallTime(t *testing.T) {
	clearEnv(t)
	assert.Empty(t, APIKey())

	t.Setenv("API_KEY", "fallback-key")
	assert.Equal(t, "fallback-key", APIKey())

	t.Setenv("GEMINI_API_KEY", " primary-key ")
	assert.Equal(t, "primary-key", APIKey())
}
