package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APP_URL", "https://cobudget.example/")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("MAGIC_LINK_WINDOW", "10m")

	cfg := Load()
	assert.Equal(t, "https://cobudget.example", cfg.AppURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 10*time.Minute, cfg.MagicLinkWindow)
	assert.True(t, cfg.CookieSecure)
	require.NoError(t, cfg.Validate(false))
}

func TestValidate(t *testing.T) {
	cfg := &Config{MagicLinkLimit: 5, CookieSecure: true}
	assert.EqualError(t, cfg.Validate(false), "JWT_SECRET is required")

	cfg.JWTSecret = "x"
	assert.EqualError(t, cfg.Validate(true), "MONGO_URI is required")

	cfg.MongoURI = "mongodb://localhost"
	assert.NoError(t, cfg.Validate(true))

	cfg.Environment = "production"
	cfg.CookieSecure = false
	assert.Error(t, cfg.Validate(true))
}

func TestMaskURI(t *testing.T) {
	assert.Equal(t, "mongodb://app:*****@db:27017/x", maskURI("mongodb://app:hunter2@db:27017/x"))
	assert.Equal(t, "mongodb://db:27017", maskURI("mongodb://db:27017"))
	assert.Equal(t, "mongodb+srv://app@cluster", maskURI("mongodb+srv://app@cluster"))
}
