package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)
	req.Equal("8080", cfg.Server.Port)
	req.Equal(10*time.Second, cfg.RateLimit.Window)
	req.Equal(5, cfg.RateLimit.MaxMessages)
	req.Equal(2*time.Second, cfg.Demo.GuardedWork)
	req.Equal(3*time.Second, cfg.Demo.CancellableDelay)
	req.Equal([]string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	req.Equal("localhost:6379", cfg.GetRedisAddr())
	req.Contains(cfg.GetDSN(), "dbname=livechat_db")
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RATE_LIMIT_MAX_MESSAGES", "3")
	t.Setenv("DEMO_CANCELLABLE_DELAY", "500ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("9090", cfg.Server.Port)
	req.Equal(3, cfg.RateLimit.MaxMessages)
	req.Equal(500*time.Millisecond, cfg.Demo.CancellableDelay)
	req.Equal([]string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("SESSION_SECRET", "a-real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
}
