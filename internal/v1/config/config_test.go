package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "GO_ENV", "LOG_LEVEL", "CORS_ORIGIN",
		"REDIS_URL", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_PREFIX",
		"REDIS_GAME_TTL", "REDIS_TOURNAMENT_TTL", "REDIS_LEADERBOARD_TTL",
		"RATE_WEIGHT_SUBMITWORD", "RATE_WEIGHT_CHAT",
		"LEADERBOARD_THROTTLE_MS", "TIME_UPDATE_INTERVAL_MS", "EVENT_LOOP_MONITOR_INTERVAL_MS",
		"RATE_LIMIT_WS_IP", "RATE_LIMIT_WS_USER", "AI_ORACLE_URL",
	}
	for _, k := range keys {
		// Setenv registers restoration of the original value; the unset
		// gives the test a truly absent variable.
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestValidateEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.DevelopmentMode) // GO_ENV empty -> not production
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, "lexiclash", cfg.RedisPrefix)
	assert.Equal(t, 2*time.Hour, cfg.GameTTL)
	assert.Equal(t, 6*time.Hour, cfg.TournamentTTL)
	assert.Equal(t, 24*time.Hour, cfg.LeaderboardTTL)
	assert.Equal(t, 3, cfg.RateWeightSubmitWord)
	assert.Equal(t, 2, cfg.RateWeightChat)
	assert.Equal(t, 250*time.Millisecond, cfg.LeaderboardThrottle)
	assert.Equal(t, time.Second, cfg.TimeUpdateInterval)
	assert.Equal(t, "100-M", cfg.RateLimitWsIP)
}

func TestValidateEnvInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "99999")

	_, err := ValidateEnv()
	assert.Error(t, err)
}

func TestValidateEnvCORSOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ORIGIN", "https://play.example.com, https://staging.example.com")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://play.example.com", "https://staging.example.com"}, cfg.CORSOrigins)
}

func TestValidateEnvWildcardCORSRejectedInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("GO_ENV", "production")
	t.Setenv("CORS_ORIGIN", "*")

	_, err := ValidateEnv()
	assert.Error(t, err)
}

func TestValidateEnvWildcardCORSAllowedInDevelopment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GO_ENV", "development")
	t.Setenv("CORS_ORIGIN", "*")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestValidateEnvRedisURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://:secret@cache.internal:6380")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "secret", cfg.RedisPassword)
}

func TestValidateEnvRedisURLDefaultPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://cache.internal")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6379", cfg.RedisAddr)
}

func TestValidateEnvRedisURLInvalidScheme(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "http://cache.internal")

	_, err := ValidateEnv()
	assert.Error(t, err)
}

func TestValidateEnvRedisHostPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASSWORD", "pw")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "pw", cfg.RedisPassword)
}

func TestValidateEnvDurationOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_GAME_TTL", "7200")
	t.Setenv("LEADERBOARD_THROTTLE_MS", "100")
	t.Setenv("TIME_UPDATE_INTERVAL_MS", "500")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.GameTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.LeaderboardThrottle)
	assert.Equal(t, 500*time.Millisecond, cfg.TimeUpdateInterval)
}

func TestValidateEnvNegativeIntRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_WEIGHT_SUBMITWORD", "-1")

	_, err := ValidateEnv()
	assert.Error(t, err)
}

func TestValidateEnvCollectsMultipleErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "abc")
	t.Setenv("REDIS_GAME_TTL", "xyz")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "REDIS_GAME_TTL")
}
