package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Server
	Port           string
	GoEnv          string
	LogLevel       string
	DevelopmentMode bool
	CORSOrigins    []string

	// Persistence target. RedisURL wins over host/port when both are set.
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string

	// TTLs
	GameTTL        time.Duration
	TournamentTTL  time.Duration
	LeaderboardTTL time.Duration

	// Per-operation rate weights
	RateWeightSubmitWord int
	RateWeightChat       int

	// Coalescing / tick intervals
	LeaderboardThrottle      time.Duration
	TimeUpdateInterval       time.Duration
	EventLoopMonitorInterval time.Duration

	// Connection-level rate limits (ulule/limiter formatted, e.g. "100-M")
	RateLimitWsIP   string
	RateLimitWsUser string

	// External collaborators
	AIOracleURL string
}

// ValidateEnv validates all recognized environment variables and returns a Config.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevelopmentMode = cfg.GoEnv != "production"

	// CORS_ORIGIN is comma-separated; "*" is rejected in production.
	rawOrigins := getEnvOrDefault("CORS_ORIGIN", "http://localhost:3000")
	for _, o := range strings.Split(rawOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" && cfg.GoEnv == "production" {
			errs = append(errs, "CORS_ORIGIN '*' is not allowed in production")
			continue
		}
		cfg.CORSOrigins = append(cfg.CORSOrigins, o)
	}

	// Persistence target: REDIS_URL or {REDIS_HOST, REDIS_PORT, REDIS_PASSWORD}.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		addr, password, err := parseRedisURL(redisURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("REDIS_URL is invalid: %v", err))
		} else {
			cfg.RedisEnabled = true
			cfg.RedisAddr = addr
			cfg.RedisPassword = password
		}
	} else if host := os.Getenv("REDIS_HOST"); host != "" {
		port := getEnvOrDefault("REDIS_PORT", "6379")
		addr := host + ":" + port
		if !isValidHostPort(addr) {
			errs = append(errs, fmt.Sprintf("REDIS_HOST/REDIS_PORT must form 'host:port' (got '%s')", addr))
		} else {
			cfg.RedisEnabled = true
			cfg.RedisAddr = addr
			cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
		}
	}

	cfg.RedisPrefix = getEnvOrDefault("REDIS_PREFIX", "lexiclash")

	var err error
	if cfg.GameTTL, err = getEnvSeconds("REDIS_GAME_TTL", 2*time.Hour); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.TournamentTTL, err = getEnvSeconds("REDIS_TOURNAMENT_TTL", 6*time.Hour); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.LeaderboardTTL, err = getEnvSeconds("REDIS_LEADERBOARD_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err.Error())
	}

	if cfg.RateWeightSubmitWord, err = getEnvInt("RATE_WEIGHT_SUBMITWORD", 3); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.RateWeightChat, err = getEnvInt("RATE_WEIGHT_CHAT", 2); err != nil {
		errs = append(errs, err.Error())
	}

	if cfg.LeaderboardThrottle, err = getEnvMillis("LEADERBOARD_THROTTLE_MS", 250*time.Millisecond); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.TimeUpdateInterval, err = getEnvMillis("TIME_UPDATE_INTERVAL_MS", time.Second); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.EventLoopMonitorInterval, err = getEnvMillis("EVENT_LOOP_MONITOR_INTERVAL_MS", 5*time.Second); err != nil {
		errs = append(errs, err.Error())
	}

	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "20-M")

	cfg.AIOracleURL = os.Getenv("AI_ORACLE_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

// parseRedisURL extracts addr and password from a redis:// URL.
func parseRedisURL(raw string) (addr, password string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return "", "", fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":6379"
	}
	if u.User != nil {
		password, _ = u.User.Password()
	}
	return host, password, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"redis_prefix", cfg.RedisPrefix,
		"game_ttl", cfg.GameTTL,
		"leaderboard_throttle", cfg.LeaderboardThrottle,
		"time_update_interval", cfg.TimeUpdateInterval,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer (got '%s')", key, raw)
	}
	return v, nil
}

func getEnvSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	v, err := getEnvInt(key, int(defaultValue/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

func getEnvMillis(key string, defaultValue time.Duration) (time.Duration, error) {
	v, err := getEnvInt(key, int(defaultValue/time.Millisecond))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Millisecond, nil
}
