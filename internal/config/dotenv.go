package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port                     string
	Env                      string
	DatabaseURL              string
	AutoMigrate              bool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
	SessionSecret            string
	SessionTTLHours          int
	RedisURL                 string
	CORSOrigins              []string
	EmbedCheckTimeoutSeconds int
	EmbedCheckConcurrency    int
	EmbedScanSchedule        string
	RaceCleanupSchedule      string
	RaceWaitingTTLHours      int
	RaceActiveTTLHours       int
	RaceMaxParticipants      int
	RateLimitPerMinute       int
	StatsTimezone            string
}

func Default() Config {
	return Config{
		Port:                     "8080",
		Env:                      "dev",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		SessionSecret:            "dles-dev-session-secret",
		SessionTTLHours:          720,
		EmbedCheckTimeoutSeconds: 5,
		EmbedCheckConcurrency:    4,
		EmbedScanSchedule:        "@daily",
		RaceCleanupSchedule:      "@hourly",
		RaceWaitingTTLHours:      24,
		RaceActiveTTLHours:       24,
		RaceMaxParticipants:      8,
		RateLimitPerMinute:       20,
		StatsTimezone:            "UTC",
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	if raw := os.Getenv("ENV"); raw != "" {
		cfg.Env = raw
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if raw := os.Getenv("AUTO_MIGRATE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.AutoMigrate = value
		}
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	if raw := os.Getenv("SESSION_SECRET"); raw != "" {
		cfg.SessionSecret = raw
	}
	if raw := os.Getenv("SESSION_TTL_HOURS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SessionTTLHours = value
		}
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		cfg.CORSOrigins = splitList(raw)
	}
	if raw := os.Getenv("EMBED_CHECK_TIMEOUT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.EmbedCheckTimeoutSeconds = value
		}
	}
	if raw := os.Getenv("EMBED_CHECK_CONCURRENCY"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.EmbedCheckConcurrency = value
		}
	}
	// An explicitly empty schedule disables the job.
	if raw, ok := os.LookupEnv("EMBED_SCAN_SCHEDULE"); ok {
		cfg.EmbedScanSchedule = strings.TrimSpace(raw)
	}
	if raw, ok := os.LookupEnv("RACE_CLEANUP_SCHEDULE"); ok {
		cfg.RaceCleanupSchedule = strings.TrimSpace(raw)
	}
	if raw := os.Getenv("RACE_WAITING_TTL_HOURS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RaceWaitingTTLHours = value
		}
	}
	if raw := os.Getenv("RACE_ACTIVE_TTL_HOURS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RaceActiveTTLHours = value
		}
	}
	if raw := os.Getenv("RACE_MAX_PARTICIPANTS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 2 {
			cfg.RaceMaxParticipants = value
		}
	}
	if raw := os.Getenv("RATE_LIMIT_PER_MINUTE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.RateLimitPerMinute = value
		}
	}
	if raw := os.Getenv("STATS_TIMEZONE"); raw != "" {
		cfg.StatsTimezone = raw
	}
	return cfg
}

// IsProd reports whether the service runs with production defaults.
func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
