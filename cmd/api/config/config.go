package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	DatabaseURL    string
	DBMaxOpenConns int
	StoreTimeout   time.Duration

	DailyLimit   int
	QuotaPolicy  string
	CacheBackend string
	RedisAddr    string

	GeminiAPIKey string
	GeminiModel  string
	ModelTimeout time.Duration

	AllowedOrigins []string
	BotJWTSecret   string

	LogLevel string
	LogFile  string
}

func NewConfig() *Config {
	return &Config{
		Port:           "3000",
		DBMaxOpenConns: 10,
		StoreTimeout:   5 * time.Second,
		DailyLimit:     5,
		QuotaPolicy:    "immediate",
		CacheBackend:   "db",
		RedisAddr:      "localhost:6379",
		GeminiModel:    "gemini-2.0-flash",
		ModelTimeout:   60 * time.Second,
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
	}
}

// FromEnv overlays environment variables on the defaults. godotenv.Load is
// expected to have run already.
func FromEnv() (*Config, error) {
	cfg := NewConfig()

	cfg.Port = envString("PORT", cfg.Port)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && os.Getenv("DB_HOST") != "" {
		cfg.DatabaseURL = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			os.Getenv("DB_HOST"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_NAME"),
			envString("DB_PORT", "5432"),
		)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or DB_HOST must be set")
	}

	var err error
	if cfg.DBMaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = envDuration("STORE_TIMEOUT", cfg.StoreTimeout); err != nil {
		return nil, err
	}
	if cfg.DailyLimit, err = envInt("DAILY_LIMIT", cfg.DailyLimit); err != nil {
		return nil, err
	}
	if cfg.DailyLimit < 1 {
		return nil, fmt.Errorf("DAILY_LIMIT must be positive, got %d", cfg.DailyLimit)
	}

	cfg.QuotaPolicy = strings.ToLower(envString("QUOTA_POLICY", cfg.QuotaPolicy))
	cfg.CacheBackend = strings.ToLower(envString("CACHE_BACKEND", cfg.CacheBackend))
	cfg.RedisAddr = envString("REDIS_ADDR", cfg.RedisAddr)

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set in the environment")
	}
	cfg.GeminiModel = envString("GEMINI_MODEL", cfg.GeminiModel)
	if cfg.ModelTimeout, err = envDuration("MODEL_TIMEOUT", cfg.ModelTimeout); err != nil {
		return nil, err
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	cfg.BotJWTSecret = os.Getenv("BOT_JWT_SECRET")

	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = os.Getenv("LOG_FILE")

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
