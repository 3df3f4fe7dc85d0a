package main

import (
	"context"
	"time"

	"chart_analyzer_go_backend/cmd/api/config"
	"chart_analyzer_go_backend/internal/api"
	"chart_analyzer_go_backend/internal/database"
	"chart_analyzer_go_backend/internal/logging"
	"chart_analyzer_go_backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logCloser := logging.Setup(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()
	if envErr != nil {
		log.Info().Msg("No .env file found")
	}

	ctx := context.Background()

	db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	policy, err := services.ParseQuotaPolicy(cfg.QuotaPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid QUOTA_POLICY")
	}
	quotaLedger := services.NewQuotaLedger(db, policy, cfg.StoreTimeout)

	var identifierCache services.IdentifierCache
	switch cfg.CacheBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to reach Redis")
		}
		cancel()
		identifierCache = services.NewRedisIdentifierCache(rdb, cfg.StoreTimeout)
	case "db":
		identifierCache = services.NewIdentifierCacheDB(db, cfg.StoreTimeout)
	default:
		log.Fatal().Str("backend", cfg.CacheBackend).Msg("Unknown CACHE_BACKEND")
	}

	// The model client is created once and handed to the analyzer.
	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GenAI client")
	}
	defer genaiClient.Close()
	chartAnalyzer := services.NewGeminiChartAnalyzer(genaiClient, cfg.GeminiModel, cfg.ModelTimeout)

	r := gin.New()
	r.MaxMultipartMemory = 16 << 20
	r.Use(gin.Recovery(), api.RequestID(), logging.RequestLogger())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
		}
	}
	r.Use(cors.New(corsConfig))

	api.SetupRoutes(r, quotaLedger, identifierCache, chartAnalyzer, cfg.DailyLimit, cfg.BotJWTSecret)

	log.Info().
		Str("port", cfg.Port).
		Str("policy", string(policy)).
		Int("daily_limit", cfg.DailyLimit).
		Msg("Server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
