package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"chart_analyzer_go_backend/internal/auth"
	apierrors "chart_analyzer_go_backend/internal/errors"
	"chart_analyzer_go_backend/internal/models"
	"chart_analyzer_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxImageBytes = 10 << 20

func SetupRoutes(r *gin.Engine, ledger services.QuotaLedger, cache services.IdentifierCache, analyzer services.ChartAnalyzer, dailyLimit int, botSecret string) {
	r.GET("/health", healthHandler)
	r.GET("/", rootHandler)
	r.POST("/analyze", analyzeChartHandler(ledger, analyzer, dailyLimit))

	bot := r.Group("/", auth.BotAuthMiddleware(botSecret))
	{
		bot.POST("/verify", verifyUserHandler(ledger))
		bot.GET("/users/:user_id/quota", getQuotaHandler(ledger, dailyLimit))
		bot.GET("/cache/:external_id", getCacheHandler(cache))
		bot.POST("/cache", addToCacheHandler(cache))
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      "ai-chart-analyzer-api",
		"status":    "ok",
		"endpoints": []string{"/health", "/analyze"},
	})
}

type analyzeResponse struct {
	models.Verdict
	Remaining int `json:"remaining"`
}

func analyzeChartHandler(ledger services.QuotaLedger, analyzer services.ChartAnalyzer, dailyLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.PostForm("user_id"), 10, 64)
		if err != nil {
			apierrors.HandleError(c, apierrors.New400Error("A numeric user_id is required"))
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			apierrors.HandleError(c, apierrors.New400Error("An image file is required"))
			return
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			apierrors.HandleError(c, apierrors.New400Error("An image file is required"))
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			apierrors.HandleError(c, apierrors.New400Error("Failed to read uploaded file"))
			return
		}
		image, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		file.Close()
		if err != nil {
			apierrors.HandleError(c, apierrors.New400Error("Failed to read uploaded file"))
			return
		}
		if len(image) == 0 {
			apierrors.HandleError(c, apierrors.New400Error("Empty file"))
			return
		}
		if len(image) > maxImageBytes {
			apierrors.HandleError(c, apierrors.New400Error("Image is too large"))
			return
		}

		ctx := c.Request.Context()
		decision, err := ledger.CheckAndConsume(ctx, userID, dailyLimit)
		if err != nil {
			apierrors.HandleError(c, apierrors.New503Error(err))
			return
		}
		if !decision.Allowed {
			apierrors.HandleError(c, quotaDenied(decision.Reason))
			return
		}

		verdict, err := analyzer.Analyze(ctx, mimeType, image)
		if err != nil {
			apierrors.HandleError(c, apierrors.New502Error(analysisFailureMessage(err), err))
			return
		}

		remaining := decision.Remaining
		if ledger.Policy() == services.PolicyDeferred {
			if err := ledger.CommitUsage(ctx, userID); err != nil {
				apierrors.HandleError(c, apierrors.New503Error(err))
				return
			}
			remaining--
		}

		log.Info().Int64("user_id", userID).Str("signal", string(verdict.Signal)).Int("remaining", remaining).Msg("Chart analyzed")
		c.JSON(http.StatusOK, analyzeResponse{Verdict: *verdict, Remaining: remaining})
	}
}

func quotaDenied(reason error) *apierrors.CustomError {
	switch {
	case errors.Is(reason, services.ErrUserNotFound):
		return apierrors.New403Error("User is not verified, register first")
	case errors.Is(reason, services.ErrLimitReached):
		return apierrors.New429Error("Daily limit reached, try again tomorrow")
	}
	return apierrors.New500Error(fmt.Errorf("unexpected quota denial: %v", reason))
}

func analysisFailureMessage(err error) string {
	if errors.Is(err, services.ErrUnparseableVerdict) {
		return fmt.Sprintf("Model response not recognized: %v", err)
	}
	return fmt.Sprintf("Model request failed: %v", err)
}

func verifyUserHandler(ledger services.QuotaLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			UserID     int64  `json:"user_id" binding:"required"`
			ExternalID string `json:"external_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.HandleError(c, apierrors.New400Error(err.Error()))
			return
		}

		err := ledger.UpsertIdentity(c.Request.Context(), request.UserID, request.ExternalID)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrExternalIDTaken):
			apierrors.HandleError(c, apierrors.New409Error("External id is bound to another user", err))
			return
		case errors.Is(err, services.ErrInvalidExternalID):
			apierrors.HandleError(c, apierrors.New400Error(err.Error()))
			return
		default:
			apierrors.HandleError(c, apierrors.New503Error(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"user_id": request.UserID, "verified": true})
	}
}

func getQuotaHandler(ledger services.QuotaLedger, dailyLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
		if err != nil {
			apierrors.HandleError(c, apierrors.New400Error("Invalid user_id"))
			return
		}

		user, err := ledger.Usage(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				apierrors.HandleError(c, apierrors.New404Error("User not found"))
				return
			}
			apierrors.HandleError(c, apierrors.New503Error(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id":         user.UserID,
			"external_id":     user.ExternalID,
			"daily_usage":     user.DailyUsage,
			"last_usage_date": user.LastUsageDate.Format("2006-01-02"),
			"daily_limit":     dailyLimit,
			"policy":          ledger.Policy(),
		})
	}
}

func getCacheHandler(cache services.IdentifierCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		externalID := c.Param("external_id")
		cached, err := cache.Contains(c.Request.Context(), externalID)
		if err != nil {
			apierrors.HandleError(c, apierrors.New503Error(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"external_id": externalID, "cached": cached})
	}
}

func addToCacheHandler(cache services.IdentifierCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			ExternalID string `json:"external_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apierrors.HandleError(c, apierrors.New400Error(err.Error()))
			return
		}

		if err := cache.Insert(c.Request.Context(), request.ExternalID); err != nil {
			if errors.Is(err, services.ErrInvalidExternalID) {
				apierrors.HandleError(c, apierrors.New400Error(err.Error()))
				return
			}
			apierrors.HandleError(c, apierrors.New503Error(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"external_id": request.ExternalID, "cached": true})
	}
}
