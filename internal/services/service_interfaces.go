package services

import (
	"context"

	"chart_analyzer_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
)

// QuotaLedger meters analysis requests per user per calendar day. The
// calendar day is always the store's CURRENT_DATE, never the process clock.
type QuotaLedger interface {
	UpsertIdentity(ctx context.Context, userID int64, externalID string) error
	CheckAndConsume(ctx context.Context, userID int64, limit int) (QuotaDecision, error)
	CommitUsage(ctx context.Context, userID int64) error
	IsVerified(ctx context.Context, userID int64) (bool, error)
	ExternalID(ctx context.Context, userID int64) (string, error)
	Usage(ctx context.Context, userID int64) (*models.VerifiedUser, error)
	Policy() QuotaPolicy
}

// IdentifierCache is a durable set of external ids that were already
// processed. Ids are never removed.
type IdentifierCache interface {
	Contains(ctx context.Context, externalID string) (bool, error)
	// Insert adds externalID; inserting an id that is already present succeeds.
	Insert(ctx context.Context, externalID string) error
}

// ChartAnalyzer turns a chart image into a validated verdict.
type ChartAnalyzer interface {
	Analyze(ctx context.Context, mimeType string, image []byte) (*models.Verdict, error)
}

// ContentGenerator is the part of *genai.GenerativeModel the analyzer uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}
