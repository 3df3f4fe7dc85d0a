package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chart_analyzer_go_backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
)

var (
	ErrModelUnavailable   = errors.New("model request failed")
	ErrUnparseableVerdict = errors.New("model response not recognized")
)

const chartPrompt = `You are a financial trader with twenty years of technical analysis experience. Look at this chart.
1. Identify the current trend.
2. Find the key support and resistance levels.
3. Find candlestick patterns.
4. Give a clear signal: UP (LONG) or DOWN (SHORT).
5. Give the trade expiry in minutes (1-5).
6. Write a short rationale (3-4 sentences at most).

Return plain JSON without Markdown and without any text around it, using double quotes:
{"signal":"LONG|SHORT|NEUTRAL","expiry_minutes":1,"reasoning":"..."}`

type GeminiChartAnalyzer struct {
	model   ContentGenerator
	timeout time.Duration
}

// NewGeminiChartAnalyzer builds the analyzer on a client created once at start-up.
func NewGeminiChartAnalyzer(client *genai.Client, modelName string, timeout time.Duration) *GeminiChartAnalyzer {
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	return NewChartAnalyzer(model, timeout)
}

func NewChartAnalyzer(model ContentGenerator, timeout time.Duration) *GeminiChartAnalyzer {
	return &GeminiChartAnalyzer{model: model, timeout: timeout}
}

func (a *GeminiChartAnalyzer) Analyze(ctx context.Context, mimeType string, image []byte) (*models.Verdict, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.model.GenerateContent(ctx, genai.Text(chartPrompt), genai.Blob{MIMEType: mimeType, Data: image})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrModelUnavailable)
	}

	verdict, err := ParseVerdict(text)
	if err != nil {
		log.Warn().Err(err).Str("response", text).Msg("Unrecognized model response")
		return nil, err
	}
	return verdict, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}

var validate = validator.New()

// ParseVerdict extracts the first JSON object in text and validates it.
func ParseVerdict(text string) (*models.Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: JSON not found in model response", ErrUnparseableVerdict)
	}

	var verdict models.Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableVerdict, err)
	}
	if err := validate.Struct(&verdict); err != nil {
		return nil, fmt.Errorf("%w: JSON shape invalid: %v", ErrUnparseableVerdict, err)
	}
	return &verdict, nil
}
