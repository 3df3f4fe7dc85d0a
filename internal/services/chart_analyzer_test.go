package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chart_analyzer_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockContentGenerator struct {
	mock.Mock
}

func (m *MockContentGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, parts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponse), args.Error(1)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		}},
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    *models.Verdict
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"signal":"LONG","expiry_minutes":3,"reasoning":"Higher lows on support."}`,
			want: &models.Verdict{Signal: models.SignalLong, ExpiryMinutes: 3, Reasoning: "Higher lows on support."},
		},
		{
			name: "object inside markdown fence",
			text: "```json\n{\"signal\":\"SHORT\",\"expiry_minutes\":1,\"reasoning\":\"Bearish engulfing.\"}\n```",
			want: &models.Verdict{Signal: models.SignalShort, ExpiryMinutes: 1, Reasoning: "Bearish engulfing."},
		},
		{name: "no json", text: "I cannot read this chart", wantErr: true},
		{name: "broken json", text: `{"signal": LONG}`, wantErr: true},
		{name: "unknown signal", text: `{"signal":"UP","expiry_minutes":3,"reasoning":"abc"}`, wantErr: true},
		{name: "expiry too long", text: `{"signal":"LONG","expiry_minutes":6,"reasoning":"abc"}`, wantErr: true},
		{name: "expiry missing", text: `{"signal":"LONG","reasoning":"abc"}`, wantErr: true},
		{name: "reasoning too short", text: `{"signal":"NEUTRAL","expiry_minutes":2,"reasoning":"ok"}`, wantErr: true},
		{
			name:    "reasoning too long",
			text:    `{"signal":"NEUTRAL","expiry_minutes":2,"reasoning":"` + strings.Repeat("a", 501) + `"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparseableVerdict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChartAnalyzerAnalyze(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G'}

	t.Run("valid response", func(t *testing.T) {
		model := new(MockContentGenerator)
		model.On("GenerateContent", mock.Anything, mock.MatchedBy(func(parts []genai.Part) bool {
			if len(parts) != 2 {
				return false
			}
			blob, ok := parts[1].(genai.Blob)
			return ok && blob.MIMEType == "image/png" && len(blob.Data) == len(image)
		})).Return(textResponse(`{"signal":"NEUTRAL","expiry_minutes":5,"reasoning":"Sideways range."}`), nil).Once()

		analyzer := NewChartAnalyzer(model, time.Second)
		verdict, err := analyzer.Analyze(context.Background(), "image/png", image)
		require.NoError(t, err)
		assert.Equal(t, models.SignalNeutral, verdict.Signal)
		assert.Equal(t, 5, verdict.ExpiryMinutes)
		model.AssertExpectations(t)
	})

	t.Run("model error", func(t *testing.T) {
		model := new(MockContentGenerator)
		model.On("GenerateContent", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded")).Once()

		_, err := NewChartAnalyzer(model, time.Second).Analyze(context.Background(), "image/png", image)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("empty response", func(t *testing.T) {
		model := new(MockContentGenerator)
		model.On("GenerateContent", mock.Anything, mock.Anything).Return(&genai.GenerateContentResponse{}, nil).Once()

		_, err := NewChartAnalyzer(model, time.Second).Analyze(context.Background(), "image/png", image)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("unparseable response", func(t *testing.T) {
		model := new(MockContentGenerator)
		model.On("GenerateContent", mock.Anything, mock.Anything).Return(textResponse("LONG, trust me"), nil).Once()

		_, err := NewChartAnalyzer(model, time.Second).Analyze(context.Background(), "image/png", image)
		assert.ErrorIs(t, err, ErrUnparseableVerdict)
	})

	t.Run("deadline applied", func(t *testing.T) {
		model := new(MockContentGenerator)
		model.On("GenerateContent", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), mock.Anything).Return(textResponse(`{"signal":"LONG","expiry_minutes":1,"reasoning":"Breakout."}`), nil).Once()

		_, err := NewChartAnalyzer(model, time.Minute).Analyze(context.Background(), "image/jpeg", image)
		require.NoError(t, err)
		model.AssertExpectations(t)
	})
}
