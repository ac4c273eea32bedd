// AI analysis of conversations: urgency, sentiment and complexity
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const analysisService = "gemini"

var errNoAnalyzer = errors.New("chat model not configured")

// Analyzer produces an analysis for a conversation or fails.
type Analyzer interface {
	Analyze(ctx context.Context, conv *db.Conversation, messages []models.Message) (db.Analysis, error)
}

// AnalysisGateway asks a chat model to classify a conversation.
type AnalysisGateway struct {
	chatModel model.BaseChatModel
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAnalysisGateway wraps chatModel. A nil chatModel makes every call fail,
// which sends scoring down the age-based path.
func NewAnalysisGateway(chatModel model.BaseChatModel, timeout time.Duration) *AnalysisGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AnalysisGateway{
		chatModel: chatModel,
		timeout:   timeout,
		logger:    utils.GetLogger(),
	}
}

// NewGeminiChatModel creates a Gemini chat model through the genai client.
func NewGeminiChatModel(ctx context.Context, apiKey, modelName string) (model.BaseChatModel, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: genaiClient,
		Model:  modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini model: %w", err)
	}
	return chatModel, nil
}

var _ Analyzer = (*AnalysisGateway)(nil)

// Analyze returns the model's classification. The call is bounded by the
// gateway timeout even if the model ignores ctx.
func (g *AnalysisGateway) Analyze(ctx context.Context, conv *db.Conversation, messages []models.Message) (db.Analysis, error) {
	if g == nil || g.chatModel == nil {
		return db.Analysis{}, NewExternalServiceError(analysisService, errNoAnalyzer)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		msg *schema.Message
		err error
	}
	done := make(chan result, 1)
	prompt := buildAnalysisPrompt(conv, messages)
	go func() {
		msg, err := g.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
		done <- result{msg: msg, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return db.Analysis{}, NewExternalServiceError(analysisService, ctx.Err())
	}
	if res.err != nil {
		return db.Analysis{}, NewExternalServiceError(analysisService, res.err)
	}
	if res.msg == nil || strings.TrimSpace(res.msg.Content) == "" {
		return db.Analysis{}, NewExternalServiceError(analysisService, errors.New("empty response"))
	}

	analysis := ParseAnalysis(res.msg.Content)
	g.logger.Info("AI analysis completed",
		"conversationId", conv.ID,
		"urgency", analysis.UrgencyLevel,
		"sentiment", analysis.SentimentScore,
		"complexity", analysis.ComplexityRating)
	return analysis, nil
}

func buildAnalysisPrompt(conv *db.Conversation, messages []models.Message) string {
	var sb strings.Builder
	if len(messages) == 0 {
		sb.WriteString("No recent messages available")
	}
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s] %s: %s", m.Timestamp, m.Sender, m.Text)
	}

	return fmt.Sprintf(`Analyze the following customer support conversation and provide:
1. Urgency level (LOW, MEDIUM, HIGH, CRITICAL)
2. Sentiment score (-1.0 to 1.0, where -1 is very negative and 1 is very positive)
3. Complexity rating (SIMPLE, MEDIUM, COMPLEX)

Conversation context:
- Customer phone: %s
- Message count: %d
- Last message time: %s

Recent messages:
%s

Respond in JSON format:
{
  "urgency_level": "HIGH|MEDIUM|LOW|CRITICAL",
  "sentiment_score": -0.5,
  "complexity_rating": "SIMPLE|MEDIUM|COMPLEX",
  "reasoning": "brief explanation"
}`, conv.CustomerPhoneNumber, conv.MessageCount, conv.LastMessageAt.UTC().Format(time.RFC3339), sb.String())
}

var sentimentNumberRe = regexp.MustCompile(`(?i)sentiment[^0-9+\-.]{0,24}([+-]?(?:\d+(?:\.\d+)?|\.\d+))`)

// ParseAnalysis reads a model reply. It prefers the JSON object embedded in
// the text; missing or invalid fields default to MEDIUM, 0 and MEDIUM.
// Replies without parseable JSON go through keyword heuristics.
func ParseAnalysis(text string) db.Analysis {
	if obj, ok := extractJSONObject(text); ok {
		var raw map[string]any
		if err := json.Unmarshal([]byte(obj), &raw); err == nil {
			return db.Analysis{
				UrgencyLevel:     parseUrgency(raw["urgency_level"]),
				SentimentScore:   parseSentiment(raw["sentiment_score"]),
				ComplexityRating: parseComplexity(raw["complexity_rating"]),
			}
		}
	}
	return keywordAnalysis(text)
}

// extractJSONObject returns the span from the first '{' to the last '}'.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func parseUrgency(v any) db.UrgencyLevel {
	s, _ := v.(string)
	u := db.UrgencyLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !u.Valid() {
		return db.UrgencyMedium
	}
	return u
}

func parseComplexity(v any) db.ComplexityRating {
	s, _ := v.(string)
	c := db.ComplexityRating(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return db.ComplexityMedium
	}
	return c
}

func parseSentiment(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	return clampSentiment(f)
}

func clampSentiment(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, f))
}

func keywordAnalysis(text string) db.Analysis {
	lower := strings.ToLower(text)
	out := db.Analysis{UrgencyLevel: db.UrgencyMedium, ComplexityRating: db.ComplexityMedium}

	switch {
	case strings.Contains(lower, "critical"), strings.Contains(lower, "urgent"):
		out.UrgencyLevel = db.UrgencyCritical
	case strings.Contains(lower, "high"):
		out.UrgencyLevel = db.UrgencyHigh
	case strings.Contains(lower, "low"):
		out.UrgencyLevel = db.UrgencyLow
	}

	if m := sentimentNumberRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.SentimentScore = clampSentiment(f)
		}
	} else {
		switch {
		case strings.Contains(lower, "negative"), strings.Contains(lower, "angry"), strings.Contains(lower, "frustrated"):
			out.SentimentScore = -0.6
		case strings.Contains(lower, "positive"), strings.Contains(lower, "happy"), strings.Contains(lower, "satisfied"):
			out.SentimentScore = 0.6
		}
	}

	switch {
	case strings.Contains(lower, "complex"), strings.Contains(lower, "complicated"):
		out.ComplexityRating = db.ComplexityComplex
	case strings.Contains(lower, "simple"), strings.Contains(lower, "easy"):
		out.ComplexityRating = db.ComplexitySimple
	}
	return out
}
