// Priority scoring of queued conversations
package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"gorm.io/gorm"
)

var urgencyWeights = map[db.UrgencyLevel]float64{
	db.UrgencyCritical: 100,
	db.UrgencyHigh:     75,
	db.UrgencyMedium:   50,
	db.UrgencyLow:      25,
}

var complexityWeights = map[db.ComplexityRating]float64{
	db.ComplexityComplex: 30,
	db.ComplexityMedium:  20,
	db.ComplexitySimple:  10,
}

// maxFallbackScore caps the age-based score, in minutes waited.
const maxFallbackScore = 100

// ScoreAnalysis turns an analysis into a priority. Negative sentiment adds
// up to 20 points; positive sentiment adds nothing.
func ScoreAnalysis(a db.Analysis) float64 {
	score := urgencyWeights[a.UrgencyLevel] + complexityWeights[a.ComplexityRating]
	if a.SentimentScore < 0 {
		score += math.Abs(a.SentimentScore) * 20
	}
	return score
}

// FallbackScore is the minutes since the last customer message, capped.
func FallbackScore(lastMessageAt, now time.Time) float64 {
	age := now.Sub(lastMessageAt).Minutes()
	if age < 0 {
		return 0
	}
	return math.Min(age, maxFallbackScore)
}

// PriorityScorer ranks conversations, reusing the analysis cached on the
// row while no customer message has arrived since it was computed.
type PriorityScorer struct {
	db             *gorm.DB
	analyzer       Analyzer
	orchestrator   Orchestrator
	recentMessages int
	logger         *slog.Logger
}

// NewPriorityScorer creates a scorer. orchestrator may be nil, in which case
// the analyzer only sees conversation metadata.
func NewPriorityScorer(database *gorm.DB, analyzer Analyzer, orchestrator Orchestrator, recentMessages int) *PriorityScorer {
	if recentMessages <= 0 {
		recentMessages = 10
	}
	return &PriorityScorer{
		db:             database,
		analyzer:       analyzer,
		orchestrator:   orchestrator,
		recentMessages: recentMessages,
		logger:         utils.GetLogger(),
	}
}

// Score returns the conversation's priority and persists it, updating conv
// in place. It never fails: when analysis is unavailable the age-based
// score is used.
func (s *PriorityScorer) Score(ctx context.Context, conv *db.Conversation, now time.Time) float64 {
	if conv.Analysis.FreshFor(conv.LastMessageAt) {
		score := ScoreAnalysis(conv.Analysis.Result())
		s.logger.Debug("Using cached AI analysis", "conversationId", conv.ID)
		if score != conv.PriorityScore {
			s.persist(ctx, conv.ID, map[string]any{"priority_score": score})
			conv.PriorityScore = score
		}
		return score
	}

	analysis, err := s.analyze(ctx, conv)
	if err != nil {
		score := FallbackScore(conv.LastMessageAt, now)
		s.logger.Warn("AI analysis unavailable, using age-based priority",
			"conversationId", conv.ID, "score", score, "error", err)
		s.persist(ctx, conv.ID, map[string]any{"priority_score": score})
		conv.PriorityScore = score
		return score
	}

	score := ScoreAnalysis(analysis)
	cache := db.NewAnalysisCache(analysis, now)
	s.persist(ctx, conv.ID, map[string]any{
		"priority_score":    score,
		"urgency_level":     cache.UrgencyLevel,
		"sentiment_score":   *cache.SentimentScore,
		"complexity_rating": cache.ComplexityRating,
		"analyzed_at":       *cache.AnalyzedAt,
	})
	conv.PriorityScore = score
	conv.Analysis = cache
	return score
}

func (s *PriorityScorer) analyze(ctx context.Context, conv *db.Conversation) (db.Analysis, error) {
	if s.analyzer == nil {
		return db.Analysis{}, NewExternalServiceError(analysisService, errNoAnalyzer)
	}
	return s.analyzer.Analyze(ctx, conv, s.recent(ctx, conv))
}

func (s *PriorityScorer) recent(ctx context.Context, conv *db.Conversation) []models.Message {
	if s.orchestrator == nil {
		return nil
	}
	msgs, err := s.orchestrator.GetRecentMessages(ctx, conv.ExternalConversationID, s.recentMessages)
	if err != nil {
		s.logger.Debug("Recent messages unavailable", "conversationId", conv.ID, "error", err)
		return nil
	}
	if len(msgs) > s.recentMessages {
		msgs = msgs[len(msgs)-s.recentMessages:]
	}
	return msgs
}

// persist writes scoring columns only. A failed write costs ranking quality
// on the next call, not correctness, so it is logged and dropped.
func (s *PriorityScorer) persist(ctx context.Context, conversationID string, updates map[string]any) {
	err := s.db.WithContext(ctx).Model(&db.Conversation{}).
		Where("id = ?", conversationID).
		Updates(updates).Error
	if err != nil {
		s.logger.Warn("Failed to persist priority score", "conversationId", conversationID, "error", err)
	}
}
