// Database models for customer conversations
package db

import "time"

// ConversationState is the allocation lifecycle state of a conversation.
type ConversationState string

const (
	StateQueued    ConversationState = "QUEUED"
	StateAllocated ConversationState = "ALLOCATED"
	StateResolved  ConversationState = "RESOLVED"
)

// Valid reports whether s is one of the known states.
func (s ConversationState) Valid() bool {
	switch s {
	case StateQueued, StateAllocated, StateResolved:
		return true
	}
	return false
}

type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "CRITICAL"
	UrgencyHigh     UrgencyLevel = "HIGH"
	UrgencyMedium   UrgencyLevel = "MEDIUM"
	UrgencyLow      UrgencyLevel = "LOW"
)

func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

type ComplexityRating string

const (
	ComplexityComplex ComplexityRating = "COMPLEX"
	ComplexityMedium  ComplexityRating = "MEDIUM"
	ComplexitySimple  ComplexityRating = "SIMPLE"
)

func (c ComplexityRating) Valid() bool {
	switch c {
	case ComplexityComplex, ComplexityMedium, ComplexitySimple:
		return true
	}
	return false
}

// Analysis is the urgency/sentiment/complexity triple produced by the AI
// analysis of a conversation.
type Analysis struct {
	UrgencyLevel     UrgencyLevel     `json:"urgency_level"`
	SentimentScore   float64          `json:"sentiment_score"`
	ComplexityRating ComplexityRating `json:"complexity_rating"`
}

// AnalysisCache is the last analysis stored on the conversation row together
// with the time it was computed.
type AnalysisCache struct {
	UrgencyLevel     UrgencyLevel     `json:"urgency_level,omitempty" gorm:"size:20"`
	SentimentScore   *float64         `json:"sentiment_score,omitempty"`
	ComplexityRating ComplexityRating `json:"complexity_rating,omitempty" gorm:"size:20"`
	AnalyzedAt       *time.Time       `json:"analyzed_at,omitempty"`
}

// FreshFor reports whether the cached analysis still describes the
// conversation: it must be complete and computed no earlier than the last
// customer message.
func (a AnalysisCache) FreshFor(lastMessageAt time.Time) bool {
	if a.AnalyzedAt == nil || a.SentimentScore == nil {
		return false
	}
	if !a.UrgencyLevel.Valid() || !a.ComplexityRating.Valid() {
		return false
	}
	return !a.AnalyzedAt.Before(lastMessageAt)
}

// Result returns the cached triple. Only meaningful when FreshFor holds.
func (a AnalysisCache) Result() Analysis {
	var sentiment float64
	if a.SentimentScore != nil {
		sentiment = *a.SentimentScore
	}
	return Analysis{UrgencyLevel: a.UrgencyLevel, SentimentScore: sentiment, ComplexityRating: a.ComplexityRating}
}

// NewAnalysisCache stamps an analysis with the time it was computed.
func NewAnalysisCache(a Analysis, analyzedAt time.Time) AnalysisCache {
	sentiment := a.SentimentScore
	return AnalysisCache{
		UrgencyLevel:     a.UrgencyLevel,
		SentimentScore:   &sentiment,
		ComplexityRating: a.ComplexityRating,
		AnalyzedAt:       &analyzedAt,
	}
}

// Conversation is a customer conversation routed to operators.
// AssignedOperatorID is set iff State is ALLOCATED; ResolvedAt is set iff
// State is RESOLVED.
type Conversation struct {
	ID                     string            `json:"id" gorm:"primaryKey;size:36"`
	TenantID               string            `json:"tenant_id" gorm:"index;size:36;not null;uniqueIndex:idx_conversations_tenant_external,priority:1"`
	InboxID                string            `json:"inbox_id" gorm:"size:36;not null;index:idx_conversations_inbox_state,priority:1"`
	ExternalConversationID string            `json:"external_conversation_id" gorm:"size:255;not null;uniqueIndex:idx_conversations_tenant_external,priority:2"`
	CustomerPhoneNumber    string            `json:"customer_phone_number" gorm:"size:32;index"`
	State                  ConversationState `json:"state" gorm:"size:20;not null;default:QUEUED;index:idx_conversations_inbox_state,priority:2"`
	AssignedOperatorID     *string           `json:"assigned_operator_id" gorm:"index;size:36"`
	LastMessageAt          time.Time         `json:"last_message_at" gorm:"not null"`
	MessageCount           int               `json:"message_count" gorm:"not null;default:0"`
	PriorityScore          float64           `json:"priority_score" gorm:"not null;default:0"`
	Analysis               AnalysisCache     `json:"analysis" gorm:"embedded"`
	ResolvedAt             *time.Time        `json:"resolved_at"`
	ResolvedBy             *string           `json:"resolved_by,omitempty" gorm:"size:36"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// AssignedTo reports whether the conversation is allocated to operatorID.
func (c *Conversation) AssignedTo(operatorID string) bool {
	return c.State == StateAllocated && c.AssignedOperatorID != nil && *c.AssignedOperatorID == operatorID
}
