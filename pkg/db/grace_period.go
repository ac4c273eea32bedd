package db

import "time"

type GracePeriodReason string

const (
	GraceReasonOffline GracePeriodReason = "OFFLINE"
	GraceReasonManual  GracePeriodReason = "MANUAL"
)

// GracePeriodAssignment is a time-boxed hold keeping a conversation with the
// operator who owned it when they went offline. At most one per conversation.
type GracePeriodAssignment struct {
	ID             string            `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string            `json:"conversation_id" gorm:"uniqueIndex;size:36;not null"`
	OperatorID     string            `json:"operator_id" gorm:"index;size:36;not null"`
	ExpiresAt      time.Time         `json:"expires_at" gorm:"index;not null"`
	Reason         GracePeriodReason `json:"reason" gorm:"size:20;not null"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (GracePeriodAssignment) TableName() string {
	return "grace_period_assignments"
}
