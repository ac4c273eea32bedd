// Database models for operators, their status and inbox subscriptions
package db

import (
	"strings"
	"time"
)

// Role is an operator's privilege level. Roles are ordered:
// OPERATOR < MANAGER < ADMIN.
type Role string

const (
	RoleOperator Role = "OPERATOR"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) rank() int {
	switch r {
	case RoleOperator:
		return 1
	case RoleManager:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants at least the privileges of min.
// Unknown roles grant nothing.
func (r Role) AtLeast(min Role) bool {
	return r.rank() > 0 && r.rank() >= min.rank()
}

func (r Role) Valid() bool { return r.rank() > 0 }

// Operator is a support agent within a tenant.
type Operator struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID  string    `json:"tenant_id" gorm:"index;size:36;not null"`
	Name      string    `json:"name" gorm:"size:200"`
	Role      Role      `json:"role" gorm:"size:20;not null;default:OPERATOR"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Operator) TableName() string {
	return "operators"
}

type OperatorStatusValue string

const (
	StatusAvailable OperatorStatusValue = "AVAILABLE"
	StatusOffline   OperatorStatusValue = "OFFLINE"
)

// ParseOperatorStatus accepts the status case-insensitively.
func ParseOperatorStatus(s string) (OperatorStatusValue, bool) {
	switch v := OperatorStatusValue(strings.ToUpper(strings.TrimSpace(s))); v {
	case StatusAvailable, StatusOffline:
		return v, true
	}
	return "", false
}

// OperatorStatus holds one row per operator. Operators without a row are
// treated as OFFLINE.
type OperatorStatus struct {
	OperatorID         string              `json:"operator_id" gorm:"primaryKey;size:36"`
	Status             OperatorStatusValue `json:"status" gorm:"size:20;not null;index"`
	LastStatusChangeAt time.Time           `json:"last_status_change_at" gorm:"not null"`
}

func (OperatorStatus) TableName() string {
	return "operator_status"
}

// OperatorInboxSubscription links an operator to an inbox it may work.
type OperatorInboxSubscription struct {
	OperatorID string    `json:"operator_id" gorm:"primaryKey;size:36"`
	InboxID    string    `json:"inbox_id" gorm:"primaryKey;size:36;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OperatorInboxSubscription) TableName() string {
	return "operator_inbox_subscriptions"
}
