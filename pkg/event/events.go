package event

import "time"

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	ConversationAllocated   = "conversation.allocated"
	ConversationClaimed     = "conversation.claimed"
	ConversationResolved    = "conversation.resolved"
	ConversationDeallocated = "conversation.deallocated"
	ConversationReassigned  = "conversation.reassigned"
	ConversationMoved       = "conversation.moved"
	ConversationRequeued    = "conversation.requeued"
	OperatorStatusChanged   = "operator.statusChanged"
	GracePeriodCreated      = "gracePeriod.created"
	GracePeriodCancelled    = "gracePeriod.cancelled"
)

// ============================================================================
// Conversation Events
// ============================================================================

// ConversationAllocatedEvent is emitted when AllocateNext hands a
// conversation to an operator.
type ConversationAllocatedEvent struct {
	TenantID       string  `json:"tenant_id"`
	ConversationID string  `json:"conversation_id"`
	InboxID        string  `json:"inbox_id"`
	OperatorID     string  `json:"operator_id"`
	PriorityScore  float64 `json:"priority_score"`
}

func (e ConversationAllocatedEvent) EventName() string { return ConversationAllocated }
func (e ConversationAllocatedEvent) Tenant() string    { return e.TenantID }

// ConversationClaimedEvent is emitted when an operator claims a conversation.
type ConversationClaimedEvent struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	InboxID        string `json:"inbox_id"`
	OperatorID     string `json:"operator_id"`
}

func (e ConversationClaimedEvent) EventName() string { return ConversationClaimed }
func (e ConversationClaimedEvent) Tenant() string    { return e.TenantID }

// ConversationResolvedEvent is emitted once per resolution; repeated
// resolve calls do not emit.
type ConversationResolvedEvent struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	InboxID        string    `json:"inbox_id"`
	ResolvedBy     string    `json:"resolved_by"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

func (e ConversationResolvedEvent) EventName() string { return ConversationResolved }
func (e ConversationResolvedEvent) Tenant() string    { return e.TenantID }

// ConversationDeallocatedEvent is emitted when a manager returns a
// conversation to the queue.
type ConversationDeallocatedEvent struct {
	TenantID           string `json:"tenant_id"`
	ConversationID     string `json:"conversation_id"`
	InboxID            string `json:"inbox_id"`
	PreviousOperatorID string `json:"previous_operator_id,omitempty"`
	ActorID            string `json:"actor_id"`
}

func (e ConversationDeallocatedEvent) EventName() string { return ConversationDeallocated }
func (e ConversationDeallocatedEvent) Tenant() string    { return e.TenantID }

// ConversationReassignedEvent is emitted when a manager hands a conversation
// to another operator.
type ConversationReassignedEvent struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	InboxID        string `json:"inbox_id"`
	FromOperatorID string `json:"from_operator_id,omitempty"`
	ToOperatorID   string `json:"to_operator_id"`
	ActorID        string `json:"actor_id"`
}

func (e ConversationReassignedEvent) EventName() string { return ConversationReassigned }
func (e ConversationReassignedEvent) Tenant() string    { return e.TenantID }

// ConversationMovedEvent is emitted when a conversation changes inbox.
type ConversationMovedEvent struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	FromInboxID    string `json:"from_inbox_id"`
	ToInboxID      string `json:"to_inbox_id"`
	ActorID        string `json:"actor_id"`
}

func (e ConversationMovedEvent) EventName() string { return ConversationMoved }
func (e ConversationMovedEvent) Tenant() string    { return e.TenantID }

// ConversationRequeuedEvent is emitted when an expired grace period returns
// a conversation to the queue.
type ConversationRequeuedEvent struct {
	TenantID           string `json:"tenant_id"`
	ConversationID     string `json:"conversation_id"`
	InboxID            string `json:"inbox_id"`
	PreviousOperatorID string `json:"previous_operator_id"`
}

func (e ConversationRequeuedEvent) EventName() string { return ConversationRequeued }
func (e ConversationRequeuedEvent) Tenant() string    { return e.TenantID }

// ============================================================================
// Grace Period Events
// ============================================================================

// GracePeriodCreatedEvent is emitted for each conversation held after its
// operator went offline.
type GracePeriodCreatedEvent struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	OperatorID     string    `json:"operator_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (e GracePeriodCreatedEvent) EventName() string { return GracePeriodCreated }
func (e GracePeriodCreatedEvent) Tenant() string    { return e.TenantID }

// GracePeriodCancelledEvent is emitted when an operator returns before
// their holds expire.
type GracePeriodCancelledEvent struct {
	TenantID        string   `json:"tenant_id"`
	OperatorID      string   `json:"operator_id"`
	ConversationIDs []string `json:"conversation_ids"`
}

func (e GracePeriodCancelledEvent) EventName() string { return GracePeriodCancelled }
func (e GracePeriodCancelledEvent) Tenant() string    { return e.TenantID }

// ============================================================================
// Operator Events
// ============================================================================

// OperatorStatusChangedEvent is emitted when an operator's availability
// changes. HoldsCreated/HoldsCancelled count grace periods touched by the
// transition.
type OperatorStatusChangedEvent struct {
	TenantID       string `json:"tenant_id"`
	OperatorID     string `json:"operator_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	HoldsCreated   int    `json:"holds_created,omitempty"`
	HoldsCancelled int    `json:"holds_cancelled,omitempty"`
}

func (e OperatorStatusChangedEvent) EventName() string { return OperatorStatusChanged }
func (e OperatorStatusChangedEvent) Tenant() string    { return e.TenantID }
