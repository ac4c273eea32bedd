package models

// ReassignRequest moves an allocated conversation to another operator.
type ReassignRequest struct {
	TargetOperatorID string `json:"targetOperatorId" binding:"required"`
}

// MoveInboxRequest re-queues a conversation under another inbox.
type MoveInboxRequest struct {
	TargetInboxID string `json:"targetInboxId" binding:"required"`
}

// UpdateStatusRequest sets an operator's availability.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Conversation list sort orders.
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortPriority = "priority"
)

// ListConversationsQuery filters the conversations of one inbox.
type ListConversationsQuery struct {
	State              string `form:"state"`
	AssignedOperatorID string `form:"assignedOperatorId"`
	Sort               string `form:"sort"`
	Limit              int    `form:"limit"`
	Offset             int    `form:"offset"`
}

// Page sizes of conversation listings.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Normalize clamps paging and defaults the sort order.
func (q *ListConversationsQuery) Normalize() {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultListLimit
	case q.Limit > MaxListLimit:
		q.Limit = MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	switch q.Sort {
	case SortOldest, SortPriority:
	default:
		q.Sort = SortNewest
	}
}
