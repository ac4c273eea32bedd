// Conversation lifecycle transitions and conversation queries
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/event"
	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"gorm.io/gorm"
)

// ConversationService enforces the conversation state machine for resolve,
// deallocate, reassign and inbox moves, and serves conversation lookups.
type ConversationService struct {
	db           *gorm.DB
	orchestrator Orchestrator
	emitter      *event.Emitter
	now          func() time.Time
	logger       *slog.Logger
}

// NewConversationService creates the service. orchestrator may be nil; then
// resolution callbacks are skipped and history/contact lookups fail.
func NewConversationService(database *gorm.DB, orchestrator Orchestrator, emitter *event.Emitter) *ConversationService {
	if emitter == nil {
		emitter = event.Global()
	}
	return &ConversationService{
		db:           database,
		orchestrator: orchestrator,
		emitter:      emitter,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       utils.GetLogger(),
	}
}

// transition locks the conversation, checks its tenant and runs fn inside
// the same transaction. fn mutates conv to reflect what it wrote.
func (s *ConversationService) transition(ctx context.Context, conversationID, tenantID string, fn func(tx *gorm.DB, conv *db.Conversation) error) (*db.Conversation, error) {
	var out *db.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := db.LockConversation(tx, conversationID, false)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFoundError("conversation", conversationID)
			}
			return err
		}
		if conv.TenantID != tenantID {
			return NewValidationError("conversation %s does not belong to this tenant", conversationID)
		}
		if err := fn(tx, conv); err != nil {
			return err
		}
		out = conv
		return nil
	})
	if err != nil {
		return nil, storeError(err, "update conversation")
	}
	return out, nil
}

func deleteHold(tx *gorm.DB, conversationID string) error {
	return tx.Where("conversation_id = ?", conversationID).Delete(&db.GracePeriodAssignment{}).Error
}

// Resolve closes a conversation. Resolving an already resolved conversation
// returns it unchanged. Only the assigned operator or a MANAGER/ADMIN may
// resolve. The orchestrator is notified after commit, best-effort.
func (s *ConversationService) Resolve(ctx context.Context, conversationID, operatorID, tenantID string) (*db.Conversation, error) {
	actor, err := loadOperator(s.db.WithContext(ctx), operatorID, tenantID)
	if err != nil {
		return nil, err
	}

	alreadyResolved := false
	conv, err := s.transition(ctx, conversationID, tenantID, func(tx *gorm.DB, conv *db.Conversation) error {
		if conv.State == db.StateResolved {
			alreadyResolved = true
			return nil
		}
		if !conv.AssignedTo(actor.ID) && !actor.Role.AtLeast(db.RoleManager) {
			return NewUnauthorizedError("only the assigned operator or a manager can resolve this conversation")
		}

		now := s.now()
		if err := tx.Model(&db.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
			"state":                db.StateResolved,
			"assigned_operator_id": nil,
			"resolved_at":          now,
			"resolved_by":          actor.ID,
		}).Error; err != nil {
			return err
		}
		if err := deleteHold(tx, conv.ID); err != nil {
			return err
		}
		conv.State = db.StateResolved
		conv.AssignedOperatorID = nil
		conv.ResolvedAt = &now
		conv.ResolvedBy = &actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyResolved {
		return conv, nil
	}

	if s.orchestrator != nil {
		s.orchestrator.NotifyResolution(ctx, conv.ExternalConversationID)
	}
	s.logger.Info("Conversation resolved", "conversationId", conv.ID, "operatorId", actor.ID)
	s.emitter.Emit(event.ConversationResolvedEvent{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		InboxID:        conv.InboxID,
		ResolvedBy:     actor.ID,
		ResolvedAt:     *conv.ResolvedAt,
	})
	return conv, nil
}

// Deallocate returns an allocated conversation to the queue and drops its
// hold. MANAGER/ADMIN only. A queued conversation is returned unchanged.
func (s *ConversationService) Deallocate(ctx context.Context, conversationID, operatorID, tenantID string) (*db.Conversation, error) {
	actor, err := loadOperator(s.db.WithContext(ctx), operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, db.RoleManager, "deallocating a conversation"); err != nil {
		return nil, err
	}

	var previous string
	conv, err := s.transition(ctx, conversationID, tenantID, func(tx *gorm.DB, conv *db.Conversation) error {
		switch conv.State {
		case db.StateResolved:
			return NewConflictError("conversation %s is resolved", conv.ID)
		case db.StateQueued:
			return deleteHold(tx, conv.ID)
		}
		if conv.AssignedOperatorID != nil {
			previous = *conv.AssignedOperatorID
		}
		if err := tx.Model(&db.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
			"state":                db.StateQueued,
			"assigned_operator_id": nil,
		}).Error; err != nil {
			return err
		}
		conv.State = db.StateQueued
		conv.AssignedOperatorID = nil
		return deleteHold(tx, conv.ID)
	})
	if err != nil {
		return nil, err
	}
	if previous == "" {
		return conv, nil
	}

	s.logger.Info("Conversation deallocated", "conversationId", conv.ID, "previousOperatorId", previous, "actorId", actor.ID)
	s.emitter.Emit(event.ConversationDeallocatedEvent{
		TenantID:           conv.TenantID,
		ConversationID:     conv.ID,
		InboxID:            conv.InboxID,
		PreviousOperatorID: previous,
		ActorID:            actor.ID,
	})
	return conv, nil
}

// Reassign hands the conversation to targetOperatorID, who must share the
// tenant and be subscribed to the conversation's inbox. MANAGER/ADMIN only.
func (s *ConversationService) Reassign(ctx context.Context, conversationID, targetOperatorID, operatorID, tenantID string) (*db.Conversation, error) {
	gdb := s.db.WithContext(ctx)
	actor, err := loadOperator(gdb, operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, db.RoleManager, "reassigning a conversation"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(targetOperatorID) == "" {
		return nil, NewValidationError("target operator id is required")
	}
	target, err := loadOperator(gdb, targetOperatorID, tenantID)
	if err != nil {
		return nil, err
	}

	var previous string
	conv, err := s.transition(ctx, conversationID, tenantID, func(tx *gorm.DB, conv *db.Conversation) error {
		if conv.State == db.StateResolved {
			return NewConflictError("conversation %s is resolved", conv.ID)
		}
		ok, err := isSubscribed(tx, target.ID, conv.InboxID)
		if err != nil {
			return err
		}
		if !ok {
			return NewValidationError("target operator %s is not subscribed to the conversation's inbox", target.ID)
		}
		if conv.AssignedOperatorID != nil {
			previous = *conv.AssignedOperatorID
		}
		if err := tx.Model(&db.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
			"state":                db.StateAllocated,
			"assigned_operator_id": target.ID,
		}).Error; err != nil {
			return err
		}
		conv.State = db.StateAllocated
		conv.AssignedOperatorID = &target.ID
		return deleteHold(tx, conv.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Conversation reassigned", "conversationId", conv.ID, "from", previous, "to", target.ID, "actorId", actor.ID)
	s.emitter.Emit(event.ConversationReassignedEvent{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		InboxID:        conv.InboxID,
		FromOperatorID: previous,
		ToOperatorID:   target.ID,
		ActorID:        actor.ID,
	})
	return conv, nil
}

// MoveInbox re-queues the conversation under targetInboxID, which must share
// the tenant. MANAGER/ADMIN only.
func (s *ConversationService) MoveInbox(ctx context.Context, conversationID, targetInboxID, operatorID, tenantID string) (*db.Conversation, error) {
	gdb := s.db.WithContext(ctx)
	actor, err := loadOperator(gdb, operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := RequireRole(actor, db.RoleManager, "moving a conversation"); err != nil {
		return nil, err
	}
	inbox, err := loadInbox(gdb, targetInboxID, tenantID)
	if err != nil {
		return nil, err
	}

	var from string
	conv, err := s.transition(ctx, conversationID, tenantID, func(tx *gorm.DB, conv *db.Conversation) error {
		if conv.State == db.StateResolved {
			return NewConflictError("conversation %s is resolved", conv.ID)
		}
		from = conv.InboxID
		if err := tx.Model(&db.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
			"inbox_id":             inbox.ID,
			"state":                db.StateQueued,
			"assigned_operator_id": nil,
		}).Error; err != nil {
			return err
		}
		conv.InboxID = inbox.ID
		conv.State = db.StateQueued
		conv.AssignedOperatorID = nil
		return deleteHold(tx, conv.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Conversation moved", "conversationId", conv.ID, "from", from, "to", inbox.ID, "actorId", actor.ID)
	s.emitter.Emit(event.ConversationMovedEvent{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		FromInboxID:    from,
		ToInboxID:      inbox.ID,
		ActorID:        actor.ID,
	})
	return conv, nil
}

func loadInbox(tx *gorm.DB, inboxID, tenantID string) (*db.Inbox, error) {
	if strings.TrimSpace(inboxID) == "" {
		return nil, NewValidationError("inbox id is required")
	}
	var inbox db.Inbox
	if err := tx.Where("id = ?", inboxID).First(&inbox).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("inbox", inboxID)
		}
		return nil, fmt.Errorf("load inbox: %w", err)
	}
	if inbox.TenantID != tenantID {
		return nil, NewValidationError("inbox %s does not belong to this tenant", inboxID)
	}
	return &inbox, nil
}

// List returns conversations of an inbox the operator is subscribed to.
func (s *ConversationService) List(ctx context.Context, inboxID, operatorID, tenantID string, q models.ListConversationsQuery) ([]db.Conversation, error) {
	gdb := s.db.WithContext(ctx)
	if _, err := loadOperator(gdb, operatorID, tenantID); err != nil {
		return nil, err
	}
	if _, err := loadInbox(gdb, inboxID, tenantID); err != nil {
		return nil, err
	}
	ok, err := isSubscribed(gdb, operatorID, inboxID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewUnauthorizedError("operator is not subscribed to inbox %s", inboxID)
	}

	q.Normalize()
	query := gdb.Where("inbox_id = ? AND tenant_id = ?", inboxID, tenantID)
	if q.State != "" {
		state := db.ConversationState(strings.ToUpper(q.State))
		if !state.Valid() {
			return nil, NewValidationError("invalid state filter %q", q.State)
		}
		query = query.Where("state = ?", state)
	}
	if q.AssignedOperatorID != "" {
		query = query.Where("assigned_operator_id = ?", q.AssignedOperatorID)
	}
	switch q.Sort {
	case models.SortOldest:
		query = query.Order("last_message_at ASC")
	case models.SortPriority:
		query = query.Order("priority_score DESC").Order("last_message_at ASC")
	default:
		query = query.Order("last_message_at DESC")
	}

	var convs []db.Conversation
	if err := query.Limit(q.Limit).Offset(q.Offset).Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Search finds conversations by customer phone number across the
// operator's subscribed inboxes.
func (s *ConversationService) Search(ctx context.Context, phoneNumber, operatorID, tenantID string) ([]db.Conversation, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return nil, NewValidationError("phone number is required")
	}
	gdb := s.db.WithContext(ctx)
	if _, err := loadOperator(gdb, operatorID, tenantID); err != nil {
		return nil, err
	}
	inboxIDs, err := subscribedInboxIDs(gdb, operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if len(inboxIDs) == 0 {
		return []db.Conversation{}, nil
	}

	var convs []db.Conversation
	if err := gdb.
		Where("tenant_id = ? AND inbox_id IN ? AND customer_phone_number LIKE ?", tenantID, inboxIDs, "%"+phoneNumber+"%").
		Order("last_message_at DESC").
		Limit(models.MaxListLimit).
		Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return convs, nil
}

// accessible loads a conversation the operator may read: same tenant and
// subscribed to its inbox.
func (s *ConversationService) accessible(ctx context.Context, conversationID, operatorID, tenantID string) (*db.Conversation, error) {
	gdb := s.db.WithContext(ctx)
	if _, err := loadOperator(gdb, operatorID, tenantID); err != nil {
		return nil, err
	}
	conv, err := loadConversation(gdb, conversationID, tenantID)
	if err != nil {
		return nil, err
	}
	ok, err := isSubscribed(gdb, operatorID, conv.InboxID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewUnauthorizedError("operator is not subscribed to this conversation's inbox")
	}
	return conv, nil
}

// Get returns one conversation the operator may read.
func (s *ConversationService) Get(ctx context.Context, conversationID, operatorID, tenantID string) (*db.Conversation, error) {
	return s.accessible(ctx, conversationID, operatorID, tenantID)
}

// GetHistory pages through the conversation's messages held by the
// orchestrator.
func (s *ConversationService) GetHistory(ctx context.Context, conversationID, operatorID, tenantID string, page, limit int) (*models.ConversationHistory, error) {
	conv, err := s.accessible(ctx, conversationID, operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if s.orchestrator == nil {
		return nil, NewExternalServiceError(orchestratorService, errOrchestratorNotConfigured)
	}
	return s.orchestrator.GetConversationHistory(ctx, conv.ExternalConversationID, page, limit)
}

// GetContact returns the orchestrator's record of the conversation's customer.
func (s *ConversationService) GetContact(ctx context.Context, conversationID, operatorID, tenantID string) (models.Contact, error) {
	conv, err := s.accessible(ctx, conversationID, operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if s.orchestrator == nil {
		return nil, NewExternalServiceError(orchestratorService, errOrchestratorNotConfigured)
	}
	return s.orchestrator.GetContactInfo(ctx, conv.CustomerPhoneNumber)
}
