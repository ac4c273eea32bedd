// Allocation of queued conversations to operators
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/config"
	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/event"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// AllocationService picks the next conversation for an operator and
// performs manual claims. Ownership is decided only by the row-locked
// assignment in lockAndAssign; ranking may work from stale reads.
type AllocationService struct {
	db             *gorm.DB
	scorer         *PriorityScorer
	emitter        *event.Emitter
	candidateLimit int
	concurrency    int
	now            func() time.Time
	logger         *slog.Logger
}

// NewAllocationService creates the service.
func NewAllocationService(database *gorm.DB, scorer *PriorityScorer, cfg config.AllocationConfig, emitter *event.Emitter) *AllocationService {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = config.DefaultCandidateLimit
	}
	if cfg.ScoringConcurrency <= 0 {
		cfg.ScoringConcurrency = config.DefaultScoringConcurrency
	}
	if emitter == nil {
		emitter = event.Global()
	}
	return &AllocationService{
		db:             database,
		scorer:         scorer,
		emitter:        emitter,
		candidateLimit: cfg.CandidateLimit,
		concurrency:    cfg.ScoringConcurrency,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         utils.GetLogger(),
	}
}

// AllocateNext assigns the highest-priority queued conversation from the
// operator's inboxes. It returns (nil, nil) when there is nothing to
// allocate. Losing the race for the top candidate yields ConflictError; the
// caller should call again, which re-ranks.
func (s *AllocationService) AllocateNext(ctx context.Context, operatorID, tenantID string) (*db.Conversation, error) {
	gdb := s.db.WithContext(ctx)
	if _, err := loadOperator(gdb, operatorID, tenantID); err != nil {
		return nil, err
	}
	status, err := currentStatus(gdb, operatorID)
	if err != nil {
		return nil, err
	}
	if status.Status != db.StatusAvailable {
		return nil, NewValidationError("operator %s must be AVAILABLE to receive conversations", operatorID)
	}

	inboxIDs, err := subscribedInboxIDs(gdb, operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if len(inboxIDs) == 0 {
		s.logger.Debug("Operator has no inbox subscriptions", "operatorId", operatorID)
		return nil, nil
	}

	var candidates []db.Conversation
	if err := gdb.
		Where("tenant_id = ? AND inbox_id IN ? AND state = ?", tenantID, inboxIDs, db.StateQueued).
		Order("priority_score DESC").Order("last_message_at ASC").
		Limit(s.candidateLimit).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	top := s.rank(ctx, candidates)
	conv, err := s.lockAndAssign(ctx, top.ID, operatorID)
	if err != nil {
		if IsConflict(err) {
			s.logger.Info("Lost allocation race", "conversationId", top.ID, "operatorId", operatorID)
		}
		return nil, err
	}

	s.logger.Info("Conversation allocated",
		"conversationId", conv.ID, "operatorId", operatorID, "priorityScore", conv.PriorityScore)
	s.emitter.Emit(event.ConversationAllocatedEvent{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		InboxID:        conv.InboxID,
		OperatorID:     operatorID,
		PriorityScore:  conv.PriorityScore,
	})
	return conv, nil
}

// rank scores candidates concurrently and returns the best one: highest
// score, then the longest-waiting customer. All fallback scores share one
// clock reading so equal waits score equally.
func (s *AllocationService) rank(ctx context.Context, candidates []db.Conversation) *db.Conversation {
	now := s.now()
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range candidates {
		g.Go(func() error {
			s.scorer.Score(ctx, &candidates[i], now)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(candidates, func(a, b db.Conversation) int {
		if c := cmp.Compare(b.PriorityScore, a.PriorityScore); c != 0 {
			return c
		}
		return a.LastMessageAt.Compare(b.LastMessageAt)
	})
	return &candidates[0]
}

// Claim assigns a specific queued conversation to the operator, who must be
// subscribed to its inbox. Races are reported as ConflictError.
func (s *AllocationService) Claim(ctx context.Context, conversationID, operatorID, tenantID string) (*db.Conversation, error) {
	gdb := s.db.WithContext(ctx)
	if _, err := loadOperator(gdb, operatorID, tenantID); err != nil {
		return nil, err
	}
	conv, err := loadConversation(gdb, conversationID, tenantID)
	if err != nil {
		return nil, err
	}
	if conv.State != db.StateQueued {
		return nil, NewConflictError("conversation %s is not available for claiming", conversationID)
	}
	ok, err := isSubscribed(gdb, operatorID, conv.InboxID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewUnauthorizedError("operator is not subscribed to this conversation's inbox")
	}

	conv, err = s.lockAndAssign(ctx, conversationID, operatorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Conversation claimed", "conversationId", conv.ID, "operatorId", operatorID)
	s.emitter.Emit(event.ConversationClaimedEvent{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		InboxID:        conv.InboxID,
		OperatorID:     operatorID,
	})
	return conv, nil
}

// lockAndAssign is the only place a conversation gains an owner: lock the
// row, verify it is still QUEUED, assign, commit.
func (s *AllocationService) lockAndAssign(ctx context.Context, conversationID, operatorID string) (*db.Conversation, error) {
	var assigned *db.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := db.LockConversation(tx, conversationID, false)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFoundError("conversation", conversationID)
			}
			return err
		}
		if conv.State != db.StateQueued {
			return NewConflictError("conversation %s was taken by another operator", conversationID)
		}

		res := tx.Model(&db.Conversation{}).
			Where("id = ? AND state = ?", conversationID, db.StateQueued).
			Updates(map[string]any{"state": db.StateAllocated, "assigned_operator_id": operatorID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return NewConflictError("conversation %s was taken by another operator", conversationID)
		}

		conv.State = db.StateAllocated
		conv.AssignedOperatorID = &operatorID
		assigned = conv
		return nil
	})
	if err != nil {
		return nil, storeError(err, "assign conversation")
	}
	return assigned, nil
}

func loadConversation(tx *gorm.DB, conversationID, tenantID string) (*db.Conversation, error) {
	var conv db.Conversation
	if err := tx.Where("id = ?", conversationID).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("conversation", conversationID)
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.TenantID != tenantID {
		return nil, NewValidationError("conversation %s does not belong to this tenant", conversationID)
	}
	return &conv, nil
}

// storeError passes typed errors through, maps lock contention to
// ConflictError and wraps everything else.
func storeError(err error, op string) error {
	var (
		ve *ValidationError
		ue *UnauthorizedError
		ne *NotFoundError
		ce *ConflictError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ue), errors.As(err, &ne), errors.As(err, &ce):
		return err
	case db.IsLockContention(err):
		return &ConflictError{Message: "conversation is locked by a concurrent operation", Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
