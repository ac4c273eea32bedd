// Grace periods: holding an offline operator's conversations, then reclaiming them
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/event"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GracePeriodService creates holds when an operator goes offline and
// reclaims the conversations whose holds expire.
type GracePeriodService struct {
	db      *gorm.DB
	grace   time.Duration
	emitter *event.Emitter
	now     func() time.Time
	logger  *slog.Logger
}

// NewGracePeriodService creates the service. grace is the hold length.
func NewGracePeriodService(database *gorm.DB, grace time.Duration, emitter *event.Emitter) *GracePeriodService {
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	if emitter == nil {
		emitter = event.Global()
	}
	return &GracePeriodService{
		db:      database,
		grace:   grace,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  utils.GetLogger(),
	}
}

// CreateGracePeriods holds every conversation currently allocated to the
// operator until now+grace. A conversation that already has a hold keeps it.
// Individual insert failures are logged and skipped. Returns the number of
// holds created.
func (s *GracePeriodService) CreateGracePeriods(ctx context.Context, operatorID string) (int, error) {
	var convs []db.Conversation
	if err := s.db.WithContext(ctx).
		Where("assigned_operator_id = ? AND state = ?", operatorID, db.StateAllocated).
		Find(&convs).Error; err != nil {
		return 0, fmt.Errorf("list allocated conversations: %w", err)
	}

	expiresAt := s.now().Add(s.grace)
	created := 0
	for _, conv := range convs {
		hold := db.GracePeriodAssignment{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			OperatorID:     operatorID,
			ExpiresAt:      expiresAt,
			Reason:         db.GraceReasonOffline,
		}
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "conversation_id"}}, DoNothing: true}).
			Create(&hold)
		if res.Error != nil {
			s.logger.Error("Failed to create grace period",
				"conversationId", conv.ID, "operatorId", operatorID, "error", res.Error)
			continue
		}
		if res.RowsAffected > 0 {
			created++
			s.emitter.Emit(event.GracePeriodCreatedEvent{
				TenantID:       conv.TenantID,
				ConversationID: conv.ID,
				OperatorID:     operatorID,
				ExpiresAt:      expiresAt,
			})
		}
	}

	s.logger.Info("Grace periods created",
		"operatorId", operatorID, "conversations", len(convs), "created", created, "expiresAt", expiresAt)
	return created, nil
}

// RemoveGracePeriods deletes every hold owned by the operator. Their
// conversations stay allocated.
func (s *GracePeriodService) RemoveGracePeriods(ctx context.Context, operatorID string) (int, error) {
	var holds []db.GracePeriodAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("operator_id = ?", operatorID).Find(&holds).Error; err != nil {
			return err
		}
		if len(holds) == 0 {
			return nil
		}
		return tx.Where("operator_id = ?", operatorID).Delete(&db.GracePeriodAssignment{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete grace periods: %w", err)
	}
	s.logger.Info("Grace periods removed", "operatorId", operatorID, "removed", len(holds))
	if len(holds) == 0 {
		return 0, nil
	}

	var tenantIDs []string
	if err := s.db.WithContext(ctx).Model(&db.Operator{}).
		Where("id = ?", operatorID).Pluck("tenant_id", &tenantIDs).Error; err != nil || len(tenantIDs) == 0 {
		s.logger.Warn("Operator tenant unknown, grace period cancellation not broadcast", "operatorId", operatorID, "error", err)
		return len(holds), nil
	}
	ids := make([]string, len(holds))
	for i, h := range holds {
		ids[i] = h.ConversationID
	}
	s.emitter.Emit(event.GracePeriodCancelledEvent{
		TenantID:        tenantIDs[0],
		OperatorID:      operatorID,
		ConversationIDs: ids,
	})
	return len(holds), nil
}

// ListForOperator returns the operator's holds, soonest expiry first.
func (s *GracePeriodService) ListForOperator(ctx context.Context, operatorID string) ([]db.GracePeriodAssignment, error) {
	var holds []db.GracePeriodAssignment
	err := s.db.WithContext(ctx).Where("operator_id = ?", operatorID).Order("expires_at ASC").Find(&holds).Error
	return holds, err
}

// ProcessExpiredGracePeriods returns every conversation whose hold expired to
// the queue. Each hold is handled in its own transaction; a failure is
// logged and the sweep moves on. It never fails, and returns the number of
// conversations reclaimed.
func (s *GracePeriodService) ProcessExpiredGracePeriods(ctx context.Context) int {
	var holds []db.GracePeriodAssignment
	if err := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Order("expires_at ASC").
		Find(&holds).Error; err != nil {
		s.logger.Error("Failed to list expired grace periods", "error", err)
		return 0
	}
	if len(holds) == 0 {
		return 0
	}

	reclaimed := 0
	for _, hold := range holds {
		if ctx.Err() != nil {
			break
		}
		conv, err := s.reclaim(ctx, hold)
		if err != nil {
			s.logger.Error("Failed to reclaim grace period",
				"graceId", hold.ID, "conversationId", hold.ConversationID, "error", err)
			continue
		}
		if conv == nil {
			continue
		}
		reclaimed++
		s.emitter.Emit(event.ConversationRequeuedEvent{
			TenantID:           conv.TenantID,
			ConversationID:     conv.ID,
			InboxID:            conv.InboxID,
			PreviousOperatorID: hold.OperatorID,
		})
	}

	s.logger.Info("Grace period sweep finished", "expired", len(holds), "reclaimed", reclaimed)
	return reclaimed
}

// reclaim requeues the held conversation if it is still allocated to the
// hold's operator. A stale hold is deleted and nil is returned.
func (s *GracePeriodService) reclaim(ctx context.Context, hold db.GracePeriodAssignment) (*db.Conversation, error) {
	var reclaimed *db.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := db.LockConversation(tx, hold.ConversationID, true)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Delete(&db.GracePeriodAssignment{}, "id = ?", hold.ID).Error
		}
		if err != nil {
			return err
		}

		if conv.AssignedTo(hold.OperatorID) {
			res := tx.Model(&db.Conversation{}).
				Where("id = ? AND state = ?", conv.ID, db.StateAllocated).
				Updates(map[string]any{"state": db.StateQueued, "assigned_operator_id": nil})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return NewConflictError("conversation %s changed during reclaim", conv.ID)
			}
			conv.State = db.StateQueued
			conv.AssignedOperatorID = nil
			reclaimed = conv
		}
		return tx.Delete(&db.GracePeriodAssignment{}, "id = ?", hold.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return reclaimed, nil
}
