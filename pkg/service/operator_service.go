// Operator lookup, availability and inbox subscriptions
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
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OperatorService owns operator status and the tenant/role/subscription
// checks shared by the allocation and lifecycle services.
type OperatorService struct {
	db      *gorm.DB
	grace   *GracePeriodService
	emitter *event.Emitter
	now     func() time.Time
	logger  *slog.Logger
}

// NewOperatorService creates the service. grace receives the
// AVAILABLE<->OFFLINE side effects.
func NewOperatorService(database *gorm.DB, grace *GracePeriodService, emitter *event.Emitter) *OperatorService {
	if emitter == nil {
		emitter = event.Global()
	}
	return &OperatorService{
		db:      database,
		grace:   grace,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  utils.GetLogger(),
	}
}

// GetOperator loads an operator and checks it belongs to tenantID.
func (s *OperatorService) GetOperator(ctx context.Context, operatorID, tenantID string) (*db.Operator, error) {
	return loadOperator(s.db.WithContext(ctx), operatorID, tenantID)
}

func loadOperator(tx *gorm.DB, operatorID, tenantID string) (*db.Operator, error) {
	if operatorID == "" {
		return nil, NewValidationError("operator id is required")
	}
	var op db.Operator
	if err := tx.Where("id = ?", operatorID).First(&op).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("operator", operatorID)
		}
		return nil, fmt.Errorf("load operator: %w", err)
	}
	if op.TenantID != tenantID {
		return nil, NewValidationError("operator %s does not belong to this tenant", operatorID)
	}
	return &op, nil
}

// RequireRole fails with UnauthorizedError unless op holds at least min.
func RequireRole(op *db.Operator, min db.Role, action string) error {
	if !op.Role.AtLeast(min) {
		return NewUnauthorizedError("%s requires %s role or higher", action, min)
	}
	return nil
}

func isSubscribed(tx *gorm.DB, operatorID, inboxID string) (bool, error) {
	var n int64
	err := tx.Model(&db.OperatorInboxSubscription{}).
		Where("operator_id = ? AND inbox_id = ?", operatorID, inboxID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return n > 0, nil
}

func subscribedInboxIDs(tx *gorm.DB, operatorID, tenantID string) ([]string, error) {
	var ids []string
	err := tx.Model(&db.OperatorInboxSubscription{}).
		Joins("JOIN inboxes ON inboxes.id = operator_inbox_subscriptions.inbox_id").
		Where("operator_inbox_subscriptions.operator_id = ? AND inboxes.tenant_id = ?", operatorID, tenantID).
		Pluck("operator_inbox_subscriptions.inbox_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list subscribed inboxes: %w", err)
	}
	return ids, nil
}

// GetSubscribedInboxes lists the inboxes the operator works.
func (s *OperatorService) GetSubscribedInboxes(ctx context.Context, operatorID, tenantID string) ([]db.Inbox, error) {
	if _, err := s.GetOperator(ctx, operatorID, tenantID); err != nil {
		return nil, err
	}
	var inboxes []db.Inbox
	err := s.db.WithContext(ctx).
		Joins("JOIN operator_inbox_subscriptions ON operator_inbox_subscriptions.inbox_id = inboxes.id").
		Where("operator_inbox_subscriptions.operator_id = ? AND inboxes.tenant_id = ?", operatorID, tenantID).
		Order("inboxes.display_name ASC").
		Find(&inboxes).Error
	if err != nil {
		return nil, fmt.Errorf("list subscribed inboxes: %w", err)
	}
	return inboxes, nil
}

// GetGracePeriods lists the holds an operator currently owns. Operators see
// their own; MANAGER or above may look at anyone in the tenant.
func (s *OperatorService) GetGracePeriods(ctx context.Context, actorID, operatorID, tenantID string) ([]db.GracePeriodAssignment, error) {
	if _, err := s.GetOperator(ctx, operatorID, tenantID); err != nil {
		return nil, err
	}
	if actorID != operatorID {
		actor, err := s.GetOperator(ctx, actorID, tenantID)
		if err != nil {
			return nil, err
		}
		if err := RequireRole(actor, db.RoleManager, "viewing another operator's grace periods"); err != nil {
			return nil, err
		}
	}
	holds, err := s.grace.ListForOperator(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("list grace periods: %w", err)
	}
	return holds, nil
}

// GetStatus returns the operator's status. Operators that never reported
// one are OFFLINE.
func (s *OperatorService) GetStatus(ctx context.Context, operatorID, tenantID string) (*db.OperatorStatus, error) {
	if _, err := s.GetOperator(ctx, operatorID, tenantID); err != nil {
		return nil, err
	}
	return currentStatus(s.db.WithContext(ctx), operatorID)
}

func currentStatus(tx *gorm.DB, operatorID string) (*db.OperatorStatus, error) {
	var st db.OperatorStatus
	err := tx.Where("operator_id = ?", operatorID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &db.OperatorStatus{OperatorID: operatorID, Status: db.StatusOffline}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load operator status: %w", err)
	}
	return &st, nil
}

// UpdateStatus sets an operator's availability. actorID may change its own
// status; changing another operator's needs MANAGER or above. Going
// AVAILABLE->OFFLINE creates grace periods for the operator's conversations;
// OFFLINE->AVAILABLE cancels them.
func (s *OperatorService) UpdateStatus(ctx context.Context, actorID, operatorID, tenantID, status string) (*db.OperatorStatus, error) {
	next, ok := db.ParseOperatorStatus(status)
	if !ok {
		return nil, NewValidationError("invalid status %q, expected AVAILABLE or OFFLINE", status)
	}
	op, err := s.GetOperator(ctx, operatorID, tenantID)
	if err != nil {
		return nil, err
	}
	if actorID != "" && actorID != operatorID {
		actor, err := s.GetOperator(ctx, actorID, tenantID)
		if err != nil {
			return nil, err
		}
		if err := RequireRole(actor, db.RoleManager, "changing another operator's status"); err != nil {
			return nil, err
		}
	}

	prev := db.StatusOffline
	var updated db.OperatorStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := db.LockOperatorStatus(tx, operatorID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			prev = current.Status
			if current.Status == next {
				updated = *current
				return nil
			}
		}

		updated = db.OperatorStatus{OperatorID: operatorID, Status: next, LastStatusChangeAt: s.now()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "operator_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_status_change_at"}),
		}).Create(&updated).Error
	})
	if err != nil {
		if db.IsLockContention(err) {
			return nil, &ConflictError{Message: "operator status is being changed concurrently", Err: err}
		}
		return nil, fmt.Errorf("update operator status: %w", err)
	}

	if prev == next {
		return &updated, nil
	}

	ev := event.OperatorStatusChangedEvent{
		TenantID:   op.TenantID,
		OperatorID: operatorID,
		From:       string(prev),
		To:         string(next),
	}
	switch {
	case prev == db.StatusAvailable && next == db.StatusOffline:
		n, err := s.grace.CreateGracePeriods(ctx, operatorID)
		if err != nil {
			s.logger.Error("Failed to create grace periods", "operatorId", operatorID, "error", err)
		}
		ev.HoldsCreated = n
	case prev == db.StatusOffline && next == db.StatusAvailable:
		n, err := s.grace.RemoveGracePeriods(ctx, operatorID)
		if err != nil {
			s.logger.Error("Failed to remove grace periods", "operatorId", operatorID, "error", err)
		}
		ev.HoldsCancelled = n
	}

	s.logger.Info("Operator status changed", "operatorId", operatorID, "from", prev, "to", next)
	s.emitter.Emit(ev)
	return &updated, nil
}
