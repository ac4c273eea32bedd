package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockConversation loads a conversation holding an exclusive row lock until
// tx ends. With noWait the lock attempt fails immediately when another
// transaction holds the row. Dialects without row locks (SQLite) drop the
// FOR UPDATE clause.
func LockConversation(tx *gorm.DB, id string, noWait bool) (*Conversation, error) {
	locking := clause.Locking{Strength: "UPDATE"}
	if noWait {
		locking.Options = "NOWAIT"
	}
	var conv Conversation
	if err := tx.Clauses(locking).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// LockOperatorStatus loads an operator's status row under an exclusive lock.
// Returns gorm.ErrRecordNotFound when the operator has never set a status.
func LockOperatorStatus(tx *gorm.DB, operatorID string) (*OperatorStatus, error) {
	var st OperatorStatus
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("operator_id = ?", operatorID).First(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// IsLockContention reports whether err means another transaction held or
// raced for the same rows: lock timeouts, NOWAIT failures, serialization
// failures and deadlocks.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", // lock_not_available
			"40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205, // lock wait timeout
			1213, // deadlock
			3572: // NOWAIT lock not available
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
