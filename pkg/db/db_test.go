package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/config"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestRole_AtLeast(t *testing.T) {
	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleOperator, RoleOperator, true},
		{RoleOperator, RoleManager, false},
		{RoleOperator, RoleAdmin, false},
		{RoleManager, RoleOperator, true},
		{RoleManager, RoleManager, true},
		{RoleManager, RoleAdmin, false},
		{RoleAdmin, RoleManager, true},
		{RoleAdmin, RoleAdmin, true},
		{Role("GUEST"), RoleOperator, false},
		{Role(""), Role(""), false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.min); got != tt.want {
			t.Fatalf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestParseOperatorStatus(t *testing.T) {
	if v, ok := ParseOperatorStatus(" available "); !ok || v != StatusAvailable {
		t.Fatalf("ParseOperatorStatus(available) = %q, %v", v, ok)
	}
	if v, ok := ParseOperatorStatus("OFFLINE"); !ok || v != StatusOffline {
		t.Fatalf("ParseOperatorStatus(OFFLINE) = %q, %v", v, ok)
	}
	if _, ok := ParseOperatorStatus("BUSY"); ok {
		t.Fatalf("ParseOperatorStatus(BUSY) accepted")
	}
}

func TestAnalysisCache_FreshFor(t *testing.T) {
	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	complete := NewAnalysisCache(Analysis{UrgencyLevel: UrgencyHigh, SentimentScore: -0.5, ComplexityRating: ComplexitySimple}, last)

	tests := []struct {
		name  string
		cache AnalysisCache
		last  time.Time
		want  bool
	}{
		{"empty", AnalysisCache{}, last, false},
		{"analyzed at last message", complete, last, true},
		{"analyzed after last message", complete, last.Add(-time.Minute), true},
		{"new message since analysis", complete, last.Add(time.Second), false},
		{"invalid urgency", AnalysisCache{UrgencyLevel: "SEVERE", SentimentScore: complete.SentimentScore,
			ComplexityRating: ComplexitySimple, AnalyzedAt: complete.AnalyzedAt}, last, false},
		{"missing sentiment", AnalysisCache{UrgencyLevel: UrgencyLow, ComplexityRating: ComplexitySimple,
			AnalyzedAt: complete.AnalyzedAt}, last, false},
	}
	for _, tt := range tests {
		if got := tt.cache.FreshFor(tt.last); got != tt.want {
			t.Fatalf("%s: FreshFor() = %v, want %v", tt.name, got, tt.want)
		}
	}

	got := complete.Result()
	if got.UrgencyLevel != UrgencyHigh || got.SentimentScore != -0.5 || got.ComplexityRating != ComplexitySimple {
		t.Fatalf("Result() = %+v", got)
	}
}

func TestConversation_AssignedTo(t *testing.T) {
	op := "op-1"
	c := Conversation{State: StateAllocated, AssignedOperatorID: &op}
	if !c.AssignedTo("op-1") {
		t.Fatalf("AssignedTo(op-1) = false")
	}
	if c.AssignedTo("op-2") {
		t.Fatalf("AssignedTo(op-2) = true")
	}
	c.State = StateQueued
	if c.AssignedTo("op-1") {
		t.Fatalf("AssignedTo() on QUEUED = true")
	}
}

func TestIsLockContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"pg nowait", &pgconn.PgError{Code: "55P03"}, true},
		{"pg deadlock wrapped", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"not found", gorm.ErrRecordNotFound, false},
	}
	for _, tt := range tests {
		if got := IsLockContention(tt.err); got != tt.want {
			t.Fatalf("%s: IsLockContention() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("Open(oracle) error = nil")
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func TestMigrateAndLockConversation(t *testing.T) {
	gdb := openTestDB(t)

	for _, m := range Models() {
		if !gdb.Migrator().HasTable(m) {
			t.Fatalf("table for %T not created", m)
		}
	}

	conv := Conversation{
		ID:                     "c-1",
		TenantID:               "t-1",
		InboxID:                "i-1",
		ExternalConversationID: "ext-1",
		State:                  StateQueued,
		LastMessageAt:          time.Now().UTC(),
	}
	if err := gdb.Create(&conv).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	err := gdb.Transaction(func(tx *gorm.DB) error {
		got, err := LockConversation(tx, "c-1", true)
		if err != nil {
			return err
		}
		if got.State != StateQueued || got.ExternalConversationID != "ext-1" {
			t.Fatalf("LockConversation() = %+v", got)
		}
		_, err = LockConversation(tx, "missing", false)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Fatalf("LockConversation(missing) error = %v, want ErrRecordNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestLockOperatorStatus(t *testing.T) {
	gdb := openTestDB(t)

	if _, err := LockOperatorStatus(gdb, "op-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("LockOperatorStatus() error = %v, want ErrRecordNotFound", err)
	}
	st := OperatorStatus{OperatorID: "op-1", Status: StatusAvailable, LastStatusChangeAt: time.Now().UTC()}
	if err := gdb.Create(&st).Error; err != nil {
		t.Fatalf("create status: %v", err)
	}
	got, err := LockOperatorStatus(gdb, "op-1")
	if err != nil {
		t.Fatalf("LockOperatorStatus() error = %v", err)
	}
	if got.Status != StatusAvailable {
		t.Fatalf("LockOperatorStatus().Status = %s, want AVAILABLE", got.Status)
	}
}
