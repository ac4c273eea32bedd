package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/config"
	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/event"
	"github.com/Abhijeet1005/zendly-assignment/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("db.Migrate() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func mustCreate(t *testing.T, gdb *gorm.DB, v any) {
	t.Helper()
	if err := gdb.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func seedInbox(t *testing.T, gdb *gorm.DB, id, tenantID string) {
	t.Helper()
	mustCreate(t, gdb, &db.Inbox{ID: id, TenantID: tenantID, DisplayName: id})
}

func seedOperator(t *testing.T, gdb *gorm.DB, id, tenantID string, role db.Role) {
	t.Helper()
	mustCreate(t, gdb, &db.Operator{ID: id, TenantID: tenantID, Name: id, Role: role})
}

func subscribe(t *testing.T, gdb *gorm.DB, operatorID, inboxID string) {
	t.Helper()
	mustCreate(t, gdb, &db.OperatorInboxSubscription{OperatorID: operatorID, InboxID: inboxID})
}

func setStatus(t *testing.T, gdb *gorm.DB, operatorID string, status db.OperatorStatusValue) {
	t.Helper()
	mustCreate(t, gdb, &db.OperatorStatus{OperatorID: operatorID, Status: status, LastStatusChangeAt: testNow})
}

// seedConversation inserts a queued conversation in tenant t1 unless the
// caller sets otherwise.
func seedConversation(t *testing.T, gdb *gorm.DB, conv db.Conversation) *db.Conversation {
	t.Helper()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.TenantID == "" {
		conv.TenantID = "t1"
	}
	if conv.ExternalConversationID == "" {
		conv.ExternalConversationID = "ext-" + conv.ID
	}
	if conv.State == "" {
		conv.State = db.StateQueued
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = testNow.Add(-10 * time.Minute)
	}
	mustCreate(t, gdb, &conv)
	return &conv
}

func reload(t *testing.T, gdb *gorm.DB, id string) *db.Conversation {
	t.Helper()
	var conv db.Conversation
	if err := gdb.Where("id = ?", id).First(&conv).Error; err != nil {
		t.Fatalf("reload conversation %s: %v", id, err)
	}
	return &conv
}

func countHolds(t *testing.T, gdb *gorm.DB, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := gdb.Model(&db.GracePeriodAssignment{})
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count holds: %v", err)
	}
	return n
}

// world is the tenant layout most lifecycle tests share:
//
//	t1: inbox-a, inbox-b; op1 (OPERATOR, inbox-a), op2 (OPERATOR, inbox-a),
//	    mgr (MANAGER, inbox-a), adm (ADMIN), op3 (OPERATOR, inbox-b)
//	t2: inbox-x; other (MANAGER, inbox-x)
func seedWorld(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	seedInbox(t, gdb, "inbox-a", "t1")
	seedInbox(t, gdb, "inbox-b", "t1")
	seedInbox(t, gdb, "inbox-x", "t2")

	seedOperator(t, gdb, "op1", "t1", db.RoleOperator)
	seedOperator(t, gdb, "op2", "t1", db.RoleOperator)
	seedOperator(t, gdb, "op3", "t1", db.RoleOperator)
	seedOperator(t, gdb, "mgr", "t1", db.RoleManager)
	seedOperator(t, gdb, "adm", "t1", db.RoleAdmin)
	seedOperator(t, gdb, "other", "t2", db.RoleManager)

	subscribe(t, gdb, "op1", "inbox-a")
	subscribe(t, gdb, "op2", "inbox-a")
	subscribe(t, gdb, "mgr", "inbox-a")
	subscribe(t, gdb, "op3", "inbox-b")
	subscribe(t, gdb, "other", "inbox-x")
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func newRecorder(e *event.Emitter) *recorder {
	r := &recorder{}
	e.OnAny(func(ev event.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return r
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventName()
	}
	return out
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	results  map[string]db.Analysis // by conversation id
	err      error
	calls    int
	messages map[string][]models.Message
}

func (f *fakeAnalyzer) Analyze(_ context.Context, conv *db.Conversation, messages []models.Message) (db.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.messages == nil {
		f.messages = map[string][]models.Message{}
	}
	f.messages[conv.ID] = messages
	if f.err != nil {
		return db.Analysis{}, f.err
	}
	a, ok := f.results[conv.ID]
	if !ok {
		return db.Analysis{UrgencyLevel: db.UrgencyLow, ComplexityRating: db.ComplexitySimple}, nil
	}
	return a, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOrchestrator struct {
	mu       sync.Mutex
	recent   []models.Message
	err      error
	notified []string
	history  *models.ConversationHistory
	contact  models.Contact
}

func (f *fakeOrchestrator) GetRecentMessages(context.Context, string, int) ([]models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recent, nil
}

func (f *fakeOrchestrator) NotifyResolution(_ context.Context, externalID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, externalID)
}

func (f *fakeOrchestrator) GetConversationHistory(context.Context, string, int, int) (*models.ConversationHistory, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func (f *fakeOrchestrator) GetContactInfo(context.Context, string) (models.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.contact, nil
}

func (f *fakeOrchestrator) notifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified...)
}
