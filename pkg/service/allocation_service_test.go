package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/config"
	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/event"
	"gorm.io/gorm"
)

func newAllocationService(t *testing.T, gdb *gorm.DB, analyzer Analyzer) (*AllocationService, *recorder) {
	t.Helper()
	emitter := event.NewEmitter()
	rec := newRecorder(emitter)
	scorer := NewPriorityScorer(gdb, analyzer, nil, 10)
	s := NewAllocationService(gdb, scorer, config.AllocationConfig{CandidateLimit: 50, ScoringConcurrency: 4}, emitter)
	s.now = fixedClock
	return s, rec
}

func TestAllocateNext_PicksHighestPriority(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	setStatus(t, gdb, "op1", db.StatusAvailable)

	low := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a", LastMessageAt: testNow.Add(-50 * time.Minute)})
	high := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a", LastMessageAt: testNow.Add(-1 * time.Minute)})
	otherInbox := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-b"})

	analyzer := &fakeAnalyzer{results: map[string]db.Analysis{
		low.ID:        {UrgencyLevel: db.UrgencyLow, ComplexityRating: db.ComplexitySimple},
		high.ID:       {UrgencyLevel: db.UrgencyCritical, SentimentScore: -0.5, ComplexityRating: db.ComplexityComplex},
		otherInbox.ID: {UrgencyLevel: db.UrgencyCritical, SentimentScore: -1, ComplexityRating: db.ComplexityComplex},
	}}
	s, rec := newAllocationService(t, gdb, analyzer)

	got, err := s.AllocateNext(context.Background(), "op1", "t1")
	if err != nil {
		t.Fatalf("AllocateNext() error = %v", err)
	}
	if got == nil || got.ID != high.ID {
		t.Fatalf("AllocateNext() = %+v, want %s", got, high.ID)
	}
	if !got.AssignedTo("op1") {
		t.Fatalf("returned conversation not assigned to op1: %+v", got)
	}

	stored := reload(t, gdb, high.ID)
	if stored.State != db.StateAllocated || stored.AssignedOperatorID == nil || *stored.AssignedOperatorID != "op1" {
		t.Fatalf("stored = %+v, want ALLOCATED to op1", stored)
	}
	if s := reload(t, gdb, low.ID); s.State != db.StateQueued || s.AssignedOperatorID != nil {
		t.Fatalf("other candidate changed: %+v", s)
	}
	if s := reload(t, gdb, otherInbox.ID); s.State != db.StateQueued {
		t.Fatalf("conversation in unsubscribed inbox changed: %+v", s)
	}
	if names := rec.names(); len(names) != 1 || names[0] != event.ConversationAllocated {
		t.Fatalf("events = %v, want [%s]", names, event.ConversationAllocated)
	}
}

func TestAllocateNext_TieGoesToLongestWaiting(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	setStatus(t, gdb, "op1", db.StatusAvailable)

	same := db.Analysis{UrgencyLevel: db.UrgencyMedium, ComplexityRating: db.ComplexityMedium}
	newer := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a", LastMessageAt: testNow.Add(-2 * time.Minute)})
	older := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a", LastMessageAt: testNow.Add(-20 * time.Minute)})
	analyzer := &fakeAnalyzer{results: map[string]db.Analysis{newer.ID: same, older.ID: same}}
	s, _ := newAllocationService(t, gdb, analyzer)

	got, err := s.AllocateNext(context.Background(), "op1", "t1")
	if err != nil {
		t.Fatalf("AllocateNext() error = %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("AllocateNext() = %s, want the older conversation %s", got.ID, older.ID)
	}
}

func TestAllocateNext_FallbackFavoursOldest(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	setStatus(t, gdb, "op1", db.StatusAvailable)

	seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a", LastMessageAt: testNow.Add(-5 * time.Minute)})
	oldest := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a", LastMessageAt: testNow.Add(-40 * time.Minute)})
	s, _ := newAllocationService(t, gdb, nil)

	got, err := s.AllocateNext(context.Background(), "op1", "t1")
	if err != nil {
		t.Fatalf("AllocateNext() error = %v", err)
	}
	if got.ID != oldest.ID || got.PriorityScore != 40 {
		t.Fatalf("AllocateNext() = %s (score %v), want %s (score 40)", got.ID, got.PriorityScore, oldest.ID)
	}
}

func TestAllocateNext_Preconditions(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	seedOperator(t, gdb, "lonely", "t1", db.RoleOperator)
	setStatus(t, gdb, "lonely", db.StatusAvailable)
	setStatus(t, gdb, "op2", db.StatusOffline)
	seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a"})
	s, _ := newAllocationService(t, gdb, nil)
	ctx := context.Background()

	if _, err := s.AllocateNext(ctx, "op1", "t1"); !IsValidation(err) {
		t.Fatalf("AllocateNext() without status row error = %v, want ValidationError", err)
	}
	if _, err := s.AllocateNext(ctx, "op2", "t1"); !IsValidation(err) {
		t.Fatalf("AllocateNext() while OFFLINE error = %v, want ValidationError", err)
	}
	if _, err := s.AllocateNext(ctx, "op1", "t2"); !IsValidation(err) {
		t.Fatalf("AllocateNext() cross-tenant error = %v, want ValidationError", err)
	}
	if _, err := s.AllocateNext(ctx, "ghost", "t1"); !IsNotFound(err) {
		t.Fatalf("AllocateNext() unknown operator error = %v, want NotFoundError", err)
	}
	got, err := s.AllocateNext(ctx, "lonely", "t1")
	if err != nil || got != nil {
		t.Fatalf("AllocateNext() without subscriptions = %v, %v, want nil, nil", got, err)
	}
}

func TestAllocateNext_EmptyQueue(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	setStatus(t, gdb, "op1", db.StatusAvailable)
	seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a", State: db.StateResolved})
	s, rec := newAllocationService(t, gdb, nil)

	got, err := s.AllocateNext(context.Background(), "op1", "t1")
	if err != nil || got != nil {
		t.Fatalf("AllocateNext() = %v, %v, want nil, nil", got, err)
	}
	if len(rec.names()) != 0 {
		t.Fatalf("events = %v, want none", rec.names())
	}
}

func TestClaim(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	queued := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a"})
	inboxB := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-b"})
	foreign := seedConversation(t, gdb, db.Conversation{TenantID: "t2", InboxID: "inbox-x"})
	s, rec := newAllocationService(t, gdb, nil)
	ctx := context.Background()

	if _, err := s.Claim(ctx, inboxB.ID, "op1", "t1"); !IsUnauthorized(err) {
		t.Fatalf("Claim() unsubscribed error = %v, want UnauthorizedError", err)
	}
	if _, err := s.Claim(ctx, foreign.ID, "op1", "t1"); !IsValidation(err) {
		t.Fatalf("Claim() cross-tenant error = %v, want ValidationError", err)
	}
	if _, err := s.Claim(ctx, "missing", "op1", "t1"); !IsNotFound(err) {
		t.Fatalf("Claim() missing error = %v, want NotFoundError", err)
	}

	got, err := s.Claim(ctx, queued.ID, "op1", "t1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !got.AssignedTo("op1") {
		t.Fatalf("Claim() = %+v, want ALLOCATED to op1", got)
	}
	if _, err := s.Claim(ctx, queued.ID, "op2", "t1"); !IsConflict(err) {
		t.Fatalf("Claim() of allocated conversation error = %v, want ConflictError", err)
	}
	if s := reload(t, gdb, queued.ID); !s.AssignedTo("op1") {
		t.Fatalf("failed claim changed owner: %+v", s)
	}
	if names := rec.names(); len(names) != 1 || names[0] != event.ConversationClaimed {
		t.Fatalf("events = %v, want [%s]", names, event.ConversationClaimed)
	}
}

func TestClaim_ConcurrentExactlyOneWins(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	conv := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a"})
	s, _ := newAllocationService(t, gdb, nil)

	operators := []string{"op1", "op2", "mgr"}
	errs := make([]error, len(operators))
	var wg sync.WaitGroup
	for i, op := range operators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Claim(context.Background(), conv.ID, op, "t1")
		}()
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case IsConflict(err):
		default:
			t.Fatalf("Claim(%s) error = %v, want nil or ConflictError", operators[i], err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want 1 (errors %v)", wins, errs)
	}
	if stored := reload(t, gdb, conv.ID); stored.State != db.StateAllocated {
		t.Fatalf("state = %s, want ALLOCATED", stored.State)
	}
}

func TestAllocateNext_ConcurrentSingleCandidate(t *testing.T) {
	gdb := newTestDB(t)
	seedWorld(t, gdb)
	setStatus(t, gdb, "op1", db.StatusAvailable)
	setStatus(t, gdb, "op2", db.StatusAvailable)
	conv := seedConversation(t, gdb, db.Conversation{InboxID: "inbox-a"})
	s, _ := newAllocationService(t, gdb, nil)

	type result struct {
		conv *db.Conversation
		err  error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i, op := range []string{"op1", "op2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.AllocateNext(context.Background(), op, "t1")
			results[i] = result{c, err}
		}()
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		switch {
		case r.err == nil && r.conv != nil:
			wins++
		case r.err == nil && r.conv == nil, IsConflict(r.err):
		default:
			t.Fatalf("AllocateNext() error = %v", r.err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want 1", wins)
	}
	stored := reload(t, gdb, conv.ID)
	if stored.State != db.StateAllocated || stored.AssignedOperatorID == nil {
		t.Fatalf("stored = %+v, want ALLOCATED", stored)
	}
}
