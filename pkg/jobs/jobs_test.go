package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
)

type fakeSweeper struct {
	calls atomic.Int32
	n     int
}

func (f *fakeSweeper) ProcessExpiredGracePeriods(context.Context) int {
	f.calls.Add(1)
	return f.n
}

type fakeLease struct {
	ok  bool
	err error
}

func (f fakeLease) Acquire(context.Context) (bool, error) { return f.ok, f.err }

func TestRunOnce(t *testing.T) {
	tests := []struct {
		name      string
		lease     Lease
		wantRan   bool
		wantCalls int32
	}{
		{name: "no lease", lease: nil, wantRan: true, wantCalls: 1},
		{name: "lease acquired", lease: fakeLease{ok: true}, wantRan: true, wantCalls: 1},
		{name: "lease held elsewhere", lease: fakeLease{ok: false}, wantRan: false, wantCalls: 0},
		{name: "lease backend down", lease: fakeLease{err: errors.New("connection refused")}, wantRan: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := &fakeSweeper{n: 3}
			s := NewTickerScheduler(sw, tt.lease, time.Minute)
			n, ran := s.RunOnce(context.Background())
			if ran != tt.wantRan {
				t.Fatalf("RunOnce() ran = %v, want %v", ran, tt.wantRan)
			}
			if ran && n != 3 {
				t.Fatalf("RunOnce() = %d, want 3", n)
			}
			if got := sw.calls.Load(); got != tt.wantCalls {
				t.Fatalf("sweeper calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestTickerScheduler_StartStop(t *testing.T) {
	sw := &fakeSweeper{}
	s := NewTickerScheduler(sw, nil, 10*time.Millisecond)
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for sw.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop()

	if sw.calls.Load() == 0 {
		t.Fatalf("sweeper was never called")
	}
	after := sw.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := sw.calls.Load(); got != after {
		t.Fatalf("sweeper called after Stop: %d -> %d", after, got)
	}
}

func TestRedisLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	a := NewRedisLease(client, "", 30*time.Second)
	b := NewRedisLease(client, "", 30*time.Second)

	ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("a.Acquire() = %v, %v, want true, nil", ok, err)
	}
	ok, err = b.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("b.Acquire() = %v, %v, want false, nil", ok, err)
	}
	if ttl := mr.TTL(DefaultLeaseKey); ttl != 30*time.Second {
		t.Fatalf("lease TTL = %s, want 30s", ttl)
	}

	mr.FastForward(31 * time.Second)
	ok, err = b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("b.Acquire() after expiry = %v, %v, want true, nil", ok, err)
	}
}

func TestDialRedisLease(t *testing.T) {
	mr := miniredis.RunT(t)
	lease, err := DialRedisLease(context.Background(), "redis://"+mr.Addr(), time.Second)
	if err != nil {
		t.Fatalf("DialRedisLease() error = %v", err)
	}
	defer lease.Close()

	if _, err := DialRedisLease(context.Background(), "not a url", time.Second); err == nil {
		t.Fatalf("DialRedisLease() with bad url error = nil")
	}
}

func TestHandleSweepTask(t *testing.T) {
	sw := &fakeSweeper{n: 2}
	s := &AsynqScheduler{sweeper: sw, logger: utils.GetLogger()}

	if err := s.HandleSweepTask(context.Background(), asynq.NewTask(TypeGracePeriodSweep, nil)); err != nil {
		t.Fatalf("HandleSweepTask() error = %v", err)
	}
	if got := sw.calls.Load(); got != 1 {
		t.Fatalf("sweeper calls = %d, want 1", got)
	}
}

func TestNewAsynqScheduler_BadURL(t *testing.T) {
	if _, err := NewAsynqScheduler("ftp://nowhere", &fakeSweeper{}, time.Minute); err == nil {
		t.Fatalf("NewAsynqScheduler() error = nil, want error")
	}
}
