package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/vaultgate/internal/apperr"
)

type request struct {
	ClientID string
	State    string
}

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testStore(t *testing.T, opts ...Option) (*Store[request], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts = append([]Option{WithTTL(5 * time.Minute), WithClock(clock.Now)}, opts...)
	return New[request](opts...), clock
}

func TestConsume_OnlyOnce(t *testing.T) {
	s, _ := testStore(t)
	in := request{ClientID: "client", State: "xyz"}
	key, err := s.Create(in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Consume(key)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got != in {
		t.Errorf("Consume = %+v, want %+v", got, in)
	}
	if _, err := s.Consume(key); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("second Consume err = %v, want ErrSessionNotFound", err)
	}
}

func TestConsume_UnknownKey(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Consume("never-issued"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestConsume_ExpiredButPresent(t *testing.T) {
	s, clock := testStore(t)
	key, _ := s.Create(request{ClientID: "c"})

	clock.Advance(5*time.Minute + time.Second)
	if s.Len() != 1 {
		t.Fatalf("entry should still be stored before consume, Len = %d", s.Len())
	}
	if _, err := s.Consume(key); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	if s.Len() != 0 {
		t.Errorf("expired entry not deleted on consume, Len = %d", s.Len())
	}
}

func TestConsume_AtTTLBoundaryStillValid(t *testing.T) {
	s, clock := testStore(t)
	key, _ := s.Create(request{ClientID: "c"})
	clock.Advance(5 * time.Minute)
	if _, err := s.Consume(key); err != nil {
		t.Errorf("Consume at exactly TTL: %v", err)
	}
}

func TestCreate_CapacityExceeded(t *testing.T) {
	const maxSessions = 3
	s, clock := testStore(t, WithMaxEntries(maxSessions))

	for i := 0; i < maxSessions; i++ {
		if _, err := s.Create(request{}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := s.Create(request{}); !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	if s.Len() != maxSessions {
		t.Errorf("existing sessions were evicted, Len = %d", s.Len())
	}

	clock.Advance(6 * time.Minute)
	if _, err := s.Create(request{}); err != nil {
		t.Errorf("Create after expiry: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 after sweep", s.Len())
	}
}

func TestCleanup(t *testing.T) {
	s, clock := testStore(t)
	_, _ = s.Create(request{ClientID: "old"})
	clock.Advance(4 * time.Minute)
	fresh, _ := s.Create(request{ClientID: "fresh"})
	clock.Advance(2 * time.Minute)

	if n := s.Cleanup(); n != 1 {
		t.Errorf("Cleanup = %d, want 1", n)
	}
	if got, err := s.Consume(fresh); err != nil || got.ClientID != "fresh" {
		t.Errorf("fresh entry = %+v, %v", got, err)
	}
}

func TestCreate_KeysAreDistinctAndOpaque(t *testing.T) {
	s, _ := testStore(t)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		key, err := s.Create(request{})
		if err != nil {
			t.Fatal(err)
		}
		if len(key) < 43 {
			t.Fatalf("key %q too short", key)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = struct{}{}
	}
}

func TestCreate_ConcurrentRespectsCapacity(t *testing.T) {
	const maxSessions = 50
	s := New[request](WithMaxEntries(maxSessions))

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(request{}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != maxSessions || s.Len() != maxSessions {
		t.Errorf("created %d, Len %d, want %d", ok, s.Len(), maxSessions)
	}
}

func TestRun_SweepsUntilCancelled(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := New[request](WithTTL(time.Minute), WithClock(clock))
	_, _ = s.Create(request{})
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	if s.Len() != 0 {
		t.Errorf("Run did not sweep, Len = %d", s.Len())
	}
}
