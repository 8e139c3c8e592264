// Package session implements a time-bounded, one-time-use correlation store.
//
// It bridges two independently timed HTTP legs (an outbound authorize
// request and its inbound callback) without persistent storage.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/starford/vaultgate/internal/apperr"
)

const (
	defaultTTL        = 10 * time.Minute
	defaultMaxEntries = 1000
	keyBytes          = 32
)

type entry[T any] struct {
	value     T
	createdAt time.Time
}

// Store holds values of type T under random keys until they are consumed or
// expire. It is safe for concurrent use.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]
	ttl     time.Duration
	max     int
	now     func() time.Time
}

// Option configures a Store.
type Option func(*options)

type options struct {
	ttl time.Duration
	max int
	now func() time.Time
}

// WithTTL sets how long an entry stays valid after creation.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithMaxEntries caps the number of unexpired entries.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.max = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an empty Store.
func New[T any](opts ...Option) *Store[T] {
	o := options{ttl: defaultTTL, max: defaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		entries: make(map[string]entry[T]),
		ttl:     o.ttl,
		max:     o.max,
		now:     o.now,
	}
}

// TTL returns the validity window.
func (s *Store[T]) TTL() time.Duration {
	return s.ttl
}

// Create stores v and returns its key. Expired entries are swept first; if
// the store is still full, apperr.ErrCapacityExceeded is returned and
// nothing is evicted.
func (s *Store[T]) Create(v T) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupLocked(now)
	if len(s.entries) >= s.max {
		return "", apperr.ErrCapacityExceeded
	}

	for {
		key, err := newKey()
		if err != nil {
			return "", err
		}
		if _, taken := s.entries[key]; taken {
			continue
		}
		s.entries[key] = entry[T]{value: v, createdAt: now}
		return key, nil
	}
}

// Consume removes the entry for key and returns its value. The entry is
// deleted before its age is checked, so a key never works twice. Absent,
// consumed, and expired keys all yield apperr.ErrSessionNotFound.
func (s *Store[T]) Consume(key string) (T, error) {
	var zero T

	s.mu.Lock()
	e, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	if !ok {
		return zero, apperr.ErrSessionNotFound
	}
	if s.now().Sub(e.createdAt) > s.ttl {
		return zero, apperr.ErrSessionNotFound
	}
	return e.value, nil
}

// Cleanup removes expired entries and reports how many were dropped.
func (s *Store[T]) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(s.now())
}

// Len returns the number of stored entries, expired ones included.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run sweeps expired entries every interval until ctx is done.
func (s *Store[T]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

func (s *Store[T]) cleanupLocked(now time.Time) int {
	n := 0
	for k, e := range s.entries {
		if now.Sub(e.createdAt) > s.ttl {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

func newKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
