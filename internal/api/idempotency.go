package api

import (
	"context"
	"sync"
	"time"

	"github.com/synheart/vitalsynth/internal/models"
)

// DefaultIdempotencyTTL is how long an Idempotency-Key is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

type idempotentEntry struct {
	result models.IngestResult
	at     time.Time
}

// IdempotencyStore remembers the result of each keyed ingest request.
// A key being processed is reserved until Finish or Abort, so concurrent
// requests with the same key wait for the first one instead of ingesting twice.
type IdempotencyStore struct {
	seen     map[string]idempotentEntry
	inflight map[string]chan struct{}
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		seen:     make(map[string]idempotentEntry),
		inflight: make(map[string]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Begin reserves key for the caller. When key already has a result it is returned
// with found set and nothing is reserved. When another request holds key, Begin
// waits for it to finish; if that request aborts, the reservation passes to the caller.
// A caller that gets found == false must call Finish or Abort.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (result models.IngestResult, found bool, err error) {
	for {
		s.mu.Lock()
		if result, ok := s.lookup(key); ok {
			s.mu.Unlock()
			return result, true, nil
		}
		wait, busy := s.inflight[key]
		if !busy {
			s.inflight[key] = make(chan struct{})
			s.mu.Unlock()
			return models.IngestResult{}, false, nil
		}
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return models.IngestResult{}, false, ctx.Err()
		}
	}
}

// Finish stores result for a key reserved by Begin and releases waiters.
func (s *IdempotencyStore) Finish(key string, result models.IngestResult) {
	s.Put(key, result)
	s.release(key)
}

// Abort drops the reservation on key without storing a result.
func (s *IdempotencyStore) Abort(key string) {
	s.release(key)
}

func (s *IdempotencyStore) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wait, ok := s.inflight[key]; ok {
		close(wait)
		delete(s.inflight, key)
	}
}

// Get returns the stored result for key, if it has not expired.
func (s *IdempotencyStore) Get(key string) (models.IngestResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key)
}

// lookup requires s.mu.
func (s *IdempotencyStore) lookup(key string) (models.IngestResult, bool) {
	entry, ok := s.seen[key]
	if !ok {
		return models.IngestResult{}, false
	}
	if s.ttl > 0 && s.now().Sub(entry.at) > s.ttl {
		delete(s.seen, key)
		return models.IngestResult{}, false
	}
	return entry.result, true
}

// Put records the result for key and prunes expired keys.
func (s *IdempotencyStore) Put(key string, result models.IngestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.ttl > 0 {
		for k, e := range s.seen {
			if now.Sub(e.at) > s.ttl {
				delete(s.seen, k)
			}
		}
	}
	s.seen[key] = idempotentEntry{result: result, at: now}
}

// Len returns the number of remembered keys.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
