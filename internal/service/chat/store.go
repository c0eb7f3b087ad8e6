package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/magic-mirror/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDayNotFound     = errors.New("no interactions recorded for date")
)

// Store keeps the per-day interaction counters and transcripts in memory.
// Nothing is persisted; buckets live for the lifetime of the process.
type Store struct {
	mu   sync.RWMutex
	days map[string]*chat.DayBucket
}

// NewStore bootstraps an empty in-memory store.
func NewStore() *Store {
	return &Store{days: make(map[string]*chat.DayBucket)}
}

// bucket returns the day's bucket, creating it together with its session map.
// Callers must hold the write lock.
func (s *Store) bucket(day string) *chat.DayBucket {
	b, ok := s.days[day]
	if !ok {
		b = &chat.DayBucket{Sessions: make(map[string][]chat.Turn)}
		s.days[day] = b
	}
	return b
}

// Count returns the interaction counter of a day (zero if the day is unknown).
func (s *Store) Count(_ context.Context, day string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.days[day]; ok {
		return b.Count
	}
	return 0
}

// RecordUserTurn increments the day's counter and appends the user turn in a
// single step, returning the new counter value.
func (s *Store) RecordUserTurn(_ context.Context, day, sessionID, content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(day)
	b.Count++
	b.Sessions[sessionID] = append(b.Sessions[sessionID], chat.Turn{Role: chat.RoleUser, Content: content})
	return b.Count
}

// AppendTurn appends a turn to a session transcript without touching the counter.
func (s *Store) AppendTurn(_ context.Context, day, sessionID string, turn chat.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(day)
	b.Sessions[sessionID] = append(b.Sessions[sessionID], turn)
}

// Release gives back one interaction from the day's counter.
func (s *Store) Release(_ context.Context, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.days[day]; ok && b.Count > 0 {
		b.Count--
	}
}

// Transcript returns a copy of a session's turns.
func (s *Store) Transcript(_ context.Context, day, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.days[day]
	if !ok {
		return nil, ErrSessionNotFound
	}
	turns, ok := b.Sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]chat.Turn(nil), turns...), nil
}

// Day returns a copy of one day's bucket.
func (s *Store) Day(_ context.Context, day string) (chat.DayBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.days[day]
	if !ok {
		return chat.DayBucket{}, ErrDayNotFound
	}
	return copyBucket(b), nil
}

// All returns a copy of every recorded day.
func (s *Store) All(_ context.Context) map[string]chat.DayBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]chat.DayBucket, len(s.days))
	for day, b := range s.days {
		out[day] = copyBucket(b)
	}
	return out
}

func copyBucket(b *chat.DayBucket) chat.DayBucket {
	sessions := make(map[string][]chat.Turn, len(b.Sessions))
	for id, turns := range b.Sessions {
		sessions[id] = append([]chat.Turn(nil), turns...)
	}
	return chat.DayBucket{Count: b.Count, Sessions: sessions}
}
