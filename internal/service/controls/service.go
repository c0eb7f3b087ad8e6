package controls

import (
	"context"
	"sync"

	"github.com/zhouzirui/magic-mirror/backend/internal/model/controls"
)

// Service owns the parental-control record. It is the only writer.
type Service struct {
	mu      sync.RWMutex
	current controls.Controls
}

// NewService validates and installs the initial controls.
func NewService(initial controls.Controls) (*Service, error) {
	initial = controls.Patch{BlockedWords: initial.BlockedWords}.Apply(initial)
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Service{current: initial}, nil
}

// Get returns a snapshot safe for the caller to keep.
func (s *Service) Get(_ context.Context) controls.Controls {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update applies a partial update. The record is left untouched when the
// result would be invalid.
func (s *Service) Update(_ context.Context, patch controls.Patch) (controls.Controls, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := patch.Apply(s.current)
	if err := next.Validate(); err != nil {
		return s.current.Clone(), err
	}

	s.current = next
	return next.Clone(), nil
}
