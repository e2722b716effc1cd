package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Store implements monitor.Store in memory.
type Store struct {
	mu      sync.RWMutex
	state   *monitor.MonitorState
	history []monitor.ConsensusResult
	alerts  []monitor.AlertEvent
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{}
}

// LoadLastState returns the saved state, or the zero state when none was saved.
func (s *Store) LoadLastState(_ context.Context) (monitor.MonitorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return monitor.MonitorState{}, nil
	}
	return s.state.Clone(), nil
}

// SaveState replaces the saved state.
func (s *Store) SaveState(_ context.Context, state monitor.MonitorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := state.Clone()
	s.state = &cp
	return nil
}

// AppendHistory records a cycle result.
func (s *Store) AppendHistory(_ context.Context, result monitor.ConsensusResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.Observations = stripRaw(result.Observations)
	s.history = append(s.history, result)
	return nil
}

// AppendAlert records a dispatched alert.
func (s *Store) AppendAlert(_ context.Context, event monitor.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, event)
	return nil
}

// RecentHistory returns up to limit results, newest first.
func (s *Store) RecentHistory(_ context.Context, limit int) ([]monitor.ConsensusResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.history, limit), nil
}

// RecentAlerts returns up to limit alert events, newest first.
func (s *Store) RecentAlerts(_ context.Context, limit int) ([]monitor.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.alerts, limit), nil
}

func newestFirst[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]T, 0, limit)
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out
}

// stripRaw drops page sources and screenshots, which only live for one cycle.
func stripRaw(in []monitor.Observation) []monitor.Observation {
	out := make([]monitor.Observation, len(in))
	for i, obs := range in {
		obs.Source = nil
		obs.Screenshot = nil
		out[i] = obs
	}
	return out
}
