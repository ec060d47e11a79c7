package memory

import (
	"context"
	"sync"
	"time"

	"github.com/grantscout/discovery/internal/grants"
)

// RunStore keeps collection run records in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]grants.CollectionRun
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]grants.CollectionRun),
	}
}

// CreateRun stores a new run record.
func (s *RunStore) CreateRun(_ context.Context, run grants.CollectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return grants.ErrConflict
	}
	s.runs[run.ID] = run
	return nil
}

// FinalizeRun replaces the record with its terminal state.
func (s *RunStore) FinalizeRun(_ context.Context, run grants.CollectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return grants.ErrNotFound
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (grants.CollectionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return grants.CollectionRun{}, grants.ErrNotFound
	}
	return run, nil
}

// LastRunBySource reports, per source, the finish time of the most
// recent finished run that collected it without skipping.
func (s *RunStore) LastRunBySource(_ context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time)
	for _, run := range s.runs {
		if run.Finished == nil {
			continue
		}
		for source, stats := range run.Stats {
			if stats.Status == grants.SourceStatusSkipped {
				continue
			}
			if last, ok := out[source]; !ok || run.Finished.After(last) {
				out[source] = *run.Finished
			}
		}
	}
	return out, nil
}
