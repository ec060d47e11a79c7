// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/grantscout/discovery/internal/grants"
)

// GrantStore keeps canonical grants in maps guarded by an RWMutex. The
// fingerprint index enforces the same uniqueness a relational unique
// constraint would.
type GrantStore struct {
	mu            sync.RWMutex
	byID          map[string]grants.Grant
	byFingerprint map[string]string // fingerprint -> grant ID
}

// NewGrantStore constructs an empty GrantStore.
func NewGrantStore() *GrantStore {
	return &GrantStore{
		byID:          make(map[string]grants.Grant),
		byFingerprint: make(map[string]string),
	}
}

// GetByFingerprint fetches the grant stored under a fingerprint.
func (s *GrantStore) GetByFingerprint(_ context.Context, fp string) (grants.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFingerprint[fp]
	if !ok {
		return grants.Grant{}, grants.ErrNotFound
	}
	return s.byID[id], nil
}

// GetByID fetches a grant by its ID.
func (s *GrantStore) GetByID(_ context.Context, id string) (grants.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.byID[id]
	if !ok {
		return grants.Grant{}, grants.ErrNotFound
	}
	return grant, nil
}

// Insert stores a new grant. A fingerprint collision returns
// ErrConflict so the caller can re-read and reconcile.
func (s *GrantStore) Insert(_ context.Context, grant grants.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byFingerprint[grant.Fingerprint]; exists {
		return grants.ErrConflict
	}
	s.byID[grant.ID] = grant
	s.byFingerprint[grant.Fingerprint] = grant.ID
	return nil
}

// Update replaces an existing grant.
func (s *GrantStore) Update(_ context.Context, grant grants.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[grant.ID]; !ok {
		return grants.ErrNotFound
	}
	s.byID[grant.ID] = grant
	s.byFingerprint[grant.Fingerprint] = grant.ID
	return nil
}

// List returns all stored grants ordered by ID for determinism.
func (s *GrantStore) List(_ context.Context) ([]grants.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]grants.Grant, 0, len(s.byID))
	for _, grant := range s.byID {
		out = append(out, grant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
