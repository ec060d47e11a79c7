package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grantscout/discovery/internal/grants"
)

// Resolver applies the insert-or-update decision for normalized grants.
// Writes for the same fingerprint are serialized through a keyed mutex;
// writes for distinct fingerprints proceed concurrently. The store's
// unique constraint on fingerprint is the backstop against races.
type Resolver struct {
	store  grants.GrantStore
	ids    grants.IDGenerator
	clock  grants.Clock
	logger *zap.Logger
	locks  keyedMutex
}

// NewResolver constructs a Resolver.
func NewResolver(
	store grants.GrantStore,
	ids grants.IDGenerator,
	clock grants.Clock,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		store:  store,
		ids:    ids,
		clock:  clock,
		logger: logger,
	}
}

// Resolve upserts one normalized grant and reports what happened.
// An unchanged grant performs no write at all.
func (r *Resolver) Resolve(ctx context.Context, candidate grants.Grant) (grants.UpsertOutcome, grants.Grant, error) {
	if candidate.Fingerprint == "" {
		return "", grants.Grant{}, fmt.Errorf("candidate has no fingerprint")
	}
	unlock := r.locks.lock(candidate.Fingerprint)
	defer unlock()

	existing, err := r.store.GetByFingerprint(ctx, candidate.Fingerprint)
	switch {
	case errors.Is(err, grants.ErrNotFound):
		return r.insert(ctx, candidate)
	case err != nil:
		return "", grants.Grant{}, fmt.Errorf("read by fingerprint: %w", err)
	}
	return r.reconcile(ctx, existing, candidate)
}

func (r *Resolver) insert(ctx context.Context, candidate grants.Grant) (grants.UpsertOutcome, grants.Grant, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", grants.Grant{}, fmt.Errorf("generate grant id: %w", err)
	}
	now := r.clock.Now()
	candidate.ID = id
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	err = r.store.Insert(ctx, candidate)
	if errors.Is(err, grants.ErrConflict) {
		// Another writer won the insert race; retry once with a fresh read.
		r.logger.Debug("insert conflict, re-reading",
			zap.String("fingerprint", candidate.Fingerprint),
		)
		existing, readErr := r.store.GetByFingerprint(ctx, candidate.Fingerprint)
		if readErr != nil {
			return "", grants.Grant{}, fmt.Errorf("re-read after conflict: %w", readErr)
		}
		candidate.ID = ""
		return r.reconcile(ctx, existing, candidate)
	}
	if err != nil {
		return "", grants.Grant{}, fmt.Errorf("insert grant: %w", err)
	}
	return grants.OutcomeAdded, candidate, nil
}

func (r *Resolver) reconcile(ctx context.Context, existing, candidate grants.Grant) (grants.UpsertOutcome, grants.Grant, error) {
	if !mutableFieldsDiffer(existing, candidate) {
		return grants.OutcomeUnchanged, existing, nil
	}
	merged := existing
	merged.Title = candidate.Title
	merged.Description = candidate.Description
	merged.SourceURL = candidate.SourceURL
	merged.ApplicationURL = candidate.ApplicationURL
	merged.Contact = candidate.Contact
	merged.MinAmount = candidate.MinAmount
	merged.MaxAmount = candidate.MaxAmount
	merged.OpenDate = candidate.OpenDate
	merged.Deadline = candidate.Deadline
	merged.IndustryFocus = candidate.IndustryFocus
	merged.LocationEligibility = candidate.LocationEligibility
	merged.EligibleOrgTypes = candidate.EligibleOrgTypes
	merged.FundingPurposes = candidate.FundingPurposes
	merged.AudienceTags = candidate.AudienceTags
	merged.Status = candidate.Status
	merged.Flags = candidate.Flags
	merged.UpdatedAt = r.clock.Now()

	if err := r.store.Update(ctx, merged); err != nil {
		return "", grants.Grant{}, fmt.Errorf("update grant: %w", err)
	}
	return grants.OutcomeUpdated, merged, nil
}

func mutableFieldsDiffer(a, b grants.Grant) bool {
	switch {
	case a.Title != b.Title,
		a.Description != b.Description,
		a.SourceURL != b.SourceURL,
		a.ApplicationURL != b.ApplicationURL,
		a.Contact != b.Contact,
		a.Status != b.Status,
		a.IndustryFocus != b.IndustryFocus,
		a.LocationEligibility != b.LocationEligibility:
		return true
	}
	if !decimalsEqual(a.MinAmount, b.MinAmount) || !decimalsEqual(a.MaxAmount, b.MaxAmount) {
		return true
	}
	if !timesEqual(a.OpenDate, b.OpenDate) || !timesEqual(a.Deadline, b.Deadline) {
		return true
	}
	if !orgTypesEqual(a.EligibleOrgTypes, b.EligibleOrgTypes) {
		return true
	}
	if !purposesEqual(a.FundingPurposes, b.FundingPurposes) {
		return true
	}
	if !stringsEqualUnordered(a.AudienceTags, b.AudienceTags) {
		return true
	}
	return false
}

func decimalsEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func orgTypesEqual(a, b []grants.OrgType) bool {
	as := make([]string, len(a))
	for i, v := range a {
		as[i] = string(v)
	}
	bs := make([]string, len(b))
	for i, v := range b {
		bs[i] = string(v)
	}
	return stringsEqualUnordered(as, bs)
}

func purposesEqual(a, b []grants.Purpose) bool {
	as := make([]string, len(a))
	for i, v := range a {
		as[i] = string(v)
	}
	bs := make([]string, len(b))
	for i, v := range b {
		bs[i] = string(v)
	}
	return stringsEqualUnordered(as, bs)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringsEqualUnordered(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	return stringsEqual(as, bs)
}

// keyedMutex serializes critical sections per key with refcounted
// entries so idle keys do not accumulate.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
