package grants

import (
	"context"
	"errors"
	"time"
)

// Store sentinel errors shared by all implementations.
var (
	// ErrNotFound is returned when a grant or run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert races another writer on the
	// same fingerprint. The resolver retries once with a fresh read.
	ErrConflict = errors.New("fingerprint conflict")
)

// GrantStore persists canonical grants keyed by fingerprint.
type GrantStore interface {
	GetByFingerprint(ctx context.Context, fp string) (Grant, error)
	GetByID(ctx context.Context, id string) (Grant, error)
	Insert(ctx context.Context, grant Grant) error
	Update(ctx context.Context, grant Grant) error
	List(ctx context.Context) ([]Grant, error)
}

// RunStore persists collection run records.
type RunStore interface {
	CreateRun(ctx context.Context, run CollectionRun) error
	FinalizeRun(ctx context.Context, run CollectionRun) error
	GetRun(ctx context.Context, runID string) (CollectionRun, error)
	LastRunBySource(ctx context.Context) (map[string]time.Time, error)
}

// SnapshotStore archives raw fetched payloads and returns a URI.
type SnapshotStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// Publisher pushes collection events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher retrieves one URL, applying politeness and retry policy.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SourceAdapter extracts raw candidates from one external source.
type SourceAdapter interface {
	Name() string
	Produce(ctx context.Context) ([]RawCandidate, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and grant IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
