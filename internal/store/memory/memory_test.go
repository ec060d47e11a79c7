package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grantscout/discovery/internal/grants"
)

func TestGrantStoreInsertAndLookup(t *testing.T) {
	t.Parallel()

	store := NewGrantStore()
	ctx := context.Background()

	g := grants.Grant{ID: "g-1", Fingerprint: "fp-1", Title: "Solar for Schools"}
	require.NoError(t, store.Insert(ctx, g))

	byID, err := store.GetByID(ctx, "g-1")
	require.NoError(t, err)
	require.Equal(t, g, byID)

	byFP, err := store.GetByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	require.Equal(t, g, byFP)
}

func TestGrantStoreFingerprintConflict(t *testing.T) {
	t.Parallel()

	store := NewGrantStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, grants.Grant{ID: "g-1", Fingerprint: "fp-1"}))
	err := store.Insert(ctx, grants.Grant{ID: "g-2", Fingerprint: "fp-1"})
	require.ErrorIs(t, err, grants.ErrConflict)
}

func TestGrantStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewGrantStore()
	ctx := context.Background()

	_, err := store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, grants.ErrNotFound)

	_, err = store.GetByFingerprint(ctx, "missing")
	require.ErrorIs(t, err, grants.ErrNotFound)

	err = store.Update(ctx, grants.Grant{ID: "missing"})
	require.ErrorIs(t, err, grants.ErrNotFound)
}

func TestGrantStoreUpdate(t *testing.T) {
	t.Parallel()

	store := NewGrantStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, grants.Grant{ID: "g-1", Fingerprint: "fp-1", Title: "Old Title"}))
	require.NoError(t, store.Update(ctx, grants.Grant{ID: "g-1", Fingerprint: "fp-1", Title: "New Title"}))

	got, err := store.GetByID(ctx, "g-1")
	require.NoError(t, err)
	require.Equal(t, "New Title", got.Title)
}

func TestGrantStoreListOrdersByID(t *testing.T) {
	t.Parallel()

	store := NewGrantStore()
	ctx := context.Background()

	for _, id := range []string{"g-3", "g-1", "g-2"} {
		require.NoError(t, store.Insert(ctx, grants.Grant{ID: id, Fingerprint: "fp-" + id}))
	}

	got, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "g-1", got[0].ID)
	require.Equal(t, "g-2", got[1].ID)
	require.Equal(t, "g-3", got[2].ID)
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()

	run := grants.CollectionRun{
		ID:      "r-1",
		Status:  grants.RunStatusRunning,
		Sources: []string{"alpha"},
		Started: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateRun(ctx, run))
	require.ErrorIs(t, store.CreateRun(ctx, run), grants.ErrConflict)

	got, err := store.GetRun(ctx, "r-1")
	require.NoError(t, err)
	require.Equal(t, grants.RunStatusRunning, got.Status)

	finished := run.Started.Add(time.Minute)
	run.Status = grants.RunStatusCompleted
	run.Finished = &finished
	require.NoError(t, store.FinalizeRun(ctx, run))

	got, err = store.GetRun(ctx, "r-1")
	require.NoError(t, err)
	require.Equal(t, grants.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Finished)

	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, grants.ErrNotFound)
	require.ErrorIs(t, store.FinalizeRun(ctx, grants.CollectionRun{ID: "missing"}), grants.ErrNotFound)
}

func TestRunStoreLastRunBySource(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	early := base.Add(time.Hour)
	late := base.Add(3 * time.Hour)

	addRun := func(id string, finished time.Time, stats map[string]grants.SourceStats) {
		run := grants.CollectionRun{ID: id, Status: grants.RunStatusCompleted, Started: base, Stats: stats}
		require.NoError(t, store.CreateRun(ctx, run))
		run.Finished = &finished
		require.NoError(t, store.FinalizeRun(ctx, run))
	}

	addRun("r-1", early, map[string]grants.SourceStats{
		"alpha": {Status: grants.SourceStatusSucceeded},
		"beta":  {Status: grants.SourceStatusSucceeded},
	})
	addRun("r-2", late, map[string]grants.SourceStats{
		"alpha": {Status: grants.SourceStatusSucceeded},
		"beta":  {Status: grants.SourceStatusSkipped},
	})

	// A still-running record never counts.
	require.NoError(t, store.CreateRun(ctx, grants.CollectionRun{
		ID:      "r-3",
		Status:  grants.RunStatusRunning,
		Started: late,
		Stats:   map[string]grants.SourceStats{"alpha": {Status: grants.SourceStatusSucceeded}},
	}))

	got, err := store.LastRunBySource(ctx)
	require.NoError(t, err)
	require.Equal(t, late, got["alpha"], "latest finish wins")
	require.Equal(t, early, got["beta"], "skipped collections do not refresh the window")
}

func TestSnapshotStorePut(t *testing.T) {
	t.Parallel()

	store := NewSnapshotStore()
	ctx := context.Background()

	uri, err := store.Put(ctx, "alpha/2026/03/page.html", "text/html", []byte("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "memory://alpha/2026/03/page.html", uri)

	data, ok := store.Get("alpha/2026/03/page.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html/>"), data)
	require.Equal(t, 1, store.Len())
}
