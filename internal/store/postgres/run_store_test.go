package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/grantscout/discovery/internal/grants"
)

func TestRunStoreCreateRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "collection_runs")
	require.NoError(t, err)

	run := grants.CollectionRun{
		ID:      "r-1",
		Status:  grants.RunStatusRunning,
		Sources: []string{"alpha"},
		Started: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO collection_runs").
		WithArgs(
			run.ID, string(run.Status), run.ForceRefresh, []byte(`["alpha"]`),
			run.Started, pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreFinalizeMissingRunIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "collection_runs")
	require.NoError(t, err)

	run := grants.CollectionRun{ID: "missing", Status: grants.RunStatusCompleted}
	mock.ExpectExec("UPDATE collection_runs SET").
		WithArgs(run.ID, string(run.Status), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.FinalizeRun(context.Background(), run)
	require.ErrorIs(t, err, grants.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunScansRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "collection_runs")
	require.NoError(t, err)

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	rows := pgxmock.NewRows([]string{
		"id", "status", "force_refresh", "sources", "started_at", "finished_at", "stats",
	}).AddRow(
		"r-1", string(grants.RunStatusCompleted), true, []byte(`["alpha"]`),
		started, &finished, []byte(`{"alpha":{"status":"succeeded","found":3,"added":2}}`),
	)

	mock.ExpectQuery("SELECT (.+) FROM collection_runs WHERE id").
		WithArgs("r-1").
		WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "r-1")
	require.NoError(t, err)
	require.Equal(t, "r-1", run.ID)
	require.Equal(t, grants.RunStatusCompleted, run.Status)
	require.True(t, run.ForceRefresh)
	require.Equal(t, []string{"alpha"}, run.Sources)
	require.NotNil(t, run.Finished)
	require.Equal(t, 3, run.Stats["alpha"].Found)
	require.Equal(t, 2, run.Stats["alpha"].Added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "collection_runs")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM collection_runs WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, grants.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreLastRunBySourceAggregates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "collection_runs")
	require.NoError(t, err)

	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)
	rows := pgxmock.NewRows([]string{"finished_at", "stats"}).
		AddRow(early, []byte(`{"alpha":{"status":"succeeded"},"beta":{"status":"succeeded"}}`)).
		AddRow(late, []byte(`{"alpha":{"status":"succeeded"},"beta":{"status":"skipped"}}`))

	mock.ExpectQuery("SELECT finished_at, stats FROM collection_runs").
		WillReturnRows(rows)

	got, err := store.LastRunBySource(context.Background())
	require.NoError(t, err)
	require.Equal(t, late, got["alpha"])
	require.Equal(t, early, got["beta"], "skipped collections do not refresh the window")
	require.NoError(t, mock.ExpectationsWereMet())
}
