package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/grantscout/discovery/internal/grants"
)

// RunStore persists collection run records in Postgres. Sources and
// per-source stats are stored as JSONB columns.
type RunStore struct {
	pool  dbPool
	table string
}

// NewRunStore constructs a RunStore over an existing pool.
func NewRunStore(pool dbPool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "collection_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// CreateRun inserts a new run record.
func (s *RunStore) CreateRun(ctx context.Context, run grants.CollectionRun) error {
	sources, stats, err := marshalRun(run)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, status, force_refresh, sources, started_at, finished_at, stats)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, s.table)
	args := []any{
		run.ID, string(run.Status), run.ForceRefresh, sources,
		run.Started, run.Finished, stats,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinalizeRun records the terminal state of a run.
func (s *RunStore) FinalizeRun(ctx context.Context, run grants.CollectionRun) error {
	_, stats, err := marshalRun(run)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, finished_at = $3, stats = $4 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, run.ID, string(run.Status), run.Finished, stats)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return grants.ErrNotFound
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (grants.CollectionRun, error) {
	query := fmt.Sprintf(`
SELECT id, status, force_refresh, sources, started_at, finished_at, stats
FROM %s WHERE id = $1`, s.table)

	var (
		run         grants.CollectionRun
		status      string
		sourcesJSON []byte
		statsJSON   []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID, &status, &run.ForceRefresh, &sourcesJSON,
		&run.Started, &run.Finished, &statsJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return grants.CollectionRun{}, grants.ErrNotFound
	}
	if err != nil {
		return grants.CollectionRun{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = grants.RunStatus(status)
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &run.Sources); err != nil {
			return grants.CollectionRun{}, fmt.Errorf("decode run sources: %w", err)
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
			return grants.CollectionRun{}, fmt.Errorf("decode run stats: %w", err)
		}
	}
	return run, nil
}

// LastRunBySource reports, per source, the finish time of the most
// recent finished run that collected it without skipping.
func (s *RunStore) LastRunBySource(ctx context.Context) (map[string]time.Time, error) {
	query := fmt.Sprintf(`
SELECT finished_at, stats FROM %s WHERE finished_at IS NOT NULL`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query finished runs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			finished  time.Time
			statsJSON []byte
		)
		if err := rows.Scan(&finished, &statsJSON); err != nil {
			return nil, fmt.Errorf("scan finished run: %w", err)
		}
		var stats map[string]grants.SourceStats
		if len(statsJSON) > 0 {
			if err := json.Unmarshal(statsJSON, &stats); err != nil {
				return nil, fmt.Errorf("decode run stats: %w", err)
			}
		}
		for source, st := range stats {
			if st.Status == grants.SourceStatusSkipped {
				continue
			}
			if last, ok := out[source]; !ok || finished.After(last) {
				out[source] = finished
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finished runs: %w", err)
	}
	return out, nil
}

func marshalRun(run grants.CollectionRun) (sources, stats []byte, err error) {
	if sources, err = json.Marshal(run.Sources); err != nil {
		return nil, nil, fmt.Errorf("encode run sources: %w", err)
	}
	if stats, err = json.Marshal(run.Stats); err != nil {
		return nil, nil, fmt.Errorf("encode run stats: %w", err)
	}
	return sources, stats, nil
}
