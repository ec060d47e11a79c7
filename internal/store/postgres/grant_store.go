// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/grantscout/discovery/internal/grants"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// uniqueViolation is the Postgres error code raised by duplicate keys.
const uniqueViolation = "23505"

// dbPool is the subset of pgxpool.Pool the stores need. pgxmock
// implements it for tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool builds a pgx connection pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// GrantStore persists canonical grants in Postgres. Categorical slices
// and flags are stored as JSONB columns.
type GrantStore struct {
	pool  dbPool
	table string
}

// NewGrantStore constructs a GrantStore over an existing pool.
func NewGrantStore(pool dbPool, table string) (*GrantStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "grants"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &GrantStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *GrantStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const grantColumns = `
	id, title, description, source, source_url, application_url, contact,
	min_amount, max_amount, open_date, deadline,
	industry_focus, location_eligibility, eligible_org_types,
	funding_purposes, audience_tags, status, fingerprint, flags,
	created_at, updated_at`

// GetByFingerprint fetches the grant stored under a fingerprint.
func (s *GrantStore) GetByFingerprint(ctx context.Context, fp string) (grants.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE fingerprint = $1`, grantColumns, s.table)
	return s.scanGrant(s.pool.QueryRow(ctx, query, fp))
}

// GetByID fetches a grant by its ID.
func (s *GrantStore) GetByID(ctx context.Context, id string) (grants.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, grantColumns, s.table)
	return s.scanGrant(s.pool.QueryRow(ctx, query, id))
}

// Insert stores a new grant. A duplicate fingerprint surfaces as
// ErrConflict so the resolver can re-read and reconcile.
func (s *GrantStore) Insert(ctx context.Context, g grants.Grant) error {
	if g.ID == "" {
		return fmt.Errorf("grant id is required")
	}
	orgTypes, purposes, audience, flags, err := marshalSlices(g)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
)`, s.table, grantColumns)

	args := []any{
		g.ID, g.Title, g.Description, g.Source, g.SourceURL, g.ApplicationURL, g.Contact,
		decimalText(g.MinAmount), decimalText(g.MaxAmount), g.OpenDate, g.Deadline,
		string(g.IndustryFocus), string(g.LocationEligibility), orgTypes,
		purposes, audience, string(g.Status), g.Fingerprint, flags,
		g.CreatedAt, g.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return grants.ErrConflict
		}
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an existing grant.
func (s *GrantStore) Update(ctx context.Context, g grants.Grant) error {
	orgTypes, purposes, audience, flags, err := marshalSlices(g)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	title = $2, description = $3, source_url = $4, application_url = $5,
	contact = $6, min_amount = $7, max_amount = $8, open_date = $9,
	deadline = $10, industry_focus = $11, location_eligibility = $12,
	eligible_org_types = $13, funding_purposes = $14, audience_tags = $15,
	status = $16, flags = $17, updated_at = $18
WHERE id = $1`, s.table)

	args := []any{
		g.ID, g.Title, g.Description, g.SourceURL, g.ApplicationURL,
		g.Contact, decimalText(g.MinAmount), decimalText(g.MaxAmount), g.OpenDate,
		g.Deadline, string(g.IndustryFocus), string(g.LocationEligibility),
		orgTypes, purposes, audience,
		string(g.Status), flags, g.UpdatedAt,
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return grants.ErrNotFound
	}
	return nil
}

// List returns all stored grants ordered by ID.
func (s *GrantStore) List(ctx context.Context) ([]grants.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, grantColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []grants.Grant
	for rows.Next() {
		g, err := s.scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return out, nil
}

func (s *GrantStore) scanGrant(row pgx.Row) (grants.Grant, error) {
	var (
		g                 grants.Grant
		minText, maxText  *string
		industry, loc     string
		status            string
		orgTypesJSON      []byte
		purposesJSON      []byte
		audienceJSON      []byte
		flagsJSON         []byte
	)
	err := row.Scan(
		&g.ID, &g.Title, &g.Description, &g.Source, &g.SourceURL, &g.ApplicationURL, &g.Contact,
		&minText, &maxText, &g.OpenDate, &g.Deadline,
		&industry, &loc, &orgTypesJSON,
		&purposesJSON, &audienceJSON, &status, &g.Fingerprint, &flagsJSON,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return grants.Grant{}, grants.ErrNotFound
	}
	if err != nil {
		return grants.Grant{}, fmt.Errorf("scan grant: %w", err)
	}

	g.IndustryFocus = grants.Industry(industry)
	g.LocationEligibility = grants.Location(loc)
	g.Status = grants.GrantStatus(status)
	if g.MinAmount, err = parseDecimal(minText); err != nil {
		return grants.Grant{}, err
	}
	if g.MaxAmount, err = parseDecimal(maxText); err != nil {
		return grants.Grant{}, err
	}
	for _, pair := range []struct {
		data []byte
		dst  any
	}{
		{orgTypesJSON, &g.EligibleOrgTypes},
		{purposesJSON, &g.FundingPurposes},
		{audienceJSON, &g.AudienceTags},
		{flagsJSON, &g.Flags},
	} {
		if len(pair.data) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.data, pair.dst); err != nil {
			return grants.Grant{}, fmt.Errorf("decode grant column: %w", err)
		}
	}
	return g, nil
}

func marshalSlices(g grants.Grant) (orgTypes, purposes, audience, flags []byte, err error) {
	if orgTypes, err = json.Marshal(g.EligibleOrgTypes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode org types: %w", err)
	}
	if purposes, err = json.Marshal(g.FundingPurposes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode purposes: %w", err)
	}
	if audience, err = json.Marshal(g.AudienceTags); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode audience: %w", err)
	}
	if flags, err = json.Marshal(g.Flags); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode flags: %w", err)
	}
	return orgTypes, purposes, audience, flags, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &d, nil
}
