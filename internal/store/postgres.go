package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-cli/internal/db"
	"github.com/sells-group/provider-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Provider coordinates are
// also written to a PostGIS point column for spatial queries downstream.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const undefinedTable = "42P01"

// preparedStatements lists queries to prepare on each new connection for
// the single-row store operations.
var preparedStatements = map[string]string{
	"get_provider":    `SELECT record FROM providers WHERE source_state = $1 AND provider_url = $2`,
	"insert_run":      `INSERT INTO ingest_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
	"finish_run":      `UPDATE ingest_runs SET status = $1, stats = $2, error = $3, finished_at = $4 WHERE id = $5`,
	"get_run":         `SELECT id, source, status, stats, error, started_at, finished_at FROM ingest_runs WHERE id = $1`,
	"get_source_etag": `SELECT etag FROM source_downloads WHERE source = $1`,
	"set_source_etag": `INSERT INTO source_downloads (source, etag, fetched_at) VALUES ($1, $2, $3) ON CONFLICT (source) DO UPDATE SET etag = EXCLUDED.etag, fetched_at = EXCLUDED.fetched_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection. Before
	// the first Migrate the tables do not exist yet; skip preparation then.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
					return nil
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS providers (
	source_state  TEXT NOT NULL,
	provider_url  TEXT NOT NULL,
	provider_name TEXT NOT NULL DEFAULT '',
	provider_type TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	county        TEXT NOT NULL DEFAULT '',
	location      geometry(Point, 4326),
	record        JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_state, provider_url)
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       JSONB NOT NULL DEFAULT '{}',
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ingest_rejects (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES ingest_runs(id),
	source_state TEXT NOT NULL DEFAULT '',
	provider_url TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	reason       TEXT NOT NULL,
	payload      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_downloads (
	source     TEXT PRIMARY KEY,
	etag       TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_providers_state_status ON providers(source_state, status);
CREATE INDEX IF NOT EXISTS idx_providers_name ON providers(lower(provider_name));
CREATE INDEX IF NOT EXISTS idx_providers_location ON providers USING GIST (location);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_source ON ingest_runs(source, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_ingest_rejects_run_id ON ingest_rejects(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Providers ---

var providerUpsert = db.UpsertConfig{
	Table: "providers",
	Columns: []string{
		"source_state", "provider_url", "provider_name", "provider_type",
		"status", "county", "location", "record", "updated_at",
	},
	ConflictKeys: []string{"source_state", "provider_url"},
	UpdateWhere:  `providers.record IS DISTINCT FROM EXCLUDED.record`,
}

func (s *PostgresStore) UpsertProviders(ctx context.Context, recs []*model.ProviderRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		row, err := toProviderRow(rec)
		if err != nil {
			return 0, err
		}
		loc, err := encodeLocation(row.Lat, row.Lon)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			row.State, row.URL, row.Name, row.Type,
			row.Status, row.County, loc, row.Record, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, providerUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert providers")
	}
	return int(n), nil
}

func (s *PostgresStore) GetProvider(ctx context.Context, state, providerURL string) (*model.ProviderRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM providers WHERE source_state = $1 AND provider_url = $2`,
		model.NormalizeState(state), providerURL,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "provider %s %s", state, providerURL)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get provider")
	}
	return decodeRecord(data)
}

func (s *PostgresStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]*model.ProviderRecord, error) {
	query := `SELECT record FROM providers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.State != "" {
		query += fmt.Sprintf(` AND source_state = $%d`, argIdx)
		args = append(args, model.NormalizeState(filter.State))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(` AND lower(provider_name) LIKE $%d`, argIdx)
		args = append(args, likePattern(filter.Search))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY source_state, provider_name, provider_url LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list providers")
	}
	defer rows.Close()

	var out []*model.ProviderRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list providers iterate")
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, source, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, stats = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(runStatus(runErr)), statsJSON, runError(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT id, source, status, stats, error, started_at, finished_at FROM ingest_runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, stats, error, started_at, finished_at FROM ingest_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var statsJSON []byte
	if err := row.Scan(&r.ID, &r.Source, &r.Status, &statsJSON, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &r, nil
}

// --- Rejects ---

var rejectColumns = []string{"id", "run_id", "source_state", "provider_url", "kind", "reason", "payload", "created_at"}

func (s *PostgresStore) RecordRejects(ctx context.Context, rejects []model.Reject) error {
	if len(rejects) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(rejects))
	for i := range rejects {
		r := &rejects[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		var payload []byte
		if len(r.Payload) > 0 {
			payload = r.Payload
		}
		rows = append(rows, []any{r.ID, r.RunID, r.SourceState, r.ProviderURL, string(r.Kind), r.Reason, payload, r.CreatedAt})
	}

	_, err := db.CopyFrom(ctx, s.pool, "ingest_rejects", rejectColumns, rows)
	return eris.Wrap(err, "postgres: record rejects")
}

func (s *PostgresStore) ListRejects(ctx context.Context, filter RejectFilter) ([]model.Reject, error) {
	query := `SELECT id, run_id, source_state, provider_url, kind, reason, payload, created_at FROM ingest_rejects WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejects")
	}
	defer rows.Close()

	var out []model.Reject
	for rows.Next() {
		var r model.Reject
		var payload []byte
		if err := rows.Scan(&r.ID, &r.RunID, &r.SourceState, &r.ProviderURL, &r.Kind, &r.Reason, &payload, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reject")
		}
		if len(payload) > 0 {
			r.Payload = json.RawMessage(payload)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rejects iterate")
}

// --- Source download state ---

func (s *PostgresStore) GetSourceETag(ctx context.Context, source string) (string, error) {
	var etag string
	err := s.pool.QueryRow(ctx,
		`SELECT etag FROM source_downloads WHERE source = $1`, source,
	).Scan(&etag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: get source etag")
	}
	return etag, nil
}

func (s *PostgresStore) SetSourceETag(ctx context.Context, source, etag string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_downloads (source, etag, fetched_at) VALUES ($1, $2, $3)
		 ON CONFLICT (source) DO UPDATE SET etag = EXCLUDED.etag, fetched_at = EXCLUDED.fetched_at`,
		source, etag, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set source etag")
}
