package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provider-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS providers (
	source_state  TEXT NOT NULL,
	provider_url  TEXT NOT NULL,
	provider_name TEXT NOT NULL DEFAULT '',
	provider_type TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	county        TEXT NOT NULL DEFAULT '',
	latitude      REAL,
	longitude     REAL,
	record        TEXT NOT NULL,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source_state, provider_url)
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT NOT NULL DEFAULT '{}',
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS ingest_rejects (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES ingest_runs(id),
	source_state TEXT NOT NULL DEFAULT '',
	provider_url TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL,
	reason       TEXT NOT NULL,
	payload      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS source_downloads (
	source     TEXT PRIMARY KEY,
	etag       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_providers_state_status ON providers(source_state, status);
CREATE INDEX IF NOT EXISTS idx_providers_name ON providers(provider_name);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_source ON ingest_runs(source);
CREATE INDEX IF NOT EXISTS idx_ingest_rejects_run_id ON ingest_rejects(run_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Providers ---

const sqliteUpsertProvider = `
INSERT INTO providers (source_state, provider_url, provider_name, provider_type, status, county, latitude, longitude, record, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source_state, provider_url) DO UPDATE SET
	provider_name = excluded.provider_name,
	provider_type = excluded.provider_type,
	status        = excluded.status,
	county        = excluded.county,
	latitude      = excluded.latitude,
	longitude     = excluded.longitude,
	record        = excluded.record,
	updated_at    = excluded.updated_at
WHERE providers.record IS NOT excluded.record`

func (s *SQLiteStore) UpsertProviders(ctx context.Context, recs []*model.ProviderRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertProvider)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var changed int64
	for _, rec := range recs {
		row, err := toProviderRow(rec)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
			row.State, row.URL, row.Name, row.Type, row.Status, row.County,
			row.Lat, row.Lon, string(row.Record), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert provider %s", row.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		changed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return int(changed), nil
}

func (s *SQLiteStore) GetProvider(ctx context.Context, state, providerURL string) (*model.ProviderRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM providers WHERE source_state = ? AND provider_url = ?`,
		model.NormalizeState(state), providerURL,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "provider %s %s", state, providerURL)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get provider")
	}
	return decodeRecord([]byte(data))
}

func (s *SQLiteStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]*model.ProviderRecord, error) {
	query := `SELECT record FROM providers WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND source_state = ?`
		args = append(args, model.NormalizeState(filter.State))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		query += ` AND lower(provider_name) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(filter.Search))
	}
	query += ` ORDER BY source_state, provider_name, provider_url LIMIT ?`
	args = append(args, limitOf(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close() //nolint:errcheck

	var out []*model.ProviderRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider")
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list providers iterate")
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		id, source, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, stats = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(runStatus(runErr)), string(statsJSON), runError(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, source, status, stats, error, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM ingest_runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM ingest_runs WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limitOf(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Rejects ---

func (s *SQLiteStore) RecordRejects(ctx context.Context, rejects []model.Reject) error {
	if len(rejects) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin rejects")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ingest_rejects (id, run_id, source_state, provider_url, kind, reason, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare rejects")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range rejects {
		r := &rejects[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		var payload sql.NullString
		if len(r.Payload) > 0 {
			payload = sql.NullString{String: string(r.Payload), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.RunID, r.SourceState, r.ProviderURL, string(r.Kind), r.Reason, payload, r.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert reject for run %s", r.RunID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit rejects")
}

func (s *SQLiteStore) ListRejects(ctx context.Context, filter RejectFilter) ([]model.Reject, error) {
	query := `SELECT id, run_id, source_state, provider_url, kind, reason, payload, created_at FROM ingest_rejects WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limitOf(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejects")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Reject
	for rows.Next() {
		var r model.Reject
		var payload sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.SourceState, &r.ProviderURL, &r.Kind, &r.Reason, &payload, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reject")
		}
		if payload.Valid {
			r.Payload = json.RawMessage(payload.String)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rejects iterate")
}

// --- Source download state ---

func (s *SQLiteStore) GetSourceETag(ctx context.Context, source string) (string, error) {
	var etag string
	err := s.db.QueryRowContext(ctx,
		`SELECT etag FROM source_downloads WHERE source = ?`, source,
	).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return etag, eris.Wrap(err, "sqlite: get source etag")
}

func (s *SQLiteStore) SetSourceETag(ctx context.Context, source, etag string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_downloads (source, etag, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT (source) DO UPDATE SET etag = excluded.etag, fetched_at = excluded.fetched_at`,
		source, etag, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set source etag")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var statsJSON string
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Source, &r.Status, &statsJSON, &r.Error, &r.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
