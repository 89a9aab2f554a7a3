// Package store persists provider records, the ingest run log, rejected
// rows, and source download state. Records are keyed by
// (source_state, provider_url) and written with upsert semantics so a
// re-import replaces the previous version of each provider.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ProviderFilter specifies criteria for listing providers.
type ProviderFilter struct {
	State  string `json:"state,omitempty"`
	Status string `json:"status,omitempty"`
	Search string `json:"q,omitempty"` // case-insensitive substring of provider_name
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Source string          `json:"source,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RejectFilter specifies criteria for listing rejected rows.
type RejectFilter struct {
	RunID  string           `json:"run_id,omitempty"`
	Kind   model.RejectKind `json:"kind,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for normalized providers.
type Store interface {
	// Providers. UpsertProviders returns how many records were inserted or
	// changed; rewriting an identical record is a no-op.
	UpsertProviders(ctx context.Context, recs []*model.ProviderRecord) (int, error)
	GetProvider(ctx context.Context, state, providerURL string) (*model.ProviderRecord, error)
	ListProviders(ctx context.Context, filter ProviderFilter) ([]*model.ProviderRecord, error)

	// Runs
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Rejects
	RecordRejects(ctx context.Context, rejects []model.Reject) error
	ListRejects(ctx context.Context, filter RejectFilter) ([]model.Reject, error)

	// Source download state
	GetSourceETag(ctx context.Context, source string) (string, error)
	SetSourceETag(ctx context.Context, source, etag string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultLimit = 100

func limitOf(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

// providerRow is the column projection of a record shared by both backends.
type providerRow struct {
	State    string
	URL      string
	Name     string
	Type     string
	Status   string
	County   string
	Record   []byte
	Lat, Lon *float64
}

func toProviderRow(rec *model.ProviderRecord) (providerRow, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return providerRow{}, eris.Wrapf(err, "store: marshal record %s", rec.ProviderURL)
	}
	row := providerRow{
		State:  rec.SourceState,
		URL:    rec.ProviderURL,
		Name:   rec.ProviderName,
		Type:   rec.ProviderType,
		Status: rec.Status,
		County: rec.County,
		Record: data,
	}
	lat, errLat := strconv.ParseFloat(rec.Latitude, 64)
	lon, errLon := strconv.ParseFloat(rec.Longitude, 64)
	if errLat == nil && errLon == nil && validCoordinate(lat, lon) {
		row.Lat, row.Lon = &lat, &lon
	}
	return row, nil
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func decodeRecord(data []byte) (*model.ProviderRecord, error) {
	var rec model.ProviderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal record")
	}
	return &rec, nil
}

// runError flattens a run's fatal error for storage.
func runError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func runStatus(err error) model.RunStatus {
	if err != nil {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}

// likePattern escapes LIKE wildcards in a user search string.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}
