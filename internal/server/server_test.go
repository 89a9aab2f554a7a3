package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv := New(nil, newTestStore(t), Options{})
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_StoreDown(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "down.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	srv := New(nil, st, Options{})
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNormalize(t *testing.T) {
	srv := New(nil, nil, Options{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name:       "built",
			body:       `{"source_state":"tx","provider_url":"https://example.gov/op/1","fields":{"provider_name":"  Sunshine  Learning ","capacity":"1,200","tx_operation_id":"1"}}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				resp := decode[normalizeResponse](t, rec)
				assert.Equal(t, "TX", resp.Record["source_state"])
				assert.Equal(t, "Sunshine Learning", resp.Record["provider_name"])
				assert.Equal(t, "1200", resp.Record["capacity"])
				assert.Equal(t, "1", resp.Record["tx_operation_id"])
				assert.Equal(t, "", resp.Record["email"])
				assert.NotNil(t, resp.Warnings)
			},
		},
		{
			name:       "unknown field",
			body:       `{"source_state":"TX","provider_url":"https://example.gov/op/2","fields":{"provider_name":"A","favorite_color":"blue"}}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				resp := decode[errorResponse](t, rec)
				assert.Equal(t, "schema", resp.Error)
				require.Len(t, resp.Issues, 1)
				assert.Equal(t, "favorite_color", resp.Issues[0].Key)
			},
		},
		{
			name:       "other state extension",
			body:       `{"source_state":"TX","provider_url":"https://example.gov/op/3","fields":{"ny_facility_id":"9"}}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "schema", decode[errorResponse](t, rec).Error)
			},
		},
		{
			name:       "missing url",
			body:       `{"source_state":"TX","provider_url":"  ","fields":{"provider_name":"A"}}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				resp := decode[errorResponse](t, rec)
				assert.Equal(t, "validation", resp.Error)
				assert.Equal(t, "provider_url", resp.Field)
			},
		},
		{
			name:       "unsupported state",
			body:       `{"source_state":"ZZ","provider_url":"https://example.gov/op/4","fields":{"provider_name":"A"}}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "validation", decode[errorResponse](t, rec).Error)
			},
		},
		{
			name:       "bad body",
			body:       `{"source_state":`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/v1/normalize", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

func TestNoStoreRoutes(t *testing.T) {
	srv := New(nil, nil, Options{})
	rec := do(t, srv, http.MethodGet, "/v1/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProviders(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.UpsertProviders(ctx, []*model.ProviderRecord{
		{SourceState: "TX", ProviderURL: "https://example.gov/op/1", ProviderName: "Sunshine Learning", Status: "Active"},
		{SourceState: "NY", ProviderURL: "https://example.gov/ny/1", ProviderName: "Little Bears", Status: "License"},
	})
	require.NoError(t, err)
	srv := New(nil, st, Options{})

	rec := do(t, srv, http.MethodGet, "/v1/providers?state=ny", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Little Bears", list[0]["provider_name"])

	rec = do(t, srv, http.MethodGet, "/v1/providers?q=sun", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = do(t, srv, http.MethodGet, "/v1/providers/TX?url="+url.QueryEscape("https://example.gov/op/1"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sunshine Learning", decode[map[string]any](t, rec)["provider_name"])

	rec = do(t, srv, http.MethodGet, "/v1/providers/TX?url="+url.QueryEscape("https://example.gov/op/404"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/providers/TX", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/providers?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, "tx-hhs")
	require.NoError(t, err)
	require.NoError(t, st.RecordRejects(ctx, []model.Reject{{
		RunID:       run.ID,
		SourceState: "TX",
		ProviderURL: "https://example.gov/op/9",
		Kind:        model.RejectSchema,
		Reason:      "favorite_color: unknown provider field",
		Payload:     json.RawMessage(`{"fields":{"favorite_color":"blue"}}`),
	}}))
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStats{Rows: 2, Built: 1, Written: 1, SchemaErrors: 1}, nil))
	srv := New(nil, st, Options{})

	rec := do(t, srv, http.MethodGet, "/v1/runs?source=tx-hhs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]model.Run](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)

	rec = do(t, srv, http.MethodGet, "/v1/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.Run](t, rec)
	assert.Equal(t, 1, got.Stats.SchemaErrors)

	rec = do(t, srv, http.MethodGet, "/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/v1/runs/"+run.ID+"/rejects?kind=schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rejects := decode[[]model.Reject](t, rec)
	require.Len(t, rejects, 1)
	assert.JSONEq(t, `{"fields":{"favorite_color":"blue"}}`, string(rejects[0].Payload))

	rec = do(t, srv, http.MethodGet, "/v1/runs/"+run.ID+"/rejects?kind=validation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	srv := New(nil, nil, Options{CORSOrigins: []string{"https://dashboard.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/normalize", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
