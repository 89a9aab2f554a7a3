package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var providerUpsert = UpsertConfig{
	Table:        "providers",
	Columns:      []string{"source_state", "provider_url", "provider_name"},
	ConflictKeys: []string{"source_state", "provider_url"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, providerUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "providers",
		ConflictKeys: []string{"provider_url"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "providers",
		Columns: []string{"provider_url", "provider_name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_UnknownConflictKey(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "providers",
		Columns:      []string{"provider_url"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `conflict key "id"`)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_providers" \(LIKE "providers" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_providers"}, providerUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "providers" .* ON CONFLICT \("source_state", "provider_url"\) DO UPDATE SET "provider_name" = EXCLUDED."provider_name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{
		{"NY", "https://example.gov/1", "Sunshine"},
		{"NY", "https://example.gov/2", "Little Bears"},
	}
	n, err := BulkUpsert(context.Background(), mock, providerUpsert, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_providers"}, providerUpsert.Columns).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, providerUpsert, [][]any{{"NY", "u", "n"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for providers")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	cfg := providerUpsert
	cfg.UpdateWhere = `providers.provider_name IS DISTINCT FROM EXCLUDED.provider_name`
	got := upsertSQL(cfg, "_tmp", []string{"provider_name"})
	assert.Equal(t,
		`INSERT INTO "providers" ("source_state", "provider_url", "provider_name") SELECT "source_state", "provider_url", "provider_name" FROM "_tmp" ON CONFLICT ("source_state", "provider_url") DO UPDATE SET "provider_name" = EXCLUDED."provider_name" WHERE providers.provider_name IS DISTINCT FROM EXCLUDED.provider_name`,
		got)

	got = upsertSQL(cfg, "_tmp", nil)
	assert.Contains(t, got, "DO NOTHING")
}

func TestLastByKey(t *testing.T) {
	rows := [][]any{
		{"NY", "a", "first"},
		{"NY", "b", "only"},
		{"NY", "a", "second"},
		{"TX", "a", "other state"},
	}
	got := lastByKey(rows, []int{0, 1})
	assert.Equal(t, [][]any{
		{"NY", "b", "only"},
		{"NY", "a", "second"},
		{"TX", "a", "other state"},
	}, got)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.providers", `"public"."providers"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
