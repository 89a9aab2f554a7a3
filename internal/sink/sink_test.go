package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/store"
)

func testRecord(url string) *model.ProviderRecord {
	return &model.ProviderRecord{
		SourceState:  "TX",
		ProviderURL:  url,
		ProviderName: "Sunshine Learning Center",
		Status:       "Active",
		Languages:    []string{"English", "Spanish"},
		Inspections: []model.InspectionRecord{
			{Date: "01/02/2024", Type: "Annual"},
		},
		Extensions: map[string]model.Value{
			"tx_operation_id": model.Text("1234"),
			"tx_custom_note":  model.Text("corner lot"),
		},
	}
}

type recordingSink struct {
	writes  int
	closed  bool
	failErr error
}

func (r *recordingSink) Write(context.Context, *model.ProviderRecord) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.writes++
	return nil
}

func (r *recordingSink) Close(context.Context) error {
	r.closed = true
	return r.failErr
}

func TestCSV_Write(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSV(&buf, nil, "TX")
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, testRecord("https://example.gov/1")))
	require.NoError(t, s.Write(ctx, testRecord("https://example.gov/2")))
	require.NoError(t, s.Close(ctx))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	assert.Equal(t, "source_state", header[0])
	assert.Equal(t, "extensions", header[len(header)-1])
	assert.Contains(t, idx, "tx_operation_id")
	assert.NotContains(t, idx, "ny_facility_id")

	row := rows[1]
	assert.Equal(t, "https://example.gov/1", row[idx["provider_url"]])
	assert.Equal(t, "English; Spanish", row[idx["languages"]])
	assert.Equal(t, "1234", row[idx["tx_operation_id"]])
	assert.Equal(t, "", row[idx["email"]])
	assert.JSONEq(t, `{"tx_custom_note":"corner lot"}`, row[idx["extensions"]])

	var inspections []map[string]any
	require.NoError(t, json.Unmarshal([]byte(row[idx["inspections"]]), &inspections))
	require.Len(t, inspections, 1)
	assert.Equal(t, "Annual", inspections[0]["type"])
}

func TestCSV_AllStates(t *testing.T) {
	s := NewCSV(&bytes.Buffer{}, nil)
	header := strings.Join(s.Header(), ",")
	assert.Contains(t, header, "ny_facility_id")
	assert.Contains(t, header, "tx_operation_id")
	assert.Contains(t, header, "ca_regional_office")
}

func TestCSV_EmptyWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSV(&buf, nil)
	require.NoError(t, s.Close(context.Background()))
	assert.Empty(t, buf.String())
}

func TestJSONL_Write(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONL(&buf)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, testRecord("https://example.gov/1?a=1&b=2")))
	require.NoError(t, s.Close(ctx))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "a=1&b=2")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "TX", got["source_state"])
	assert.Equal(t, "1234", got["tx_operation_id"])
	assert.Equal(t, "", got["email"])
	assert.Len(t, got["inspections"], 1)
}

func TestStore_Batches(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	s := NewStore(st, 2)
	for _, u := range []string{"https://example.gov/1", "https://example.gov/2", "https://example.gov/3"} {
		require.NoError(t, s.Write(ctx, testRecord(u)))
	}
	assert.Equal(t, 2, s.Changed())

	_, err = st.GetProvider(ctx, "TX", "https://example.gov/3")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 3, s.Changed())

	got, err := st.GetProvider(ctx, "TX", "https://example.gov/3")
	require.NoError(t, err)
	assert.Equal(t, "Sunshine Learning Center", got.ProviderName)
}

func TestNewStore_DefaultBatch(t *testing.T) {
	s := NewStore(nil, 0)
	assert.Equal(t, DefaultBatchSize, s.batchSize)
	assert.NoError(t, s.Close(context.Background()))
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := Multi{a, b}
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, testRecord("https://example.gov/1")))
	require.NoError(t, m.Close(ctx))
	assert.Equal(t, 1, a.writes)
	assert.Equal(t, 1, b.writes)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMulti_Errors(t *testing.T) {
	boom := errors.New("disk full")
	a, b := &recordingSink{failErr: boom}, &recordingSink{}
	m := Multi{a, b}
	ctx := context.Background()

	err := m.Write(ctx, testRecord("https://example.gov/1"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.writes)

	err = m.Close(ctx)
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.closed)
}
