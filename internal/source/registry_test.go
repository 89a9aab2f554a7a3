package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-cli/internal/model"
)

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()
	r, err := DefaultRegistry(nil)
	require.NoError(t, err)

	var names []string
	for _, d := range r.All() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"ny-ocfs", "tx-hhs"}, names)

	ny, err := r.Get("ny-ocfs")
	require.NoError(t, err)
	assert.True(t, ny.IsRemote())
	assert.Equal(t, "NY", ny.State)

	tx, err := r.Get("tx-hhs")
	require.NoError(t, err)
	assert.False(t, tx.IsRemote())
	assert.Contains(t, tx.Columns(), "Texas Rising Star")
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()
	_, err := NewRegistry().Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "nope"`)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.Register(&Definition{Name: "a"}))
	err := r.Register(&Definition{Name: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_Select(t *testing.T) {
	t.Parallel()
	r, err := DefaultRegistry(nil)
	require.NoError(t, err)

	got, err := r.Select(nil, []string{"tx"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tx-hhs", got[0].Name)

	got, err = r.Select([]string{"ny-ocfs"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = r.Select([]string{"ny-ocfs"}, []string{"TX"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Select([]string{"missing"}, nil)
	require.Error(t, err)

	got, err = r.Select(nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRegistry_LoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	yml := `
sources:
  - name: bad
    state: WY
    provider_url: "{ID}"
    fields:
      provider_name: Name
`
	err := NewRegistry().Load(strings.NewReader(yml), model.DefaultDictionary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported state")
}

func TestRegistry_LoadNilDictionary(t *testing.T) {
	t.Parallel()
	yml := `
sources:
  - name: ny-local
    state: NY
    provider_url: "{Link}"
    fields:
      provider_name: Name
      ny_facility_id: Facility
`
	r := NewRegistry()
	require.NoError(t, r.Load(strings.NewReader(yml), nil))
	d, err := r.Get("ny-local")
	require.NoError(t, err)
	assert.Equal(t, "NY", d.State)
}

func TestRegistry_LoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	yml := `
sources:
  - name: typo
    state: AL
    provider_ur: "{ID}"
`
	err := NewRegistry().Load(strings.NewReader(yml), model.DefaultDictionary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode definitions")
}

func TestDefaultRegistry_ExtraFiles(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: al-dhr
    state: AL
    format: xlsx
    skip_rows: 1
    provider_url: "https://apps.dhr.alabama.gov/daycare/facility?id={License}"
    fields:
      provider_name: Name
      al_quality_rating: Star Rating
`), 0o644))

	r, err := DefaultRegistry(nil, path)
	require.NoError(t, err)
	d, err := r.Get("al-dhr")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, d.Format)
	assert.Equal(t, 1, d.SkipRows)

	_, err = DefaultRegistry(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
