package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-cli/internal/model"
)

func txDefinition() *Definition {
	return &Definition{
		Name:        "tx-test",
		State:       "tx",
		ProviderURL: "https://childcare.hhs.texas.gov/Public/OperationDetails?operationId={Operation #}",
		Fields: map[string]string{
			"provider_name":  "Operation/Caregiver Name",
			"tx_rising_star": "Texas Rising Star ",
		},
		AddressParts: [][]string{{"Address"}, {"City"}, {"State", "Zip"}},
	}
}

func TestDefinition_Validate(t *testing.T) {
	t.Parallel()
	d := txDefinition()
	require.NoError(t, d.Validate(model.DefaultDictionary()))
	assert.Equal(t, "TX", d.State)
	assert.Equal(t, FormatCSV, d.Format)
}

func TestDefinition_ValidateErrors(t *testing.T) {
	t.Parallel()
	dict := model.DefaultDictionary()

	tests := []struct {
		name   string
		mutate func(d *Definition)
		want   string
	}{
		{"no name", func(d *Definition) { d.Name = "" }, "no name"},
		{"unsupported state", func(d *Definition) { d.State = "WY" }, "unsupported state"},
		{"bad format", func(d *Definition) { d.Format = "parquet" }, "unknown format"},
		{"long delimiter", func(d *Definition) { d.Delimiter = "||" }, "single character"},
		{"static url", func(d *Definition) { d.ProviderURL = "https://example.gov" }, "provider_url"},
		{"cross-state field", func(d *Definition) { d.Fields["ny_facility_id"] = "Facility ID" }, "ny_facility_id"},
		{"unknown field", func(d *Definition) { d.Fields["favorite_color"] = "Color" }, "favorite_color"},
		{"structural field", func(d *Definition) { d.Fields["inspections"] = "Visits" }, "inspections"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := txDefinition()
			tt.mutate(d)
			err := d.Validate(dict)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefinition_IsRemote(t *testing.T) {
	t.Parallel()
	assert.True(t, (&Definition{Location: "https://data.ny.gov/rows.csv"}).IsRemote())
	assert.True(t, (&Definition{Location: "HTTP://example.gov/x"}).IsRemote())
	assert.False(t, (&Definition{Location: "/data/tx.csv"}).IsRemote())
	assert.False(t, (&Definition{}).IsRemote())
}

func TestDefinition_Columns(t *testing.T) {
	t.Parallel()
	d := txDefinition()
	assert.Equal(t, []string{
		"Address", "City", "Operation #", "Operation/Caregiver Name", "State", "Texas Rising Star", "Zip",
	}, d.Columns())
}

func TestDefinition_CheckHeader(t *testing.T) {
	t.Parallel()
	d := txDefinition()
	header := []string{"Operation #", "Operation/Caregiver Name", "Address", "City", "State", "Zip", "Texas Rising Star "}
	require.NoError(t, d.CheckHeader(header))

	err := d.CheckHeader([]string{"Operation #", "Address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "City")
	assert.Contains(t, err.Error(), "Zip")
}

func TestDefinition_Map(t *testing.T) {
	t.Parallel()
	d := txDefinition()
	header := []string{"Operation #", "Operation/Caregiver Name", "Address", "City", "State", "Zip", "Texas Rising Star "}
	row := NewRow(1, header, []string{"1234", "Sunshine Daycare", "12 Oak St", "Austin", "TX", "78701", "Four Star"})

	url, fields := d.Map(row)
	assert.Equal(t, "https://childcare.hhs.texas.gov/Public/OperationDetails?operationId=1234", url)
	assert.Equal(t, "Sunshine Daycare", fields["provider_name"])
	assert.Equal(t, "Four Star", fields["tx_rising_star"])
	assert.Equal(t, []any{"12 Oak St", "Austin", "TX 78701"}, fields["address_parts"])
}

func TestDefinition_MapEscapesAndMissing(t *testing.T) {
	t.Parallel()
	d := &Definition{ProviderURL: "https://example.gov/search?name={Name}&id={ID}"}

	url, _ := d.Map(Row{Values: map[string]string{"Name": "A & B", "ID": "7"}})
	assert.Equal(t, "https://example.gov/search?name=A+%26+B&id=7", url)

	url, _ = d.Map(Row{Values: map[string]string{"Name": "A", "ID": " "}})
	assert.Empty(t, url)
}

func TestDefinition_MapVerbatimPlaceholder(t *testing.T) {
	t.Parallel()
	d := &Definition{ProviderURL: "{Program Profile}"}
	url, _ := d.Map(Row{Values: map[string]string{"Program Profile": " https://hs.ocfs.ny.gov/DCFS/Profile/Index/101 "}})
	assert.Equal(t, "https://hs.ocfs.ny.gov/DCFS/Profile/Index/101", url)
}

func TestNewRow_PadsShortRows(t *testing.T) {
	t.Parallel()
	row := NewRow(3, []string{" a ", "b", "c"}, []string{"1", "2"})
	assert.Equal(t, 3, row.Num)
	assert.Equal(t, "1", row.Get("a"))
	assert.Equal(t, "", row.Get("c"))
	assert.Equal(t, "row 3", row.String())

	row = NewRow(4, []string{"a"}, []string{"1", "2"})
	assert.Equal(t, map[string]string{"a": "1"}, row.Values)
}
