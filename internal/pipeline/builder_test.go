package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-cli/internal/model"
)

const testURL = "https://example.gov/123"

func TestBuild_Scenario(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"provider_name": "Sunshine Daycare",
		"phone":         "9075550100",
		"address_parts": []any{"123 Glacier Hwy", "Juneau", "AK", "99801"},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "AK", rec.SourceState)
	assert.Equal(t, testURL, rec.ProviderURL)
	assert.Equal(t, "Sunshine Daycare", rec.ProviderName)
	assert.Equal(t, "(907) 555-0100", rec.Phone)
	assert.Equal(t, "123 Glacier Hwy, Juneau, AK, 99801", rec.Address)
}

func TestBuild_AddressPartsWithBlankStreet(t *testing.T) {
	rec, _, err := Build("CA", testURL, map[string]any{
		"address_parts": []string{"", "Springfield", "CA", "62704"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Springfield, CA, 62704", rec.Address)
}

func TestBuild_AbsentValues(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"provider_name": "Little Bears",
		"phone":         "N/A",
		"email":         "",
		"capacity":      nil,
		"languages":     "n/a",
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "", rec.Phone)
	assert.Equal(t, "", rec.Email)
	assert.Equal(t, "", rec.Capacity)
	assert.Nil(t, rec.Languages)
	assert.Equal(t, "", rec.Status, "missing optional fields read as absent")
}

func TestBuild_NormalizesByKind(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"provider_name":      "  Sunshine  Daycare ",
		"license_expiration": "05/10/2023",
		"capacity":           45.0,
		"languages":          "English; Spanish, English",
		"provider_website":   " https://sunshine.example.com ",
		"latitude":           "58.3019",
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "Sunshine Daycare", rec.ProviderName)
	assert.Equal(t, "2023-05-10", rec.LicenseExpiration)
	assert.Equal(t, "45", rec.Capacity)
	assert.Equal(t, []string{"English", "Spanish", "English"}, rec.Languages)
	assert.Equal(t, "https://sunshine.example.com", rec.ProviderWebsite)
	assert.Equal(t, "58.3019", rec.Latitude)
}

func TestBuild_WarningsKeepRawValue(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"provider_name": "Sunshine Daycare",
		"phone":         "555-1234",
		"status_date":   "sometime in spring",
	})
	require.NoError(t, err)
	assert.Equal(t, "555-1234", rec.Phone)
	assert.Equal(t, "sometime in spring", rec.StatusDate)

	require.Len(t, warnings, 2)
	fields := []string{warnings[0].Field, warnings[1].Field}
	assert.ElementsMatch(t, []string{"phone", "status_date"}, fields)
	for _, w := range warnings {
		assert.NotEmpty(t, w.Reason)
		assert.NotEmpty(t, w.Raw)
	}
}

func TestBuild_ListForScalarField(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"deficiencies": []any{"Missing fire drill log", " ", "Expired first aid kit"},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "Missing fire drill log; Expired first aid kit", rec.Deficiencies)
}

func TestBuild_UnknownFieldIsSchemaError(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"provider_name":  "Sunshine Daycare",
		"favorite_color": "blue",
		"zz-field":       "x",
	})
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Nil(t, warnings)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"favorite_color", "zz-field"}, se.Keys())
	assert.Equal(t, "AK", se.State)
	assert.Equal(t, testURL, se.URL)
	assert.Contains(t, err.Error(), "favorite_color")
	assert.True(t, IsSchemaError(err))
}

func TestBuild_ExtensionFields(t *testing.T) {
	rec, warnings, err := Build("VA", testURL, map[string]any{
		"provider_name":  "Ridge Kids",
		"va_inspector":   "  Jane Roe ",
		"va_new_thing":   "kept as string",
		"va_listy_thing": []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	v, ok := rec.Get("va_new_thing")
	require.True(t, ok)
	assert.Equal(t, "kept as string", v.String())

	v, ok = rec.Get("va_listy_thing")
	require.True(t, ok)
	assert.True(t, v.IsList())
	assert.Equal(t, []string{"a", "b"}, v.Items())

	v, ok = rec.Get("va_inspector")
	require.True(t, ok)
	assert.Equal(t, "Jane Roe", v.String())
}

func TestBuild_CrossStateExtensionRejected(t *testing.T) {
	_, _, err := Build("AK", testURL, map[string]any{
		"provider_name": "Sunshine Daycare",
		"va_inspector":  "Jane Roe",
		"tx_undeclared": "x",
	})
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"tx_undeclared", "va_inspector"}, se.Keys())
	assert.Contains(t, se.Issues[1].Reason, "VA")
}

func TestBuild_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		state string
		url   string
		field string
	}{
		{"empty state", "", testURL, "source_state"},
		{"whitespace state", "  ", testURL, "source_state"},
		{"unsupported state", "ZZ", testURL, "source_state"},
		{"empty url", "AK", "", "provider_url"},
		{"not a url", "AK", "not a url", "provider_url"},
		{"relative url", "AK", "/providers/123", "provider_url"},
		{"ftp url", "AK", "ftp://example.gov/123", "provider_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := Build(tt.state, tt.url, map[string]any{"provider_name": "Sunshine"})
			assert.Nil(t, rec)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.NotEmpty(t, ve.Reason)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestBuild_RequiredCheckedBeforeSchema(t *testing.T) {
	_, _, err := Build("", testURL, map[string]any{"bogus": "x"})
	assert.True(t, IsValidationError(err))
	assert.False(t, IsSchemaError(err))
}

func TestBuild_StateIsNormalized(t *testing.T) {
	rec, _, err := Build(" ak ", testURL, map[string]any{"provider_name": "Sunshine"})
	require.NoError(t, err)
	assert.Equal(t, "AK", rec.SourceState)
}

func TestBuild_EmptyRecordRejected(t *testing.T) {
	_, _, err := Build("AK", testURL, map[string]any{
		"provider_name": "N/A",
		"phone":         "",
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "record", ve.Field)
}

func TestBuild_IdentityConflict(t *testing.T) {
	_, _, err := Build("AK", testURL, map[string]any{
		"source_state":  "VA",
		"provider_name": "Sunshine",
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source_state", ve.Field)

	rec, _, err := Build("AK", testURL, map[string]any{
		"source_state":  "ak",
		"provider_url":  testURL,
		"provider_name": "Sunshine",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sunshine", rec.ProviderName)
}

func TestBuild_AddressEmailAndWebsite(t *testing.T) {
	rec, warnings, err := Build("AR", testURL, map[string]any{
		"provider_website": "https://www.tinytots.example.org",
		"address":          "12 Main St, Conway, AR 72032 tots@tinytots.example.org www.tinytots.example.org",
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "12 Main St, Conway, AR 72032", rec.Address)
	assert.Equal(t, "tots@tinytots.example.org", rec.Email)
}

func TestBuild_AddressEmailDoesNotOverrideEmail(t *testing.T) {
	rec, _, err := Build("AR", testURL, map[string]any{
		"email":   "director@tinytots.example.org",
		"address": "12 Main St, Conway, AR 72032, office@tinytots.example.org",
	})
	require.NoError(t, err)
	assert.Equal(t, "director@tinytots.example.org", rec.Email)
	assert.Equal(t, "12 Main St, Conway, AR 72032", rec.Address)
}

func TestBuild_AddressEmailAnyCase(t *testing.T) {
	rec, _, err := Build("AK", testURL, map[string]any{
		"address": "123 Main St Info@Sun.org, Juneau, AK info@sun.org 99801",
	})
	require.NoError(t, err)
	assert.Equal(t, "Info@Sun.org", rec.Email)
	assert.NotContains(t, rec.Address, "@")
	assert.Equal(t, "123 Main St, Juneau, AK 99801", rec.Address)
}

func TestBuild_HTMLAddress(t *testing.T) {
	rec, _, err := Build("AR", testURL, map[string]any{
		"address": `12 Main St<br>Conway, AR 72032<br><a href="mailto:tots@example.org">Email us</a>`,
	})
	require.NoError(t, err)
	assert.Equal(t, "12 Main St, Conway, AR 72032, Email us", rec.Address)
	assert.Equal(t, "tots@example.org", rec.Email)
}

func TestBuild_StaticMapURL(t *testing.T) {
	mapURL := "https://maps.googleapis.com/maps/api/staticmap?center=35.6870,-105.9378&amp;zoom=15&amp;size=300x300"

	rec, warnings, err := Build("NM", testURL, map[string]any{
		"provider_name":  "Mesa Kids",
		"static_map_url": mapURL,
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "35.6870", rec.Latitude)
	assert.Equal(t, "-105.9378", rec.Longitude)

	rec, _, err = Build("NM", testURL, map[string]any{
		"static_map_url": mapURL,
		"latitude":       "35.1",
		"longitude":      "-106.6",
	})
	require.NoError(t, err)
	assert.Equal(t, "35.1", rec.Latitude, "explicit coordinates win")

	rec, warnings, err = Build("NM", testURL, map[string]any{
		"provider_name":  "Mesa Kids",
		"static_map_url": "https://maps.example.com/static?zoom=3",
	})
	require.NoError(t, err)
	assert.Equal(t, "", rec.Latitude)
	require.Len(t, warnings, 1)
	assert.Equal(t, "static_map_url", warnings[0].Field)
}

func TestBuild_InspectionDedup(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"provider_name": "Sunshine Daycare",
		"inspections": []any{
			map[string]any{
				"date":              "01/15/2024",
				"type":              "Annual",
				"original_status":   "Finding",
				"corrective_status": "Corrected",
				"report_url":        "https://example.gov/report/1",
			},
			map[string]any{
				"date":              "01/15/2024",
				"type":              " Annual ",
				"original_status":   "Finding",
				"corrective_status": "Corrected",
				"report_url":        "https://example.gov/report/2",
			},
			map[string]any{
				"date": "03/02/2024",
				"type": "Complaint",
			},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, rec.Inspections, 2)
	assert.Equal(t, "https://example.gov/report/1", rec.Inspections[0].ReportURL)
	assert.Equal(t, "01/15/2024", rec.Inspections[0].Date, "inspection dates keep the source format")
	assert.Equal(t, "Complaint", rec.Inspections[1].Type)
}

func TestBuild_DedupDoesNotLeakAcrossCalls(t *testing.T) {
	fields := map[string]any{
		"inspections": []map[string]any{{"date": "2024-01-15", "type": "Annual"}},
	}
	b := NewBuilder(nil)
	first, _, err := b.Build("AK", testURL, fields)
	require.NoError(t, err)
	second, _, err := b.Build("AK", "https://example.gov/456", fields)
	require.NoError(t, err)
	assert.Len(t, first.Inspections, 1)
	assert.Len(t, second.Inspections, 1)
}

func TestBuild_InspectionWithoutDateDropped(t *testing.T) {
	rec, warnings, err := Build("AK", testURL, map[string]any{
		"provider_name": "Sunshine Daycare",
		"inspections":   []any{map[string]any{"type": "Annual"}},
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Inspections)
	require.Len(t, warnings, 1)
	assert.Equal(t, "inspections[0].date", warnings[0].Field)
}

func TestBuild_InspectionSchemaErrors(t *testing.T) {
	_, _, err := Build("VA", testURL, map[string]any{
		"inspections": []any{
			map[string]any{"date": "2024-01-01", "va_shsi": "Yes", "inspector_mood": "fine"},
			"not a row",
		},
	})
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"inspections"}, se.Keys())

	_, _, err = Build("VA", testURL, map[string]any{
		"inspections": []any{
			map[string]any{"date": "2024-01-01", "va_shsi": "Yes", "inspector_mood": "fine"},
		},
	})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"inspections[0].inspector_mood"}, se.Keys())
}

func TestBuild_InspectionExtensions(t *testing.T) {
	rec, _, err := Build("VA", testURL, map[string]any{
		"inspections": []any{
			map[string]any{"date": "2024-01-01", "va_violations": "Yes", "status_updated": "Jan 5, 2024"},
		},
	})
	require.NoError(t, err)
	require.Len(t, rec.Inspections, 1)
	v, ok := rec.Inspections[0].Get("va_violations")
	require.True(t, ok)
	assert.Equal(t, "Yes", v.String())
	assert.Equal(t, "2024-01-05", rec.Inspections[0].StatusUpdated)
}

func TestBuild_UnsupportedValueShape(t *testing.T) {
	_, _, err := Build("AK", testURL, map[string]any{
		"provider_name": map[string]any{"first": "Sunshine"},
		"languages":     []any{"English", []any{"nested"}},
	})
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"languages", "provider_name"}, se.Keys())
}

func TestBuild_DecodedJSONPayload(t *testing.T) {
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"provider_name": "Sunshine Daycare",
		"capacity": 30,
		"languages": ["English", "Yupik"],
		"inspections": [{"date": "2024-02-01", "type": "Annual"}]
	}`), &fields))

	rec, warnings, err := Build("AK", testURL, fields)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "30", rec.Capacity)
	assert.Equal(t, []string{"English", "Yupik"}, rec.Languages)
	assert.Len(t, rec.Inspections, 1)
}

func TestNewBuilder_CustomDictionary(t *testing.T) {
	dict, err := model.NewDictionary([]model.FieldSpec{
		{Name: "source_state", Kind: model.KindString, Required: true},
		{Name: "provider_url", Kind: model.KindURI, Required: true},
		{Name: "provider_name", Kind: model.KindString},
	})
	require.NoError(t, err)

	b := NewBuilder(dict)
	assert.Same(t, dict, b.Dictionary())

	_, _, err = b.Build("AK", testURL, map[string]any{"phone": "9075550100"})
	assert.True(t, IsSchemaError(err))
}
