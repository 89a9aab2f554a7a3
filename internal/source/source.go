// Package source describes state licensing exports declaratively: where a
// source lives, how it is encoded, and which column feeds each dictionary
// field. A Definition turns one export row into the raw field map the
// record builder consumes.
package source

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-cli/internal/model"
)

// Format is the encoding of a source export.
type Format string

// Supported export formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Definition maps the columns of one state export onto dictionary fields.
// Column names are compared after trimming surrounding whitespace.
type Definition struct {
	Name        string `yaml:"name" json:"name"`
	State       string `yaml:"state" json:"state"`
	Description string `yaml:"description" json:"description,omitempty"`

	// Location is an http(s) URL or a local file path. It may be empty for
	// sources that can only be exported by hand; the file is then supplied
	// at import time.
	Location  string `yaml:"location" json:"location,omitempty"`
	Format    Format `yaml:"format" json:"format"`
	Delimiter string `yaml:"delimiter" json:"delimiter,omitempty"`
	Sheet     string `yaml:"sheet" json:"sheet,omitempty"`
	SkipRows  int    `yaml:"skip_rows" json:"skip_rows,omitempty"`

	// ProviderURL is a template such as
	// "https://example.gov/detail?id={Operation #}". A template that is a
	// single placeholder takes the column value verbatim; otherwise values
	// are query-escaped.
	ProviderURL string `yaml:"provider_url" json:"provider_url"`

	// Fields maps dictionary field names to column names.
	Fields map[string]string `yaml:"fields" json:"fields"`

	// AddressParts lists column groups for the address. Columns within a
	// group are joined with a space, e.g. street number and street name.
	AddressParts [][]string `yaml:"address_parts" json:"address_parts,omitempty"`
}

// IsRemote reports whether Location is fetched over HTTP.
func (d *Definition) IsRemote() bool {
	l := strings.ToLower(d.Location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Validate checks the definition against the field dictionary. Every mapped
// field must resolve for the source's state.
func (d *Definition) Validate(dict *model.Dictionary) error {
	d.State = model.NormalizeState(d.State)
	if d.Format == "" {
		d.Format = FormatCSV
	}

	if d.Name == "" {
		return eris.New("source: definition has no name")
	}
	if !model.IsSupportedState(d.State) {
		return eris.Errorf("source %s: unsupported state %q", d.Name, d.State)
	}
	switch d.Format {
	case FormatCSV, FormatJSON, FormatXLSX:
	default:
		return eris.Errorf("source %s: unknown format %q", d.Name, d.Format)
	}
	if len([]rune(d.Delimiter)) > 1 {
		return eris.Errorf("source %s: delimiter must be a single character", d.Name)
	}
	if d.ProviderURL == "" || !placeholder.MatchString(d.ProviderURL) {
		return eris.Errorf("source %s: provider_url must reference at least one column", d.Name)
	}
	if len(d.Fields) == 0 && len(d.AddressParts) == 0 {
		return eris.Errorf("source %s: no fields mapped", d.Name)
	}

	var bad []string
	for field := range d.Fields {
		spec, ok := dict.Resolve(model.ScopeProvider, d.State, field)
		if !ok || spec.Kind == model.KindInspections || spec.Kind == model.KindAddressParts {
			bad = append(bad, field)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return eris.Errorf("source %s: fields not valid for %s: %s", d.Name, d.State, strings.Join(bad, ", "))
	}
	return nil
}

// Columns returns every column the definition reads, sorted.
func (d *Definition) Columns() []string {
	set := make(map[string]struct{})
	for _, col := range d.Fields {
		set[strings.TrimSpace(col)] = struct{}{}
	}
	for _, group := range d.AddressParts {
		for _, col := range group {
			set[strings.TrimSpace(col)] = struct{}{}
		}
	}
	for _, m := range placeholder.FindAllStringSubmatch(d.ProviderURL, -1) {
		set[strings.TrimSpace(m[1])] = struct{}{}
	}
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// CheckHeader returns an error naming every referenced column missing from
// header. A renamed column in a state export fails the run up front instead
// of silently producing empty fields.
func (d *Definition) CheckHeader(header []string) error {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = struct{}{}
	}
	var missing []string
	for _, c := range d.Columns() {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("source %s: export is missing columns: %s", d.Name, strings.Join(missing, ", "))
	}
	return nil
}

// Map turns one export row into a provider URL and the raw field map for the
// record builder.
func (d *Definition) Map(row Row) (string, map[string]any) {
	fields := make(map[string]any, len(d.Fields)+1)
	for field, col := range d.Fields {
		fields[field] = row.Get(col)
	}
	if len(d.AddressParts) > 0 {
		parts := make([]any, 0, len(d.AddressParts))
		for _, group := range d.AddressParts {
			parts = append(parts, joinGroup(row, group))
		}
		fields["address_parts"] = parts
	}
	return d.expandURL(row), fields
}

func joinGroup(row Row, cols []string) string {
	vals := make([]string, 0, len(cols))
	for _, c := range cols {
		if v := strings.TrimSpace(row.Get(c)); v != "" {
			vals = append(vals, v)
		}
	}
	return strings.Join(vals, " ")
}

// expandURL fills the provider URL template. A referenced column that is
// empty yields "", which the builder rejects as a missing provider_url.
func (d *Definition) expandURL(row Row) string {
	tmpl := strings.TrimSpace(d.ProviderURL)
	if m := placeholder.FindStringSubmatch(tmpl); m != nil && m[0] == tmpl {
		return strings.TrimSpace(row.Get(m[1]))
	}

	missing := false
	out := placeholder.ReplaceAllStringFunc(tmpl, func(ph string) string {
		v := strings.TrimSpace(row.Get(ph[1 : len(ph)-1]))
		if v == "" {
			missing = true
		}
		return url.QueryEscape(v)
	})
	if missing {
		return ""
	}
	return out
}

// Row is one export row keyed by trimmed column name.
type Row struct {
	Num    int // 1-based data row number
	Values map[string]string
}

// NewRow zips a header with a row's cells. Short rows read as empty for the
// missing columns; extra cells are dropped.
func NewRow(num int, header, cells []string) Row {
	values := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(cells) {
			values[strings.TrimSpace(h)] = cells[i]
		} else {
			values[strings.TrimSpace(h)] = ""
		}
	}
	return Row{Num: num, Values: values}
}

// Get returns the value of a column, or "" when absent.
func (r Row) Get(col string) string {
	return r.Values[strings.TrimSpace(col)]
}

func (r Row) String() string {
	return fmt.Sprintf("row %d", r.Num)
}
