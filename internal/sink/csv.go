package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-cli/internal/model"
)

// listSep joins list values inside a single CSV cell.
const listSep = "; "

// CSV writes one row per provider. Columns are the common provider fields,
// then the declared extension fields of the requested states, then two JSON
// columns: "inspections" and "extensions" (any extension value without a
// column of its own).
type CSV struct {
	w       *csv.Writer
	closer  io.Closer
	columns []string
	hasCol  map[string]bool
	header  bool
}

// NewCSV creates a CSV sink over w. With no states, extension columns for
// every supported state are included. If w is an io.Closer it is closed by
// Close.
func NewCSV(w io.Writer, dict *model.Dictionary, states ...string) *CSV {
	if dict == nil {
		dict = model.DefaultDictionary()
	}
	want := make(map[string]bool, len(states))
	for _, s := range states {
		want[model.NormalizeState(s)] = true
	}

	var cols []string
	for _, f := range dict.Columns(model.ScopeProvider) {
		if f.State != "" && len(want) > 0 && !want[f.State] {
			continue
		}
		cols = append(cols, f.Name)
	}

	s := &CSV{
		w:       csv.NewWriter(w),
		columns: cols,
		hasCol:  make(map[string]bool, len(cols)),
	}
	for _, c := range cols {
		s.hasCol[c] = true
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Header returns the CSV header row.
func (s *CSV) Header() []string {
	return append(append([]string(nil), s.columns...), "inspections", "extensions")
}

func (s *CSV) Write(_ context.Context, rec *model.ProviderRecord) error {
	if !s.header {
		if err := s.w.Write(s.Header()); err != nil {
			return eris.Wrap(err, "csv sink: write header")
		}
		s.header = true
	}

	row := make([]string, 0, len(s.columns)+2)
	for _, c := range s.columns {
		v, _ := rec.Get(c)
		row = append(row, cell(v))
	}

	inspections := make([]map[string]any, 0, len(rec.Inspections))
	for i := range rec.Inspections {
		inspections = append(inspections, rec.Inspections[i].Map())
	}
	insJSON, err := json.Marshal(inspections)
	if err != nil {
		return eris.Wrap(err, "csv sink: marshal inspections")
	}

	extra := make(map[string]any)
	for _, k := range rec.ExtensionKeys() {
		if !s.hasCol[k] {
			extra[k] = rec.Extensions[k].Interface()
		}
	}
	extJSON, err := json.Marshal(extra)
	if err != nil {
		return eris.Wrap(err, "csv sink: marshal extensions")
	}

	row = append(row, string(insJSON), string(extJSON))
	if err := s.w.Write(row); err != nil {
		return eris.Wrapf(err, "csv sink: write %s", rec.ProviderURL)
	}
	return nil
}

// Close flushes the writer and closes the underlying file, if any.
func (s *CSV) Close(_ context.Context) error {
	s.w.Flush()
	err := eris.Wrap(s.w.Error(), "csv sink: flush")
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "csv sink: close")
		}
	}
	return err
}

func cell(v model.Value) string {
	if v.IsList() {
		return strings.Join(v.Items(), listSep)
	}
	return v.String()
}
