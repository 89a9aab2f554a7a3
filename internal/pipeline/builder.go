// Package pipeline turns the raw field maps produced by state source adapters
// into normalized provider records. A build either yields a record plus any
// normalization warnings, or a SchemaError or ValidationError.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/normalize"
)

// listJoin separates list items supplied for a scalar field.
const listJoin = "; "

// Builder builds provider records against a field dictionary. It holds no
// per-record state and is safe for concurrent use.
type Builder struct {
	dict *model.Dictionary
}

// NewBuilder returns a Builder for dict, or for the default dictionary when
// dict is nil.
func NewBuilder(dict *model.Dictionary) *Builder {
	if dict == nil {
		dict = model.DefaultDictionary()
	}
	return &Builder{dict: dict}
}

// Dictionary returns the dictionary the builder resolves keys against.
func (b *Builder) Dictionary() *model.Dictionary {
	return b.dict
}

// Build builds a record with the default dictionary.
func Build(state, providerURL string, fields map[string]any) (*model.ProviderRecord, []Warning, error) {
	return NewBuilder(nil).Build(state, providerURL, fields)
}

type resolvedField struct {
	spec model.FieldSpec
	val  rawValue
}

// Build normalizes one adapter payload. Required fields are checked first,
// then every key is resolved against the dictionary before any value is
// touched, so a SchemaError never leaves a partial record behind.
func (b *Builder) Build(state, providerURL string, fields map[string]any) (*model.ProviderRecord, []Warning, error) {
	state = model.NormalizeState(state)
	providerURL = strings.TrimSpace(providerURL)

	if err := checkRequired(state, providerURL); err != nil {
		return nil, nil, err
	}
	if err := checkIdentity(state, providerURL, fields); err != nil {
		return nil, nil, err
	}

	provider, rows, issues := b.resolve(state, fields)
	if len(issues) > 0 {
		return nil, nil, &SchemaError{State: state, URL: providerURL, Issues: issues}
	}

	bd := &recordBuild{
		rec: &model.ProviderRecord{SourceState: state, ProviderURL: providerURL},
	}
	for _, f := range provider {
		bd.apply(f)
	}
	bd.finishAddress()
	bd.finishCoordinates()
	bd.buildInspections(rows)

	if err := Validate(bd.rec); err != nil {
		return nil, nil, err
	}
	return bd.rec, bd.warnings, nil
}

// checkIdentity rejects payloads whose embedded source_state or provider_url
// disagree with the values the adapter was invoked with.
func checkIdentity(state, providerURL string, fields map[string]any) error {
	if v, ok := fields["source_state"]; ok {
		s, _ := scalarString(v)
		if s = model.NormalizeState(s); s != "" && s != state {
			return &ValidationError{State: state, URL: providerURL, Field: "source_state",
				Reason: fmt.Sprintf("payload names %q", s)}
		}
	}
	if v, ok := fields["provider_url"]; ok {
		s, _ := scalarString(v)
		if s = strings.TrimSpace(s); s != "" && s != providerURL {
			return &ValidationError{State: state, URL: providerURL, Field: "provider_url",
				Reason: fmt.Sprintf("payload names %q", s)}
		}
	}
	return nil
}

// resolve maps every key to its spec and coerces every value, collecting all
// problems instead of stopping at the first.
func (b *Builder) resolve(state string, fields map[string]any) ([]resolvedField, [][]resolvedField, []FieldIssue) {
	var (
		provider []resolvedField
		rows     [][]resolvedField
		issues   []FieldIssue
	)
	for _, key := range sortedKeys(fields) {
		if key == "source_state" || key == "provider_url" {
			continue
		}
		spec, ok := b.dict.Resolve(model.ScopeProvider, state, key)
		if !ok {
			issues = append(issues, FieldIssue{Key: key, Reason: unknownReason(b.dict, model.ScopeProvider, state, key)})
			continue
		}

		if spec.Kind == model.KindInspections {
			raw, err := coerceRows(fields[key])
			if err != nil {
				issues = append(issues, FieldIssue{Key: key, Reason: err.Error()})
				continue
			}
			for i, row := range raw {
				resolved, rowIssues := b.resolveRow(state, fmt.Sprintf("%s[%d]", key, i), row)
				issues = append(issues, rowIssues...)
				rows = append(rows, resolved)
			}
			continue
		}

		val, err := coerceValue(fields[key])
		if err != nil {
			issues = append(issues, FieldIssue{Key: key, Reason: err.Error()})
			continue
		}
		provider = append(provider, resolvedField{spec: spec, val: val})
	}
	return provider, rows, issues
}

func (b *Builder) resolveRow(state, prefix string, row map[string]any) ([]resolvedField, []FieldIssue) {
	var (
		out    []resolvedField
		issues []FieldIssue
	)
	for _, key := range sortedKeys(row) {
		path := prefix + "." + key
		spec, ok := b.dict.Resolve(model.ScopeInspection, state, key)
		if !ok {
			issues = append(issues, FieldIssue{Key: path, Reason: unknownReason(b.dict, model.ScopeInspection, state, key)})
			continue
		}
		val, err := coerceValue(row[key])
		if err != nil {
			issues = append(issues, FieldIssue{Key: path, Reason: err.Error()})
			continue
		}
		out = append(out, resolvedField{spec: spec, val: val})
	}
	return out, issues
}

func unknownReason(dict *model.Dictionary, scope model.Scope, state, key string) string {
	if f := dict.Lookup(scope, key); f != nil && f.State != "" {
		return fmt.Sprintf("field belongs to %s, not %s", f.State, state)
	}
	if owner := model.ExtensionState(key); owner != "" && owner != state {
		return fmt.Sprintf("extension namespace of %s, not %s", owner, state)
	}
	return fmt.Sprintf("unknown %s field", scope)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// setter is implemented by both record types.
type setter interface {
	Set(name string, v model.Value) bool
}

// recordBuild carries the state of a single Build call.
type recordBuild struct {
	rec      *model.ProviderRecord
	warnings []Warning

	parts  *rawValue
	mapURL string
	found  []string
}

func (bd *recordBuild) warn(field, raw, reason string) {
	bd.warnings = append(bd.warnings, Warning{Field: field, Raw: raw, Reason: reason})
}

func (bd *recordBuild) apply(f resolvedField) {
	switch f.spec.Kind {
	case model.KindAddressParts:
		v := f.val
		bd.parts = &v
	case model.KindMapURL:
		bd.mapURL = strings.TrimSpace(f.val.text)
	default:
		bd.set(bd.rec, f.spec.Name, f.spec, f.val)
	}
}

// set normalizes val by kind and stores it on target. Undeclared extension
// keys default to string, or to list when a list was supplied.
func (bd *recordBuild) set(target setter, field string, spec model.FieldSpec, val rawValue) {
	kind := spec.Kind
	if !spec.Declared && val.list {
		kind = model.KindList
	}

	if kind == model.KindList {
		var items []string
		if val.list {
			items = normalize.CleanList(val.items)
		} else if !normalize.IsAbsent(val.text) {
			items = normalize.SplitList(val.text)
		}
		target.Set(spec.Name, model.List(items))
		return
	}

	if !val.list {
		target.Set(spec.Name, model.Text(bd.scalar(field, kind, val.text)))
		return
	}
	out := make([]string, 0, len(val.items))
	for _, item := range val.items {
		if s := bd.scalar(field, kind, item); s != "" {
			out = append(out, s)
		}
	}
	target.Set(spec.Name, model.Text(strings.Join(out, listJoin)))
}

// scalar applies the normalizer for kind. Values a normalizer cannot handle
// are kept as given and reported as warnings.
func (bd *recordBuild) scalar(field string, kind model.Kind, raw string) string {
	if normalize.IsAbsent(raw) {
		return ""
	}

	var (
		out    string
		ok     = true
		reason string
	)
	switch kind {
	case model.KindDate:
		out, ok = normalize.Date(raw)
		reason = "unrecognized date format"
	case model.KindNumber:
		out, ok = normalize.Number(raw)
		reason = "not a single whole number"
	case model.KindURI:
		out, ok = normalize.URI(raw)
		reason = "not an absolute http(s) URL"
	case model.KindPhone:
		out, ok = normalize.Phone(raw)
		reason = "not a 10-digit phone number"
	case model.KindCoordinate:
		out, ok = normalize.Coordinate(raw)
		reason = "not a decimal coordinate"
	case model.KindEmail:
		text := raw
		if normalize.LooksLikeHTML(raw) {
			var mailto []string
			text, mailto = normalize.HTMLText(raw)
			if len(mailto) > 0 {
				text = strings.Join(mailto, " ")
			}
		}
		out, ok = normalize.Email(text)
		reason = "no email address found"
	case model.KindAddress:
		text := raw
		if normalize.LooksLikeHTML(raw) {
			var mailto []string
			text, mailto = normalize.HTMLText(raw)
			bd.found = append(bd.found, mailto...)
		}
		out = normalize.Address(text)
	default:
		out = normalize.CleanText(raw)
	}

	if !ok {
		bd.warn(field, raw, reason)
	}
	return out
}

// finishAddress assembles the address from parts, moves embedded emails into
// the email field, and strips the website out of the address text.
func (bd *recordBuild) finishAddress() {
	rec := bd.rec

	if bd.parts != nil {
		var joined string
		if bd.parts.list {
			joined = normalize.JoinAddress(bd.parts.items...)
		} else {
			joined = normalize.Address(bd.parts.text)
		}
		if joined != "" {
			if rec.Address != "" && rec.Address != joined {
				bd.warn("address", rec.Address, "replaced by address_parts")
			}
			rec.Address = joined
		}
	}

	if rec.Address != "" {
		emails, rest := normalize.SplitEmails(rec.Address)
		bd.found = append(bd.found, emails...)
		rec.Address = rest
	}
	if rec.Email == "" && len(bd.found) > 0 {
		rec.Email = strings.Join(normalize.ExtractEmails(strings.Join(bd.found, " ")), ", ")
	}

	if rec.Address != "" && rec.ProviderWebsite != "" {
		rec.Address = normalize.StripAll(rec.Address, websiteNeedles(rec.ProviderWebsite)...)
	}
}

// websiteNeedles returns the forms a website may take inside address text,
// longest first.
func websiteNeedles(site string) []string {
	needles := []string{site}
	bare := strings.TrimPrefix(strings.TrimPrefix(site, "https://"), "http://")
	if bare != site {
		needles = append(needles, bare)
	}
	if trimmed := strings.TrimSuffix(bare, "/"); trimmed != bare {
		needles = append(needles, trimmed)
	}
	return needles
}

// finishCoordinates fills latitude and longitude from a static map URL when
// the adapter gave no explicit values.
func (bd *recordBuild) finishCoordinates() {
	if bd.mapURL == "" || normalize.IsAbsent(bd.mapURL) {
		return
	}
	lat, lon, ok := normalize.MapCenter(bd.mapURL)
	if !ok {
		bd.warn("static_map_url", bd.mapURL, "no center coordinates")
		return
	}
	if bd.rec.Latitude == "" && bd.rec.Longitude == "" {
		bd.rec.Latitude, bd.rec.Longitude = lat, lon
	}
}

// buildInspections normalizes inspection rows, drops rows without a date,
// and removes duplicates keeping the first occurrence.
func (bd *recordBuild) buildInspections(rows [][]resolvedField) {
	if len(rows) == 0 {
		return
	}
	built := make([]model.InspectionRecord, 0, len(rows))
	for i, row := range rows {
		var ins model.InspectionRecord
		for _, f := range row {
			bd.set(&ins, fmt.Sprintf("inspections[%d].%s", i, f.spec.Name), f.spec, f.val)
		}
		if ins.Date == "" {
			bd.warn(fmt.Sprintf("inspections[%d].date", i), "", "inspection without a date dropped")
			continue
		}
		built = append(built, ins)
	}
	bd.rec.Inspections = DedupInspections(built)
}
