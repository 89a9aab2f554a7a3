package model

import (
	"bytes"
	_ "embed"
	"io"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Kind is the semantic type of a normalized field.
type Kind string

// Field kinds. The last three are structural: they are consumed by the
// record builder rather than stored verbatim.
const (
	KindString       Kind = "string"
	KindDate         Kind = "date"
	KindNumber       Kind = "number"
	KindList         Kind = "list"
	KindURI          Kind = "uri"
	KindPhone        Kind = "phone"
	KindEmail        Kind = "email"
	KindAddress      Kind = "address"
	KindCoordinate   Kind = "coordinate"
	KindInspections  Kind = "inspections"
	KindAddressParts Kind = "address_parts"
	KindMapURL       Kind = "map_url"
)

func (k Kind) valid() bool {
	switch k {
	case KindString, KindDate, KindNumber, KindList, KindURI,
		KindPhone, KindEmail, KindAddress, KindCoordinate,
		KindInspections, KindAddressParts, KindMapURL:
		return true
	}
	return false
}

// Structural reports whether the kind is consumed by the builder instead of
// being stored under its own name.
func (k Kind) Structural() bool {
	return k == KindInspections || k == KindAddressParts || k == KindMapURL
}

// Scope says which record type a field belongs to.
type Scope string

// Field scopes.
const (
	ScopeProvider   Scope = "provider"
	ScopeInspection Scope = "inspection"
)

// FieldSpec describes one normalized field.
type FieldSpec struct {
	Name        string `yaml:"name" json:"name"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Scope       Scope  `yaml:"scope" json:"scope"`
	State       string `yaml:"state,omitempty" json:"state,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Declared is false for extension keys accepted by namespace convention only.
	Declared bool `yaml:"-" json:"declared"`
}

// IsExtension reports whether the field is namespaced to a single state.
func (f FieldSpec) IsExtension() bool {
	return f.State != ""
}

// Dictionary is an indexed collection of field specs.
type Dictionary struct {
	Fields     []FieldSpec
	provider   map[string]*FieldSpec
	inspection map[string]*FieldSpec
	required   []*FieldSpec
}

type dictionaryFile struct {
	Fields []FieldSpec `yaml:"fields"`
}

//go:embed fields.yaml
var defaultFieldsYAML []byte

var defaultDictionary = sync.OnceValue(func() *Dictionary {
	d, err := LoadDictionary(bytes.NewReader(defaultFieldsYAML))
	if err != nil {
		panic(eris.ToString(err, true))
	}
	return d
})

// DefaultDictionary returns the dictionary compiled into the binary.
func DefaultDictionary() *Dictionary {
	return defaultDictionary()
}

// LoadDictionary parses a YAML field list and indexes it.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	var f dictionaryFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, eris.Wrap(err, "dictionary: decode yaml")
	}
	return NewDictionary(f.Fields)
}

// NewDictionary validates and indexes the given fields. Scope defaults to
// provider and extension state codes are normalized.
func NewDictionary(fields []FieldSpec) (*Dictionary, error) {
	d := &Dictionary{
		Fields:     make([]FieldSpec, len(fields)),
		provider:   make(map[string]*FieldSpec, len(fields)),
		inspection: make(map[string]*FieldSpec),
	}
	copy(d.Fields, fields)

	for i := range d.Fields {
		f := &d.Fields[i]
		f.Declared = true
		if f.Scope == "" {
			f.Scope = ScopeProvider
		}
		f.State = NormalizeState(f.State)

		if f.Name == "" {
			return nil, eris.Errorf("dictionary: field %d has no name", i)
		}
		if !f.Kind.valid() {
			return nil, eris.Errorf("dictionary: field %q has unknown kind %q", f.Name, f.Kind)
		}
		if f.State != "" {
			if !IsSupportedState(f.State) {
				return nil, eris.Errorf("dictionary: field %q names unsupported state %q", f.Name, f.State)
			}
			if !strings.HasPrefix(f.Name, ExtensionPrefix(f.State)) {
				return nil, eris.Errorf("dictionary: extension field %q must start with %q", f.Name, ExtensionPrefix(f.State))
			}
		} else if !f.Kind.Structural() && !hasSlot(f.Scope, f.Name) {
			return nil, eris.Errorf("dictionary: common field %q has no record slot", f.Name)
		}

		index := d.provider
		switch f.Scope {
		case ScopeProvider:
		case ScopeInspection:
			index = d.inspection
		default:
			return nil, eris.Errorf("dictionary: field %q has unknown scope %q", f.Name, f.Scope)
		}
		if _, dup := index[f.Name]; dup {
			return nil, eris.Errorf("dictionary: duplicate %s field %q", f.Scope, f.Name)
		}
		index[f.Name] = f
		if f.Required {
			d.required = append(d.required, f)
		}
	}
	return d, nil
}

func hasSlot(scope Scope, name string) bool {
	if scope == ScopeInspection {
		return IsInspectionStructField(name)
	}
	return IsProviderStructField(name)
}

// Lookup returns the declared spec for name within scope, or nil.
func (d *Dictionary) Lookup(scope Scope, name string) *FieldSpec {
	if scope == ScopeInspection {
		return d.inspection[name]
	}
	return d.provider[name]
}

// IsCommon reports whether name is a declared provider field shared by all
// states.
func (d *Dictionary) IsCommon(name string) bool {
	f := d.provider[name]
	return f != nil && f.State == ""
}

// Kind returns the declared kind of a provider field.
func (d *Dictionary) Kind(name string) (Kind, bool) {
	f := d.provider[name]
	if f == nil {
		return "", false
	}
	return f.Kind, true
}

// Required returns the required provider fields.
func (d *Dictionary) Required() []*FieldSpec {
	return d.required
}

// Resolve finds the spec that governs key on a record from state. Declared
// fields resolve to their spec. Extension fields of another state never
// resolve. Undeclared keys in the state's own namespace resolve to a string
// field with Declared unset.
func (d *Dictionary) Resolve(scope Scope, state, key string) (FieldSpec, bool) {
	state = NormalizeState(state)
	if f := d.Lookup(scope, key); f != nil {
		if f.State != "" && f.State != state {
			return FieldSpec{}, false
		}
		return *f, true
	}
	if state != "" && ExtensionState(key) == state {
		return FieldSpec{Name: key, Kind: KindString, Scope: scope, State: state}, true
	}
	return FieldSpec{}, false
}

// Columns returns the stored (non-structural) fields of scope in declaration
// order: common fields first, then extensions.
func (d *Dictionary) Columns(scope Scope) []FieldSpec {
	var common, ext []FieldSpec
	for _, f := range d.Fields {
		if f.Scope != scope || f.Kind.Structural() {
			continue
		}
		if f.State == "" {
			common = append(common, f)
		} else {
			ext = append(ext, f)
		}
	}
	return append(common, ext...)
}

// ExtensionFields returns the declared extension fields for state.
func (d *Dictionary) ExtensionFields(state string) []FieldSpec {
	state = NormalizeState(state)
	var out []FieldSpec
	for _, f := range d.Fields {
		if f.State == state {
			out = append(out, f)
		}
	}
	return out
}
