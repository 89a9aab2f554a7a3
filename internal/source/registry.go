package source

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-cli/internal/model"
)

//go:embed sources.yaml
var defaultSourcesYAML []byte

// Registry maps source names to their definitions.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Definition
	order   []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]*Definition),
	}
}

// Register adds a validated definition. Names must be unique.
func (r *Registry) Register(d *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.sources[d.Name]; dup {
		return eris.Errorf("source: duplicate source %q", d.Name)
	}
	r.sources[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get returns a source by name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", name)
	}
	return d, nil
}

// All returns all sources in registration order.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

// Select returns sources matching the given criteria.
// If names is non-empty, only those named sources are returned.
// If states is non-empty, only sources for those states are returned.
func (r *Registry) Select(names, states []string) ([]*Definition, error) {
	want := make(map[string]bool, len(states))
	for _, s := range states {
		want[model.NormalizeState(s)] = true
	}
	keep := func(d *Definition) bool {
		return len(want) == 0 || want[d.State]
	}

	var result []*Definition
	if len(names) > 0 {
		for _, name := range names {
			d, err := r.Get(name)
			if err != nil {
				return nil, err
			}
			if keep(d) {
				result = append(result, d)
			}
		}
		return result, nil
	}

	for _, d := range r.All() {
		if keep(d) {
			result = append(result, d)
		}
	}
	return result, nil
}

type sourcesFile struct {
	Sources []*Definition `yaml:"sources"`
}

// Load decodes source definitions from YAML and registers them into r after
// validating each against dict. A nil dict means the default dictionary.
func (r *Registry) Load(rd io.Reader, dict *model.Dictionary) error {
	if dict == nil {
		dict = model.DefaultDictionary()
	}
	var file sourcesFile
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil
		}
		return eris.Wrap(err, "source: decode definitions")
	}
	for _, d := range file.Sources {
		if err := d.Validate(dict); err != nil {
			return err
		}
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile registers the definitions in the YAML file at path.
func (r *Registry) LoadFile(path string, dict *model.Dictionary) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return r.Load(f, dict)
}

// DefaultRegistry returns a registry holding the built-in sources plus any
// definitions from extra files.
func DefaultRegistry(dict *model.Dictionary, extra ...string) (*Registry, error) {
	if dict == nil {
		dict = model.DefaultDictionary()
	}
	r := NewRegistry()
	if err := r.Load(bytes.NewReader(defaultSourcesYAML), dict); err != nil {
		return nil, eris.Wrap(err, "source: built-in definitions")
	}
	for _, path := range extra {
		if err := r.LoadFile(path, dict); err != nil {
			return nil, err
		}
	}
	return r, nil
}
