package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is the immutable set of registered plugin descriptors.
type Registry struct {
	byName  map[string]Descriptor
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewRegistry validates the descriptors, compiles their argument schemas,
// and returns a registry. Duplicate names are an error.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Descriptor, len(descs)),
		schemas: make(map[string]*jsonschema.Schema, len(descs)),
	}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("plugin %q registered twice", d.Name)
		}
		schema, err := compileSchema(d)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", d.Name, err)
		}
		d.Parameters = append([]Parameter(nil), d.Parameters...)
		r.byName[d.Name] = d
		r.schemas[d.Name] = schema
		r.order = append(r.order, d.Name)
	}
	sort.Strings(r.order)
	return r, nil
}

func compileSchema(d Descriptor) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(d.Schema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := d.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns all registered plugin names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Descriptors returns every descriptor in name order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	return len(r.order)
}

// ValidateArguments checks args against the named plugin's schema. Failures
// wrap ErrInvalidArguments, or ErrNotFound for unknown plugins.
func (r *Registry) ValidateArguments(name string, args json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
