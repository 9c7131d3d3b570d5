package provider

import (
	"context"
	"fmt"
	"sort"
)

// Definition is the provider block of a collection configuration.
type Definition struct {
	// Name selects the backend ("mongodb", "sqlite").
	Name string
	// Data is the data source: a connection URI for MongoDB, a file
	// path for SQLite.
	Data string
	// Collection is the backend collection or table name.
	Collection string
	// IDField is the identifier field name. Backends that own their
	// identifier (MongoDB's _id) ignore it.
	IDField string
	// DatetimeField is the property used for temporal filtering and
	// datetime sorting. Defaults to "datetime".
	DatetimeField string
}

// DatetimeProperty returns the configured datetime property name,
// falling back to the default.
func (d Definition) DatetimeProperty() string {
	if d.DatetimeField == "" {
		return "datetime"
	}
	return d.DatetimeField
}

// Constructor opens a provider from its definition.
type Constructor func(ctx context.Context, def Definition) (Provider, error)

// Registry maps backend names to provider constructors.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry. Backends are registered
// explicitly by the caller so the registry carries no driver imports.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds or replaces a backend constructor.
func (r *Registry) Register(name string, c Constructor) {
	r.constructors[name] = c
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs a provider for the given definition.
func (r *Registry) Open(ctx context.Context, def Definition) (Provider, error) {
	c, ok := r.constructors[def.Name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", def.Name)
	}
	p, err := c(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("open provider %q: %w", def.Name, err)
	}
	return p, nil
}
