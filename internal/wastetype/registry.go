// Package wastetype handles loading and resolving waste type definitions.
package wastetype

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

const defaultDescription = "Išvežkite bendrų šiukšlių dėžę"

func builtins() []types.WasteTypeDef {
	return []types.WasteTypeDef{
		{Name: types.WasteGeneral, Label: "Bendros atliekos", EventSummary: "Buitinių atliekų surinkimas", EventDescription: defaultDescription},
		{Name: types.WastePlastic, Label: "Plastikas", EventSummary: "Plastikinių atliekų surinkimas", EventDescription: defaultDescription},
		{Name: types.WasteGlass, Label: "Stiklas", EventSummary: "Stiklinių atliekų surinkimas", EventDescription: defaultDescription},
	}
}

// Registry manages waste type definitions. The built-in types are always
// present; YAML files may override them or add new ones.
type Registry struct {
	defs map[types.WasteType]*types.WasteTypeDef
}

// NewRegistry creates a registry seeded with the built-in waste types.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[types.WasteType]*types.WasteTypeDef)}
	for _, d := range builtins() {
		d := d
		r.defs[d.Name] = &d
	}
	return r
}

// LoadDir loads all YAML waste type files from a directory.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading waste type dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		if err := r.LoadFile(path); err != nil {
			return fmt.Errorf("loading waste type %s: %w", path, err)
		}
	}
	return nil
}

// LoadFile loads a single waste type YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	var def types.WasteTypeDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	if def.Name == "" {
		return fmt.Errorf("waste type in %s has no name", path)
	}

	r.defs[def.Name] = &def
	return nil
}

// Get returns a definition by name, or nil if not found.
func (r *Registry) Get(name types.WasteType) *types.WasteTypeDef {
	return r.defs[name]
}

// Known reports whether name is registered.
func (r *Registry) Known(name types.WasteType) bool {
	_, ok := r.defs[name]
	return ok
}

// Register adds a definition directly to the registry (useful for testing).
func (r *Registry) Register(def *types.WasteTypeDef) error {
	if def.Name == "" {
		return fmt.Errorf("waste type has no name")
	}
	r.defs[def.Name] = def
	return nil
}

// Names returns the registered waste type names, sorted.
func (r *Registry) Names() []types.WasteType {
	out := make([]types.WasteType, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Label is the calendar display label for a waste type.
func (r *Registry) Label(name types.WasteType) string {
	if d := r.defs[name]; d != nil && d.Label != "" {
		return d.Label
	}
	return string(name)
}

// Summary is the event title for a pickup of the given waste type.
func (r *Registry) Summary(name types.WasteType) string {
	if d := r.defs[name]; d != nil && d.EventSummary != "" {
		return d.EventSummary
	}
	return string(name) + " surinkimas"
}

// Description is the event body for a pickup of the given waste type.
func (r *Registry) Description(name types.WasteType) string {
	if d := r.defs[name]; d != nil {
		return d.EventDescription
	}
	return ""
}
