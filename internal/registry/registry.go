// Package registry holds every deployed schema, keyed by its immutable id.
//
// Registered schemas are write-once: there is no update or remove. The
// registry is safe for concurrent readers while a single writer deploys.
package registry

import (
	"sync"

	"github.com/roach88/schemahost/internal/fault"
	"github.com/roach88/schemahost/internal/ir"
)

// Descriptor is a registered schema with its members indexed by name.
type Descriptor struct {
	Spec ir.SchemaSpec

	procedures map[string]int
	stubs      map[string]int
	tables     map[string]int
}

// ID returns the schema id.
func (d *Descriptor) ID() ir.SchemaID { return d.Spec.ID }

// Owner returns the identity that deployed the schema.
func (d *Descriptor) Owner() string { return d.Spec.Owner }

// Procedure returns the named procedure.
func (d *Descriptor) Procedure(name string) (ir.ProcedureSig, error) {
	i, ok := d.procedures[name]
	if !ok {
		return ir.ProcedureSig{}, fault.New(fault.ProcedureNotFound,
			"schema %s has no procedure %q", d.Spec.ID, name)
	}
	return d.Spec.Procedures[i], nil
}

// Stub returns the named foreign stub.
func (d *Descriptor) Stub(name string) (ir.ForeignStub, error) {
	i, ok := d.stubs[name]
	if !ok {
		return ir.ForeignStub{}, fault.New(fault.ProcedureNotFound,
			"schema %s declares no foreign stub %q", d.Spec.ID, name)
	}
	return d.Spec.Stubs[i], nil
}

// Table returns the named table.
func (d *Descriptor) Table(name string) (ir.TableDef, bool) {
	i, ok := d.tables[name]
	if !ok {
		return ir.TableDef{}, false
	}
	return d.Spec.Tables[i], true
}

func newDescriptor(spec ir.SchemaSpec) *Descriptor {
	d := &Descriptor{
		Spec:       spec,
		procedures: make(map[string]int, len(spec.Procedures)),
		stubs:      make(map[string]int, len(spec.Stubs)),
		tables:     make(map[string]int, len(spec.Tables)),
	}
	for i, p := range spec.Procedures {
		d.procedures[p.Name] = i
	}
	for i, s := range spec.Stubs {
		d.stubs[s.Name] = i
	}
	for i, t := range spec.Tables {
		d.tables[t.Name] = i
	}
	return d
}

// Registry maps schema ids to descriptors.
type Registry struct {
	mu      sync.RWMutex
	schemas map[ir.SchemaID]*Descriptor
	order   []ir.SchemaID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{schemas: make(map[ir.SchemaID]*Descriptor)}
}

// Register adds a schema. It fails with DuplicateSchema when the id is
// already taken.
func (r *Registry) Register(spec ir.SchemaSpec) (*Descriptor, error) {
	if spec.ID == "" {
		return nil, fault.New(fault.InvalidSchema, "schema %q has no id", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[spec.ID]; exists {
		return nil, fault.New(fault.DuplicateSchema,
			"schema %s (%s by %s) is already deployed", spec.ID, spec.Name, spec.Owner)
	}
	d := newDescriptor(spec)
	r.schemas[spec.ID] = d
	r.order = append(r.order, spec.ID)
	return d, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id ir.SchemaID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[id]
	return ok
}

// Lookup returns the descriptor for id, or UnknownSchema.
func (r *Registry) Lookup(id ir.SchemaID) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.schemas[id]
	if !ok {
		return nil, fault.New(fault.UnknownSchema, "schema %s is not deployed", id)
	}
	return d, nil
}

// List returns every descriptor in deploy order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, len(r.order))
	for i, id := range r.order {
		out[i] = r.schemas[id]
	}
	return out
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
