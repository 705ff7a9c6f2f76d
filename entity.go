/*
Copyright © 2024 the Josh authors.
This file is part of Josh.

Josh is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Josh is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Josh.  If not, see <http://www.gnu.org/licenses/>.
*/

package josh

import "fmt"

// Substep is one of the four phases of a tick.
type Substep int

const (
	SubstepInit Substep = iota
	SubstepStart
	SubstepStep
	SubstepEnd
)

// Substeps lists the phases in execution order.
var Substeps = [...]Substep{SubstepInit, SubstepStart, SubstepStep, SubstepEnd}

const numSubsteps = len(Substeps)

func (s Substep) String() string {
	switch s {
	case SubstepInit:
		return "init"
	case SubstepStart:
		return "start"
	case SubstepStep:
		return "step"
	case SubstepEnd:
		return "end"
	default:
		return fmt.Sprintf("substep(%d)", int(s))
	}
}

// EntityKind discriminates entity prototypes.
type EntityKind int

const (
	SimulationKind EntityKind = iota
	PatchKind
	AgentKind
	DisturbanceKind
	ResourceKind
)

func (k EntityKind) String() string {
	switch k {
	case SimulationKind:
		return "simulation"
	case PatchKind:
		return "patch"
	case AgentKind:
		return "organism"
	case DisturbanceKind:
		return "disturbance"
	case ResourceKind:
		return "external resource"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// spatial reports whether entities of this kind carry a grid location.
func (k EntityKind) spatial() bool {
	return k == PatchKind || k == AgentKind || k == DisturbanceKind
}

// stateAttribute is the attribute consulted when selecting
// state-qualified handler groups.
const stateAttribute = "state"

// EventKey identifies the event a handler group responds to. State is
// empty for stateless groups.
type EventKey struct {
	Attribute string
	Substep   Substep
	State     string
}

// PrototypeBuilder accumulates the declarations of one entity type.
// The front-end compiler drives it; Build freezes the result.
type PrototypeBuilder struct {
	name     string
	kind     EntityKind
	attrs    []string
	attrSet  map[string]bool
	handlers map[EventKey]*HandlerGroup
}

// NewPrototype starts building a prototype for the named entity type.
func NewPrototype(name string, kind EntityKind) *PrototypeBuilder {
	return &PrototypeBuilder{
		name:     name,
		kind:     kind,
		attrSet:  make(map[string]bool),
		handlers: make(map[EventKey]*HandlerGroup),
	}
}

// AddAttribute declares an attribute. Declaration order determines
// slot order. Redeclaring a name is a no-op.
func (b *PrototypeBuilder) AddAttribute(name string) *PrototypeBuilder {
	if !b.attrSet[name] {
		b.attrSet[name] = true
		b.attrs = append(b.attrs, name)
	}
	return b
}

// AddHandler appends a handler to the group for its event key,
// preserving declaration order. The handler's attribute must have been
// declared.
func (b *PrototypeBuilder) AddHandler(h *Handler) error {
	if !b.attrSet[h.Attribute] {
		return newError(ErrMissingAttribute,
			"handler for undeclared attribute %q on %q", h.Attribute, b.name)
	}
	key := EventKey{Attribute: h.Attribute, Substep: h.Substep, State: h.State}
	g, ok := b.handlers[key]
	if !ok {
		g = &HandlerGroup{State: h.State}
		b.handlers[key] = g
	}
	g.Handlers = append(g.Handlers, h)
	return nil
}

// Build freezes the prototype and precomputes its lookup tables.
func (b *PrototypeBuilder) Build() (*Prototype, error) {
	p := &Prototype{
		name:      b.name,
		kind:      b.kind,
		attrs:     b.attrs,
		attrIndex: make(map[string]int, len(b.attrs)),
		handlers:  b.handlers,
	}
	for i, a := range b.attrs {
		p.attrIndex[a] = i
	}
	p.hasHandler = make([][numSubsteps]bool, len(b.attrs))
	for key := range b.handlers {
		i, ok := p.attrIndex[key.Attribute]
		if !ok {
			return nil, newError(ErrMissingAttribute,
				"handler for undeclared attribute %q on %q", key.Attribute, b.name)
		}
		p.hasHandler[i][key.Substep] = true
	}
	return p, nil
}

// Prototype is the immutable shared schema of one entity type: its
// ordered attribute set and the handler groups keyed by event. All
// derived tables are computed once in Build and read without
// synchronisation afterwards.
type Prototype struct {
	name      string
	kind      EntityKind
	attrs     []string
	attrIndex map[string]int
	handlers  map[EventKey]*HandlerGroup

	// hasHandler[attrIdx][substep] is false when the attribute is
	// inert for that substep regardless of state, letting the
	// resolver skip handler lookup entirely.
	hasHandler [][numSubsteps]bool
}

// Name returns the entity type name.
func (p *Prototype) Name() string { return p.name }

// Kind returns the entity kind.
func (p *Prototype) Kind() EntityKind { return p.kind }

// NumAttributes returns the number of declared attributes.
func (p *Prototype) NumAttributes() int { return len(p.attrs) }

// AttributeIndex translates an attribute name to its slot index.
func (p *Prototype) AttributeIndex(name string) (int, bool) {
	i, ok := p.attrIndex[name]
	return i, ok
}

// AttributeName is the reverse of AttributeIndex.
func (p *Prototype) AttributeName(i int) string { return p.attrs[i] }

// Attributes returns the declared attribute names in order.
func (p *Prototype) Attributes() []string { return p.attrs }

// HasHandler reports whether any handler group exists for the
// attribute in the given substep.
func (p *Prototype) HasHandler(attrIdx int, s Substep) bool {
	return p.hasHandler[attrIdx][s]
}

// Group returns the handler group for an event. A state-qualified
// group strictly shadows the stateless group when state is nonempty
// and a qualified group exists.
func (p *Prototype) Group(attribute string, s Substep, state string) *HandlerGroup {
	if state != "" {
		if g, ok := p.handlers[EventKey{Attribute: attribute, Substep: s, State: state}]; ok {
			return g
		}
	}
	return p.handlers[EventKey{Attribute: attribute, Substep: s}]
}

// EntityRef references an entity by arena ID. Prior marks references
// that resolve into the frozen prior-step arena instead of the live
// one.
type EntityRef struct {
	ID    int
	Prior bool
}

// Entity is one instance of a prototype: a dense value slot per
// declared attribute plus kind-specific side data. Slots are exclusive
// to the owning entity during a substep; all cross-entity access goes
// through the resolver protocol.
type Entity struct {
	id    int
	proto *Prototype
	slots []*Value

	// Grid location, spatial kinds only.
	x, y int
	// Owning patch arena ID for agents and disturbances, -1 otherwise.
	patchID int

	// Live agents on this patch, insertion ordered, patch kind only.
	agents *entityList

	// dead marks entities pruned out of their patch's agent list.
	// The arena keeps them so IDs stay stable.
	dead bool

	// Geospatial source, resource kind only.
	resource ExternalResource
}

func newEntity(id int, proto *Prototype) *Entity {
	e := &Entity{
		id:      id,
		proto:   proto,
		slots:   make([]*Value, proto.NumAttributes()),
		patchID: -1,
	}
	if proto.kind == PatchKind {
		e.agents = &entityList{}
	}
	return e
}

// ID returns the entity's arena ID.
func (e *Entity) ID() int { return e.id }

// Prototype returns the shared schema.
func (e *Entity) Prototype() *Prototype { return e.proto }

// Location returns the grid coordinate of a spatial entity.
func (e *Entity) Location() (x, y int) { return e.x, e.y }

// SetLocation places a spatial entity on the grid.
func (e *Entity) SetLocation(x, y int) {
	e.x, e.y = x, y
}

// PatchID returns the arena ID of the owning patch, or -1.
func (e *Entity) PatchID() int { return e.patchID }

// Slot returns the current value of the attribute slot, which may be
// nil when the attribute is unset.
func (e *Entity) Slot(i int) *Value { return e.slots[i] }

// SetSlot writes an attribute slot.
func (e *Entity) SetSlot(i int, v *Value) { e.slots[i] = v }

// AttributeValue looks up an attribute slot by name.
func (e *Entity) AttributeValue(name string) (*Value, bool) {
	i, ok := e.proto.AttributeIndex(name)
	if !ok || e.slots[i] == nil {
		return nil, false
	}
	return e.slots[i], true
}

// state returns the entity's current state tag, or "".
func (e *Entity) state() string {
	v, ok := e.AttributeValue(stateAttribute)
	if !ok {
		return ""
	}
	s, err := v.Str()
	if err != nil {
		return ""
	}
	return s
}

// Resource returns the geospatial source of a resource entity.
func (e *Entity) Resource() ExternalResource { return e.resource }
