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

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/ctessum/geom"
)

// QueryForm selects the neighbourhood shape of a within query.
type QueryForm int

const (
	QueryRadial QueryForm = iota
	QuerySquare
)

// TimeRef selects which time-step view a within query resolves
// against.
type TimeRef int

const (
	AtCurrent TimeRef = iota
	AtPrior
)

// Scope is the namespace a handler body executes in. It exposes the
// reference forms of the modelling language; every name falls into one
// of the current/prior/here/meta/external families plus the spatial
// within query and entity creation.
type Scope struct {
	r *Resolver
}

// Entity returns the entity the handler runs for.
func (s *Scope) Entity() *Entity { return s.r.entity }

// Tick returns the tick being computed.
func (s *Scope) Tick() int { return s.r.exec.tick }

// Rand returns the replicate's seeded random stream.
func (s *Scope) Rand() *rand.Rand { return s.r.exec.sim.rng }

// Current resolves an attribute of the current entity within this
// substep, recursively computing it if needed.
func (s *Scope) Current(name string) (*Value, error) {
	return s.r.ResolveName(name)
}

// Prior reads the attribute value the entity had at the completion of
// the previous substep. It never observes updates from the current
// substep, even transitively.
func (s *Scope) Prior(name string) (*Value, error) {
	v, err := s.r.prior(name)
	if err != nil {
		return nil, locate(err, s.r.entity, name, s.r.exec.substep, s.r.exec.tick)
	}
	return v, nil
}

// Here resolves an attribute on the patch containing the current
// entity.
func (s *Scope) Here(name string) (*Value, error) {
	e := s.r.entity
	patch := e
	if e.proto.kind != PatchKind {
		patch = s.r.exec.ts.Entity(e.patchID)
		if patch == nil {
			return nil, locate(newError(ErrMissingAttribute,
				"%s %d is not on a patch", e.proto.Kind(), e.id),
				e, name, s.r.exec.substep, s.r.exec.tick)
		}
	}
	return s.r.exec.resolverFor(patch).ResolveName(name)
}

// Meta resolves a simulation-scope attribute.
func (s *Scope) Meta(name string) (*Value, error) {
	return s.r.exec.resolverFor(s.r.exec.ts.simEntity).ResolveName(name)
}

// External samples the named geospatial resource at the current
// entity's location. A missing value yields an empty distribution so
// handlers that tolerate emptiness keep running.
func (s *Scope) External(name string) (*Value, error) {
	res := s.r.exec.ts.resources[name]
	if res == nil {
		return nil, locate(newError(ErrMissingAttribute,
			"no external resource %q", name),
			s.r.entity, name, s.r.exec.substep, s.r.exec.tick)
	}
	x, y := s.entityLocation()
	v, err := res.Resource().SampleAt(geom.Point{X: float64(x), Y: float64(y)})
	if err != nil {
		return nil, locate(err, s.r.entity, name, s.r.exec.substep, s.r.exec.tick)
	}
	if v == nil {
		return NewRealized(nil, Dimless), nil
	}
	return v, nil
}

// entityLocation is the grid coordinate of the current entity, falling
// back to its patch for non-spatial kinds.
func (s *Scope) entityLocation() (int, int) {
	e := s.r.entity
	if e.proto.kind.spatial() {
		return e.Location()
	}
	if p := s.r.exec.ts.Entity(e.patchID); p != nil {
		return p.Location()
	}
	return 0, 0
}

// Within answers a spatial neighbourhood query centred on the current
// entity, returning a realized distribution of entity references. The
// radius is a distance in meters (converted through the program's unit
// graph if needed) and is scaled to grid cells by the configured cell
// size. The reference targets resolve against the current or the
// frozen prior view according to at. Results are ordered by arena ID
// so repeated queries are deterministic.
func (s *Scope) Within(radius *Value, form QueryForm, at TimeRef) (*Value, error) {
	meters := MustParseUnits("m")
	if !radius.Units().IsDimless() && !radius.Units().Equal(meters) {
		conv, err := s.r.exec.sim.program.Converter.Convert(radius, meters)
		if err != nil {
			return nil, locate(err, s.r.entity, "", s.r.exec.substep, s.r.exec.tick)
		}
		radius = conv
	}
	r, err := radius.Float64()
	if err != nil {
		return nil, locate(err, s.r.entity, "", s.r.exec.substep, s.r.exec.tick)
	}
	r /= s.r.exec.sim.Config.CellSize
	x, y := s.entityLocation()
	center := geom.Point{X: float64(x), Y: float64(y)}
	var patches []*Entity
	switch form {
	case QueryRadial:
		patches = s.r.exec.ts.patches.Within(Circle{Center: center, Radius: r})
	case QuerySquare:
		patches = s.r.exec.ts.patches.SquareQuery(Square{Center: center, Width: 2 * r})
	}
	sort.Slice(patches, func(i, j int) bool { return patches[i].id < patches[j].id })
	refs := make([]*Value, len(patches))
	for i, p := range patches {
		refs[i] = NewRef(EntityRef{ID: p.id, Prior: at == AtPrior})
	}
	return NewRealized(refs, Dimless), nil
}

// RefAttribute projects an attribute through an entity reference.
// Current references resolve through the target's resolver; prior
// references read the frozen arena directly.
func (s *Scope) RefAttribute(ref EntityRef, name string) (*Value, error) {
	if ref.Prior {
		snap := s.r.exec.prior.Entity(ref.ID)
		if snap == nil {
			return nil, newError(ErrMissingAttribute,
				"entity %d has no prior view", ref.ID)
		}
		v, ok := snap.AttributeValue(name)
		if !ok {
			return nil, newError(ErrMissingAttribute,
				"%s %q has no attribute %q", snap.proto.Kind(), snap.proto.Name(), name)
		}
		return v, nil
	}
	target := s.r.exec.ts.Entity(ref.ID)
	if target == nil {
		return nil, newError(ErrMissingAttribute, "no entity %d", ref.ID)
	}
	return s.r.exec.resolverFor(target).ResolveName(name)
}

// Create instantiates count fresh entities from the named prototype on
// the current entity's patch, runs their init handlers immediately,
// and returns them as a realized distribution of references.
func (s *Scope) Create(count *Value, protoName string) (*Value, error) {
	n, err := count.Int()
	if err != nil {
		return nil, locate(err, s.r.entity, "", s.r.exec.substep, s.r.exec.tick)
	}
	proto := s.r.exec.sim.program.Prototypes[protoName]
	if proto == nil {
		return nil, locate(newError(ErrMissingAttribute,
			"no entity type %q", protoName),
			s.r.entity, "", s.r.exec.substep, s.r.exec.tick)
	}
	x, y := s.entityLocation()
	patch := s.r.exec.ts.patches.At(x, y)
	refs := make([]*Value, n)
	for i := 0; i < n; i++ {
		e := s.r.exec.ts.newEntity(proto)
		if proto.kind.spatial() {
			e.SetLocation(x, y)
		}
		if patch != nil && (proto.kind == AgentKind || proto.kind == DisturbanceKind) {
			e.patchID = patch.id
			patch.agents.add(e)
		}
		if err := s.r.exec.runInit(e); err != nil {
			return nil, err
		}
		refs[i] = NewRef(EntityRef{ID: e.id})
	}
	return NewRealized(refs, Dimless), nil
}

// Lookup resolves a dotted reference from a compiled expression:
// "prior.age", "here.grassCover", "meta.rainfall", "external.elevation"
// or a bare current-scope attribute name.
func (s *Scope) Lookup(name string) (*Value, error) {
	family, rest := "", name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		family, rest = name[:i], name[i+1:]
	}
	switch family {
	case "":
		return s.Current(rest)
	case "current":
		return s.Current(rest)
	case "prior":
		return s.Prior(rest)
	case "here":
		return s.Here(rest)
	case "meta":
		return s.Meta(rest)
	case "external":
		return s.External(rest)
	default:
		// A dot inside an undeclared family is still a plain
		// attribute name.
		return s.Current(name)
	}
}
