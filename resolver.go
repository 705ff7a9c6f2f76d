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
	"sort"
	"strings"
)

// Resolver computes attribute values for one entity within one
// substep: lazy evaluation with memoisation, cycle detection through
// the resolving bit array, and a no-handler fast path. A fresh
// resolver exists per entity per substep; cross-entity references
// share resolvers through the substep execution so every attribute is
// computed at most once.
type Resolver struct {
	exec   *substepExec
	entity *Entity

	resolved  []*Value
	have      []bool
	resolving []bool
}

func newResolver(exec *substepExec, e *Entity) *Resolver {
	n := e.proto.NumAttributes()
	return &Resolver{
		exec:      exec,
		entity:    e,
		resolved:  make([]*Value, n),
		have:      make([]bool, n),
		resolving: make([]bool, n),
	}
}

// Resolve returns the value of the attribute slot for this substep,
// computing it on first use. Repeated calls return the identical
// value. The returned value may be nil when the attribute has no
// handler and was never set.
func (r *Resolver) Resolve(attrIdx int) (*Value, error) {
	if r.have[attrIdx] {
		return r.resolved[attrIdx], nil
	}
	if r.resolving[attrIdx] {
		return nil, r.cycleError()
	}
	proto := r.entity.proto
	if !proto.HasHandler(attrIdx, r.exec.substep) {
		v := r.carried(attrIdx)
		r.resolved[attrIdx] = v
		r.have[attrIdx] = true
		return v, nil
	}

	r.resolving[attrIdx] = true
	group := proto.Group(proto.AttributeName(attrIdx), r.exec.substep, r.entity.state())
	var v *Value
	if group != nil {
		scope := &Scope{r: r}
		result, fired, err := group.evaluate(scope)
		if err != nil {
			return nil, locate(err, r.entity, proto.AttributeName(attrIdx), r.exec.substep, r.exec.tick)
		}
		if fired {
			v = result
		} else {
			v = r.carried(attrIdx)
		}
	} else {
		// Handlers exist for this event but none matches the
		// entity's current state; the prior value propagates.
		v = r.carried(attrIdx)
	}
	r.resolving[attrIdx] = false
	r.resolved[attrIdx] = v
	r.have[attrIdx] = true
	return v, nil
}

// ResolveName resolves an attribute by name.
func (r *Resolver) ResolveName(name string) (*Value, error) {
	i, ok := r.entity.proto.AttributeIndex(name)
	if !ok {
		return nil, locate(newError(ErrMissingAttribute,
			"%s %q has no attribute %q", r.entity.proto.Kind(), r.entity.proto.Name(), name),
			r.entity, name, r.exec.substep, r.exec.tick)
	}
	return r.Resolve(i)
}

// carried returns the value an unhandled attribute keeps: the live
// slot if set, otherwise the frozen prior-step value.
func (r *Resolver) carried(attrIdx int) *Value {
	if v := r.entity.slots[attrIdx]; v != nil {
		return v
	}
	if prior := r.exec.prior.Entity(r.entity.id); prior != nil {
		return prior.Value(attrIdx)
	}
	return nil
}

// prior reads the frozen prior-step value of an attribute. It never
// recurses into resolution.
func (r *Resolver) prior(name string) (*Value, error) {
	i, ok := r.entity.proto.AttributeIndex(name)
	if !ok {
		return nil, newError(ErrMissingAttribute,
			"%s %q has no attribute %q", r.entity.proto.Kind(), r.entity.proto.Name(), name)
	}
	if prior := r.exec.prior.Entity(r.entity.id); prior != nil {
		return prior.Value(i), nil
	}
	// An entity created this substep has no prior view; its live
	// slots (written by its init handlers) stand in.
	return r.entity.slots[i], nil
}

// cycleError names every attribute of this entity whose resolution is
// in progress, which includes the attributes of the cycle.
func (r *Resolver) cycleError() error {
	var names []string
	for i, busy := range r.resolving {
		if busy {
			names = append(names, r.entity.proto.AttributeName(i))
		}
	}
	sort.Strings(names)
	return locate(newError(ErrCircularDependency,
		"circular dependency among attributes %s", strings.Join(names, ", ")),
		r.entity, strings.Join(names, ", "), r.exec.substep, r.exec.tick)
}

// commit writes every resolved value into the live entity's slot
// array.
func (r *Resolver) commit() {
	for i, ok := range r.have {
		if ok && r.resolved[i] != nil {
			r.entity.slots[i] = r.resolved[i]
		}
	}
}
