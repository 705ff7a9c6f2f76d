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

// entityRef holds an entity and its neighbours in an entityList.
type entityRef struct {
	*Entity
	next, previous *entityRef
}

// entityList is a linked list of entities with O(1) removal. Agents
// joining a patch append to the tail so iteration follows insertion
// order, which the stepper's determinism contract depends on.
type entityList struct {
	first, last *entityRef
	len         int
	index       map[*Entity]*entityRef
}

// array returns the entities in insertion order.
func (l *entityList) array() []*Entity {
	o := make([]*Entity, 0, l.len)
	for c := l.first; c != nil; c = c.next {
		o = append(o, c.Entity)
	}
	return o
}

// add appends the entity to the end of the list.
func (l *entityList) add(e *Entity) *entityRef {
	cc := &entityRef{Entity: e}
	if l.last != nil {
		l.last.next = cc
		cc.previous = l.last
	} else {
		l.first = cc
	}
	l.last = cc
	l.len++

	if l.index == nil {
		l.index = make(map[*Entity]*entityRef)
	}
	l.index[e] = cc
	return cc
}

// delete removes this entityRef from the list.
func (l *entityList) delete(c *entityRef) {
	if c.previous != nil {
		c.previous.next = c.next
	} else {
		l.first = c.next
	}
	if c.next != nil {
		c.next.previous = c.previous
	} else {
		l.last = c.previous
	}
	c.previous = nil
	c.next = nil
	l.len--
	delete(l.index, c.Entity)
}

// deleteEntity removes this entity from the list.
func (l *entityList) deleteEntity(e *Entity) {
	cc, ok := l.index[e]
	if !ok {
		panic("tried to delete entity that is not in list")
	}
	l.delete(cc)
}

func (l *entityList) String() string {
	s := ""
	for c := l.first; c != nil; c = c.next {
		if c != l.first {
			s += "\n"
		}
		s += fmt.Sprintf("%s %d", c.Prototype().Name(), c.ID())
	}
	return s
}
