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
	"math"
	"testing"
)

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b, tolerance float64) bool {
	if math.Abs(a-b) > tolerance {
		return true
	}
	return false
}

func mustProto(t *testing.T, b *PrototypeBuilder) *Prototype {
	t.Helper()
	p, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mustAddHandler(t *testing.T, b *PrototypeBuilder, h *Handler) {
	t.Helper()
	if err := b.AddHandler(h); err != nil {
		t.Fatal(err)
	}
}

// constant returns a handler body producing a fixed value.
func constant(v *Value) Callable {
	return func(*Scope) (*Value, error) { return v, nil }
}

// emptySimProto is a simulation prototype with no attributes.
func emptySimProto(t *testing.T) *Prototype {
	t.Helper()
	return mustProto(t, NewPrototype("sim", SimulationKind))
}

func newTestProgram(t *testing.T, sim, patch *Prototype, others ...*Prototype) *Program {
	t.Helper()
	p := &Program{
		Simulation: sim,
		Patch:      patch,
		Prototypes: map[string]*Prototype{sim.Name(): sim, patch.Name(): patch},
		Converter:  NewConverter(),
	}
	StandardConversions(p.Converter)
	for _, o := range others {
		p.Prototypes[o.Name()] = o
	}
	return p
}

func testConfig(gridLow, gridHigh, stepsLow, stepsHigh int) SimulationConfig {
	return SimulationConfig{
		GridLow:   gridLow,
		GridHigh:  gridHigh,
		CellSize:  1000,
		StepsLow:  stepsLow,
		StepsHigh: stepsHigh,
		Seed:      1,
	}
}

func newTestSim(t *testing.T, cfg SimulationConfig, program *Program) *Simulation {
	t.Helper()
	s, err := NewSimulation(cfg, program)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// testExec builds a substep execution context over the simulation's
// current arena, for tests that drive the resolver directly.
func testExec(s *Simulation, substep Substep, tick int) *substepExec {
	return &substepExec{
		sim:       s,
		ts:        s.current,
		prior:     s.prior,
		substep:   substep,
		tick:      tick,
		resolvers: make(map[int]*Resolver),
	}
}
