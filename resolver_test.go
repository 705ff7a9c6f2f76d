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
	"context"
	"math/rand"
	"strings"
	"testing"
)

// Within one substep, repeated resolution of the same attribute must
// return the identical value.
func TestResolveIdempotent(t *testing.T) {
	calls := 0
	b := NewPrototype("p", PatchKind).AddAttribute("a")
	mustAddHandler(t, b, &Handler{
		Attribute: "a",
		Substep:   SubstepStep,
		Body: func(*Scope) (*Value, error) {
			calls++
			return NewScalar(float64(calls), Dimless), nil
		},
	})
	patch := mustProto(t, b)
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))

	exec := testExec(s, SubstepStep, 1)
	r := exec.resolverFor(s.Patches()[0])
	v1, err := r.Resolve(0)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := r.Resolve(0)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Errorf("repeated resolution returned distinct values")
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

// A dependency cycle between two attributes must fail with a circular
// dependency error naming both, leaving no partial writes behind.
func TestCircularDependency(t *testing.T) {
	b := NewPrototype("p", PatchKind).AddAttribute("a").AddAttribute("b")
	mustAddHandler(t, b, &Handler{
		Attribute: "a",
		Substep:   SubstepStep,
		Body: func(s *Scope) (*Value, error) {
			v, err := s.Current("b")
			if err != nil {
				return nil, err
			}
			return v.Add(NewScalar(1, Dimless))
		},
	})
	mustAddHandler(t, b, &Handler{
		Attribute: "b",
		Substep:   SubstepStep,
		Body: func(s *Scope) (*Value, error) {
			v, err := s.Current("a")
			if err != nil {
				return nil, err
			}
			return v.Add(NewScalar(1, Dimless))
		},
	})
	patch := mustProto(t, b)
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))

	p := s.Patches()[0]
	exec := testExec(s, SubstepStep, 1)
	_, err := exec.resolverFor(p).Resolve(0)
	if !IsKind(err, ErrCircularDependency) {
		t.Fatalf("got %v, want CircularDependency", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "a") || !strings.Contains(msg, "b") {
		t.Errorf("error %q should reference both attributes", msg)
	}
	if p.Slot(0) != nil || p.Slot(1) != nil {
		t.Errorf("cycle left partial writes in the slot array")
	}
}

// prior.X inside substep s must read the value X had at the completion
// of substep s-1, never updates from the current substep.
func TestPriorReadsPreviousSubstep(t *testing.T) {
	one := NewScalar(1, Dimless)
	b := NewPrototype("p", PatchKind).AddAttribute("x").AddAttribute("y")
	for _, sub := range []Substep{SubstepStart, SubstepStep, SubstepEnd} {
		mustAddHandler(t, b, &Handler{
			Attribute: "x",
			Substep:   sub,
			Body: func(s *Scope) (*Value, error) {
				v, err := s.Prior("x")
				if err != nil {
					return nil, err
				}
				return v.Add(one)
			},
		})
	}
	mustAddHandler(t, b, &Handler{
		Attribute: "x",
		Substep:   SubstepInit,
		Body:      constant(NewScalar(0, Dimless)),
	})
	// y is computed in the same substep x increments; its prior.x
	// read must not observe x's current-substep update.
	mustAddHandler(t, b, &Handler{
		Attribute: "y",
		Substep:   SubstepStep,
		Body: func(s *Scope) (*Value, error) {
			return s.Prior("x")
		},
	})
	patch := mustProto(t, b)
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	p := s.Patches()[0]
	x, _ := p.AttributeValue("x")
	if f, _ := x.Float64(); f != 3 {
		t.Errorf("x after one tick of start/step/end: got %g, want 3", f)
	}
	// During step, x's prior value was its post-start value 1.
	y, _ := p.AttributeValue("y")
	if f, _ := y.Float64(); f != 1 {
		t.Errorf("y (prior.x during step): got %g, want 1", f)
	}
}

// Guards run in declaration order; the first that holds supplies the
// value, and an absent guard always fires.
func TestGuardDeclarationOrder(t *testing.T) {
	b := NewPrototype("p", PatchKind).AddAttribute("a")
	mustAddHandler(t, b, &Handler{
		Attribute: "a",
		Substep:   SubstepStep,
		Guard:     constant(NewBool(false)),
		Body:      constant(NewScalar(1, Dimless)),
	})
	mustAddHandler(t, b, &Handler{
		Attribute: "a",
		Substep:   SubstepStep,
		Guard:     constant(NewBool(true)),
		Body:      constant(NewScalar(2, Dimless)),
	})
	mustAddHandler(t, b, &Handler{
		Attribute: "a",
		Substep:   SubstepStep,
		Body:      constant(NewScalar(3, Dimless)),
	})
	patch := mustProto(t, b)
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))
	exec := testExec(s, SubstepStep, 1)
	v, err := exec.resolverFor(s.Patches()[0]).Resolve(0)
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := v.Float64(); f != 2 {
		t.Errorf("got %g, want 2 (first matching guard)", f)
	}
}

// When no guard fires, the prior value propagates unchanged.
func TestNoGuardFiresKeepsPrior(t *testing.T) {
	b := NewPrototype("p", PatchKind).AddAttribute("a")
	mustAddHandler(t, b, &Handler{
		Attribute: "a",
		Substep:   SubstepStep,
		Guard:     constant(NewBool(false)),
		Body:      constant(NewScalar(99, Dimless)),
	})
	patch := mustProto(t, b)
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))
	p := s.Patches()[0]
	p.SetSlot(0, NewScalar(7, Dimless))
	s.prior = freeze(s.current)

	exec := testExec(s, SubstepStep, 1)
	v, err := exec.resolverFor(p).Resolve(0)
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := v.Float64(); f != 7 {
		t.Errorf("got %g, want the prior value 7", f)
	}
}

// A state-qualified handler group strictly shadows the stateless group
// when the entity's state matches.
func TestStateQualifiedShadowing(t *testing.T) {
	b := NewPrototype("tree", AgentKind).
		AddAttribute(stateAttribute).
		AddAttribute("growth")
	mustAddHandler(t, b, &Handler{
		Attribute: "growth",
		Substep:   SubstepStep,
		Body:      constant(NewScalar(1, Dimless)),
	})
	mustAddHandler(t, b, &Handler{
		Attribute: "growth",
		Substep:   SubstepStep,
		State:     "dormant",
		Body:      constant(NewScalar(0, Dimless)),
	})
	agent := mustProto(t, b)
	patch := mustProto(t, NewPrototype("p", PatchKind))
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch, agent))

	e := s.current.newEntity(agent)
	e.SetSlot(0, NewString("dormant"))
	s.prior = freeze(s.current)
	exec := testExec(s, SubstepStep, 1)
	v, err := exec.resolverFor(e).Resolve(1)
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := v.Float64(); f != 0 {
		t.Errorf("dormant state: got %g, want the state-qualified 0", f)
	}

	e2 := s.current.newEntity(agent)
	e2.SetSlot(0, NewString("growing"))
	s.prior = freeze(s.current)
	exec2 := testExec(s, SubstepStep, 1)
	v, err = exec2.resolverFor(e2).Resolve(1)
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := v.Float64(); f != 1 {
		t.Errorf("unmatched state: got %g, want the stateless 1", f)
	}
}

// A seeded organism in state "seed" transitions deterministically when
// its guard draws below the threshold.
func TestStateTransitionSeeded(t *testing.T) {
	// Find a seed whose first draw falls below 0.5 so the guard
	// deterministically fires.
	seed := int64(-1)
	for candidate := int64(0); candidate < 100; candidate++ {
		if rand.New(rand.NewSource(candidate)).Float64() < 0.5 {
			seed = candidate
			break
		}
	}
	if seed < 0 {
		t.Fatal("no suitable seed found")
	}

	b := NewPrototype("plant", AgentKind).AddAttribute(stateAttribute)
	mustAddHandler(t, b, &Handler{
		Attribute: stateAttribute,
		Substep:   SubstepInit,
		Body:      constant(NewString("seed")),
	})
	mustAddHandler(t, b, &Handler{
		Attribute: stateAttribute,
		Substep:   SubstepStep,
		State:     "seed",
		Guard: func(s *Scope) (*Value, error) {
			return NewBool(s.Rand().Float64() < 0.5), nil
		},
		Body: constant(NewString("seedling")),
	})
	agent := mustProto(t, b)

	pb := NewPrototype("p", PatchKind).AddAttribute("plants")
	mustAddHandler(t, pb, &Handler{
		Attribute: "plants",
		Substep:   SubstepInit,
		Body: func(s *Scope) (*Value, error) {
			return s.Create(NewScalar(1, Dimless), "plant")
		},
	})
	patch := mustProto(t, pb)

	cfg := testConfig(0, 1, 0, 1)
	cfg.Seed = seed
	s := newTestSim(t, cfg, newTestProgram(t, emptySimProto(t), patch, agent))
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	agents := s.Patches()[0].agents.array()
	if len(agents) != 1 {
		t.Fatalf("got %d agents, want 1", len(agents))
	}
	st, _ := agents[0].AttributeValue(stateAttribute)
	if got, _ := st.Str(); got != "seedling" {
		t.Errorf("state after one tick: got %q, want %q", got, "seedling")
	}
}

// Attributes without a handler for the substep pass through at no
// cost: set slots keep their value, unset slots stay unset.
func TestNoHandlerPassthrough(t *testing.T) {
	patch := mustProto(t, NewPrototype("p", PatchKind).
		AddAttribute("set").AddAttribute("unset"))
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))
	p := s.Patches()[0]
	p.SetSlot(0, NewScalar(5, Dimless))
	s.prior = freeze(s.current)

	exec := testExec(s, SubstepStep, 1)
	r := exec.resolverFor(p)
	v, err := r.Resolve(0)
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := v.Float64(); f != 5 {
		t.Errorf("set slot: got %g, want 5", f)
	}
	v, err = r.Resolve(1)
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("unset slot: got %v, want nil", v)
	}
}

// here.* resolves on the containing patch and meta.* on the simulation
// entity.
func TestHereAndMeta(t *testing.T) {
	sb := NewPrototype("sim", SimulationKind).AddAttribute("rainfall")
	mustAddHandler(t, sb, &Handler{
		Attribute: "rainfall",
		Substep:   SubstepStep,
		Body:      constant(NewScalar(12, Dimless)),
	})
	sim := mustProto(t, sb)

	pb := NewPrototype("p", PatchKind).AddAttribute("cover")
	mustAddHandler(t, pb, &Handler{
		Attribute: "cover",
		Substep:   SubstepStep,
		Body:      constant(NewScalar(0.4, Dimless)),
	})
	patch := mustProto(t, pb)

	ab := NewPrototype("tree", AgentKind).AddAttribute("food")
	mustAddHandler(t, ab, &Handler{
		Attribute: "food",
		Substep:   SubstepStep,
		Body: func(s *Scope) (*Value, error) {
			cover, err := s.Here("cover")
			if err != nil {
				return nil, err
			}
			rain, err := s.Meta("rainfall")
			if err != nil {
				return nil, err
			}
			return cover.Mul(rain)
		},
	})
	agent := mustProto(t, ab)

	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, sim, patch, agent))
	p := s.Patches()[0]
	e := s.current.newEntity(agent)
	e.patchID = p.ID()
	e.SetLocation(p.Location())
	p.agents.add(e)
	s.prior = freeze(s.current)

	exec := testExec(s, SubstepStep, 1)
	v, err := exec.resolverFor(e).ResolveName("food")
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := v.Float64(); different(f, 4.8, 1e-12) {
		t.Errorf("got %g, want 4.8", f)
	}
}

// create N of T instantiates entities and runs their init handlers
// immediately, also from inside a step handler.
func TestCreateRunsInitImmediately(t *testing.T) {
	ab := NewPrototype("tree", AgentKind).AddAttribute("age")
	mustAddHandler(t, ab, &Handler{
		Attribute: "age",
		Substep:   SubstepInit,
		Body:      constant(NewScalar(0, MustParseUnits("year"))),
	})
	agent := mustProto(t, ab)

	pb := NewPrototype("p", PatchKind).AddAttribute("spawned")
	mustAddHandler(t, pb, &Handler{
		Attribute: "spawned",
		Substep:   SubstepStep,
		Body: func(s *Scope) (*Value, error) {
			return s.Create(NewScalar(3, Dimless), "tree")
		},
	})
	patch := mustProto(t, pb)

	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch, agent))
	s.prior = freeze(s.current)
	exec := testExec(s, SubstepStep, 1)
	p := s.Patches()[0]
	if err := exec.runEntity(p); err != nil {
		t.Fatal(err)
	}
	agents := p.agents.array()
	if len(agents) != 3 {
		t.Fatalf("got %d created agents, want 3", len(agents))
	}
	for _, a := range agents {
		age, ok := a.AttributeValue("age")
		if !ok {
			t.Fatalf("agent %d: init handler did not run", a.ID())
		}
		if f, _ := age.Float64(); f != 0 {
			t.Errorf("agent %d: age %g, want 0", a.ID(), f)
		}
	}
}

// Handler failures surface with full entity, attribute, substep and
// tick context.
func TestErrorContext(t *testing.T) {
	b := NewPrototype("p", PatchKind).AddAttribute("a")
	mustAddHandler(t, b, &Handler{
		Attribute: "a",
		Substep:   SubstepStep,
		Body: func(*Scope) (*Value, error) {
			return NewScalar(1, MustParseUnits("m")).Add(NewScalar(1, MustParseUnits("kg")))
		},
	})
	patch := mustProto(t, b)
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))
	exec := testExec(s, SubstepStep, 4)
	_, err := exec.resolverFor(s.Patches()[0]).Resolve(0)
	je, ok := err.(*Error)
	if !ok {
		t.Fatalf("got %T, want *Error", err)
	}
	if je.Kind != ErrUnitMismatch || je.Attribute != "a" ||
		je.Substep != SubstepStep || je.Tick != 4 || je.EntityKind != PatchKind {
		t.Errorf("incomplete error context: %+v", je)
	}
}

// Referencing an attribute the prototype does not declare fails with
// MissingAttribute.
func TestMissingAttribute(t *testing.T) {
	patch := mustProto(t, NewPrototype("p", PatchKind).AddAttribute("a"))
	s := newTestSim(t, testConfig(0, 1, 0, 1), newTestProgram(t, emptySimProto(t), patch))
	exec := testExec(s, SubstepStep, 1)
	_, err := exec.resolverFor(s.Patches()[0]).ResolveName("nope")
	if !IsKind(err, ErrMissingAttribute) {
		t.Errorf("got %v, want MissingAttribute", err)
	}
}
