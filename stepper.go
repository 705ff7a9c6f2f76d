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
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"
)

// agentsAttribute, when declared on a patch prototype, is the
// list-valued attribute that owns the patch's agents: after every
// substep the patch's live agent set is pruned to the references the
// attribute holds.
const agentsAttribute = "agents"

// SimulationConfig carries the run parameters of one simulation.
type SimulationConfig struct {
	// Grid cell coordinate range on both axes, low inclusive, high
	// exclusive.
	GridLow, GridHigh int
	// Edge length one grid cell stands for, in meters.
	CellSize float64
	// Tick range, both inclusive.
	StepsLow, StepsHigh int
	// Seed for the replicate's random stream.
	Seed int64
	// Number of independent replicates.
	Replicates int
	// Export target template; "{replicate}" is replaced by the
	// replicate number.
	ExportTemplate string
}

func (c SimulationConfig) check() error {
	if c.GridHigh <= c.GridLow {
		return newError(ErrInvalidConfiguration,
			"grid range [%d, %d) is empty", c.GridLow, c.GridHigh)
	}
	if c.StepsHigh < c.StepsLow {
		return newError(ErrInvalidConfiguration,
			"step range [%d, %d] is empty", c.StepsLow, c.StepsHigh)
	}
	return nil
}

// Program is the compiled model the front end hands to the runtime:
// frozen prototypes, opened geospatial resources and the unit
// conversion graph.
type Program struct {
	// Simulation and Patch point at the two required prototypes.
	Simulation *Prototype
	Patch      *Prototype
	// Prototypes maps every entity type name, including the two
	// above, for `create N of T` lookups.
	Prototypes map[string]*Prototype
	// Resources maps external resource names to their opened
	// readers.
	Resources map[string]ExternalResource
	// Converter is the unit conversion graph for this model.
	Converter *Converter
}

// Close releases every external resource reader. Call it after the
// last replicate has run.
func (p *Program) Close() error {
	var first error
	for name, res := range p.Resources {
		if err := res.Close(); err != nil && first == nil {
			first = newError(ErrExternalIO, "closing resource %q: %s", name, err)
		}
	}
	return first
}

// TimeStep is the arena of live entities for the tick being computed.
// Cross-entity references are arena IDs.
type TimeStep struct {
	entities  []*Entity
	patches   *PatchIndex
	simEntity *Entity
	resources map[string]*Entity
}

// newEntity appends a fresh instance of proto to the arena.
func (ts *TimeStep) newEntity(proto *Prototype) *Entity {
	e := newEntity(len(ts.entities), proto)
	ts.entities = append(ts.entities, e)
	return e
}

// Entity returns the live entity with the given arena ID, or nil.
func (ts *TimeStep) Entity(id int) *Entity {
	if id < 0 || id >= len(ts.entities) {
		return nil
	}
	return ts.entities[id]
}

// executionOrder returns the deterministic entity iteration order for
// one substep: the simulation entity, then patches row-major over the
// grid, each followed by its agents in insertion order, then whatever
// remains in arena order.
func (ts *TimeStep) executionOrder() []*Entity {
	seen := make(map[int]bool, len(ts.entities))
	out := make([]*Entity, 0, len(ts.entities))
	appendEntity := func(e *Entity) {
		if e != nil && !seen[e.id] && !e.dead {
			seen[e.id] = true
			out = append(out, e)
		}
	}
	appendEntity(ts.simEntity)
	for _, p := range ts.patches.All() {
		appendEntity(p)
		for _, a := range p.agents.array() {
			appendEntity(a)
		}
	}
	for _, e := range ts.entities {
		appendEntity(e)
	}
	return out
}

// exportSpec is one parsed export.<name>.<substep> simulation
// attribute.
type exportSpec struct {
	attrIdx int
	name    string
	substep Substep
}

// SimulationManipulator is a function that operates on a simulation
// between ticks, e.g. logging or saving progress.
type SimulationManipulator func(*Simulation) error

// Simulation executes one replicate of a compiled program: it owns the
// live time-step arena, the frozen prior view, the seeded random
// stream and the export sinks.
type Simulation struct {
	Config  SimulationConfig
	program *Program

	current *TimeStep
	prior   *SnapshotArena
	rng     *rand.Rand
	tick    int
	sinks   []ExportSink
	exports []exportSpec
}

// NewSimulation bootstraps a simulation: it creates the simulation
// entity, one patch per grid cell, and one entity per external
// resource. Patches are created in row-major order.
func NewSimulation(config SimulationConfig, program *Program) (*Simulation, error) {
	if err := config.check(); err != nil {
		return nil, err
	}
	if program.Simulation == nil || program.Patch == nil {
		return nil, newError(ErrInvalidConfiguration,
			"a program needs simulation and patch prototypes")
	}
	s := &Simulation{
		Config:  config,
		program: program,
		rng:     rand.New(rand.NewSource(config.Seed)),
		tick:    config.StepsLow,
	}
	w := config.GridHigh - config.GridLow
	ts := &TimeStep{
		patches:   NewPatchIndex(config.GridLow, config.GridLow, w, w),
		resources: make(map[string]*Entity),
	}
	ts.simEntity = ts.newEntity(program.Simulation)
	for y := config.GridLow; y < config.GridHigh; y++ {
		for x := config.GridLow; x < config.GridHigh; x++ {
			p := ts.newEntity(program.Patch)
			p.SetLocation(x, y)
			if err := ts.patches.Insert(p); err != nil {
				return nil, err
			}
		}
	}
	for name, res := range program.Resources {
		proto, err := NewPrototype(name, ResourceKind).Build()
		if err != nil {
			return nil, err
		}
		e := ts.newEntity(proto)
		e.resource = res
		ts.resources[name] = e
	}
	s.current = ts
	s.prior = freeze(ts)
	var err error
	s.exports, err = parseExports(program.Simulation)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// parseExports finds the simulation attributes named
// export.<name>.<substep>.
func parseExports(proto *Prototype) ([]exportSpec, error) {
	var specs []exportSpec
	for i, attr := range proto.Attributes() {
		if !strings.HasPrefix(attr, "export.") {
			continue
		}
		rest := strings.TrimPrefix(attr, "export.")
		j := strings.LastIndexByte(rest, '.')
		if j < 0 {
			return nil, newError(ErrInvalidConfiguration,
				"export attribute %q needs the form export.<name>.<substep>", attr)
		}
		name, sub := rest[:j], rest[j+1:]
		var substep Substep
		switch sub {
		case "init":
			substep = SubstepInit
		case "start":
			substep = SubstepStart
		case "step":
			substep = SubstepStep
		case "end":
			substep = SubstepEnd
		default:
			return nil, newError(ErrInvalidConfiguration,
				"export attribute %q names unknown substep %q", attr, sub)
		}
		specs = append(specs, exportSpec{attrIdx: i, name: name, substep: substep})
	}
	return specs, nil
}

// AddSink attaches an export sink. Sinks are flushed after every
// substep and closed when Run returns.
func (s *Simulation) AddSink(sink ExportSink) {
	s.sinks = append(s.sinks, sink)
}

// Tick returns the tick currently being computed.
func (s *Simulation) Tick() int { return s.tick }

// Patches returns the live patches in row-major order.
func (s *Simulation) Patches() []*Entity { return s.current.patches.All() }

// Entity returns the live entity with the given arena ID.
func (s *Simulation) Entity(id int) *Entity { return s.current.Entity(id) }

// SimulationEntity returns the simulation-scope entity.
func (s *Simulation) SimulationEntity() *Entity { return s.current.simEntity }

// PatchArray collects a scalar patch attribute into a row-major array.
func (s *Simulation) PatchArray(name string) ([]float64, error) {
	patches := s.current.patches.All()
	o := make([]float64, len(patches))
	for i, p := range patches {
		v, ok := p.AttributeValue(name)
		if !ok {
			return nil, newError(ErrMissingAttribute,
				"patch %d has no value for %q", p.id, name)
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		o[i] = f
	}
	return o, nil
}

// Run executes the simulation from steps.low through steps.high. The
// init substep runs once at the first tick; start, step and end
// bracket every subsequent tick. The cancellation signal is honoured between
// ticks and between substeps; within a substep evaluation is atomic.
// Any extra manipulators run after each tick. Sinks are closed on all
// exit paths.
func (s *Simulation) Run(ctx context.Context, extra ...SimulationManipulator) (err error) {
	defer func() {
		for _, sink := range s.sinks {
			if cerr := sink.Close(); cerr != nil && err == nil {
				err = newError(ErrExport, "closing sink: %s", cerr)
			}
		}
	}()
	for s.tick = s.Config.StepsLow; s.tick <= s.Config.StepsHigh; s.tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The first tick initialises freshly created entities; every
		// subsequent tick is bracketed by start and end.
		substeps := Substeps[1:]
		if s.tick == s.Config.StepsLow {
			substeps = Substeps[:1]
		}
		for _, substep := range substeps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.runSubstep(substep); err != nil {
				return err
			}
		}
		for _, m := range extra {
			if err := m(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// runSubstep freezes the prior view, computes every handled attribute
// of every live entity in deterministic order, prunes agent lists and
// pushes exports.
func (s *Simulation) runSubstep(substep Substep) error {
	s.prior = freeze(s.current)
	exec := &substepExec{
		sim:       s,
		ts:        s.current,
		prior:     s.prior,
		substep:   substep,
		tick:      s.tick,
		resolvers: make(map[int]*Resolver),
	}
	for _, e := range s.current.executionOrder() {
		if err := exec.runEntity(e); err != nil {
			return err
		}
	}
	s.pruneAgents()
	return s.export(substep)
}

// pruneAgents syncs each patch's live agent set to its list-valued
// agents attribute, if the patch prototype declares one. Agents
// filtered out of the list die.
func (s *Simulation) pruneAgents() {
	i, ok := s.program.Patch.AttributeIndex(agentsAttribute)
	if !ok {
		return
	}
	for _, p := range s.current.patches.All() {
		v := p.Slot(i)
		if v == nil || v.Kind() != RealizedValue {
			continue
		}
		keep := make(map[int]bool)
		for _, ev := range v.elems {
			if ref, err := ev.Ref(); err == nil {
				keep[ref.ID] = true
			}
		}
		for _, a := range p.agents.array() {
			if !keep[a.id] {
				p.agents.deleteEntity(a)
				a.dead = true
			}
		}
	}
}

// export pushes the simulation attributes registered for this substep
// and flushes every sink. Export failures abort the replicate.
func (s *Simulation) export(substep Substep) error {
	for _, spec := range s.exports {
		if spec.substep != substep {
			continue
		}
		v := s.current.simEntity.Slot(spec.attrIdx)
		if v == nil {
			continue
		}
		for _, sink := range s.sinks {
			if err := sink.Write(substep, s.tick, spec.name, v); err != nil {
				return newError(ErrExport, "writing %q: %s", spec.name, err)
			}
		}
	}
	for _, sink := range s.sinks {
		if err := sink.Flush(); err != nil {
			return newError(ErrExport, "flushing: %s", err)
		}
	}
	return nil
}

// substepExec shares resolution state across the entities of one
// substep, so that cross-entity references compute each attribute at
// most once.
type substepExec struct {
	sim       *Simulation
	ts        *TimeStep
	prior     *SnapshotArena
	substep   Substep
	tick      int
	resolvers map[int]*Resolver
}

func (x *substepExec) resolverFor(e *Entity) *Resolver {
	r, ok := x.resolvers[e.id]
	if !ok {
		r = newResolver(x, e)
		x.resolvers[e.id] = r
	}
	return r
}

// runEntity computes every attribute of e that has a handler for this
// substep and commits the results to the live slot array. The state
// attribute resolves and commits first so state-qualified groups of
// the same substep observe it.
func (x *substepExec) runEntity(e *Entity) error {
	r := x.resolverFor(e)
	if i, ok := e.proto.AttributeIndex(stateAttribute); ok && e.proto.HasHandler(i, x.substep) {
		if _, err := r.Resolve(i); err != nil {
			return err
		}
		r.commit()
	}
	for i := 0; i < e.proto.NumAttributes(); i++ {
		if !e.proto.HasHandler(i, x.substep) {
			continue
		}
		if _, err := r.Resolve(i); err != nil {
			return err
		}
	}
	r.commit()
	return nil
}

// runInit immediately runs the init handlers of an entity created
// during handler execution.
func (x *substepExec) runInit(e *Entity) error {
	exec := x
	if x.substep != SubstepInit {
		exec = &substepExec{
			sim:       x.sim,
			ts:        x.ts,
			prior:     x.prior,
			substep:   SubstepInit,
			tick:      x.tick,
			resolvers: make(map[int]*Resolver),
		}
	}
	return exec.runEntity(e)
}

// RunReplicates executes n independent replicates sequentially, one
// simulation per replicate with a derived seed, attaching the sinks
// produced by sinkFactory for each replicate number.
func RunReplicates(ctx context.Context, config SimulationConfig, program *Program,
	sinkFactory func(replicate int) ([]ExportSink, error)) error {
	n := config.Replicates
	if n < 1 {
		n = 1
	}
	for rep := 0; rep < n; rep++ {
		cfg := config
		cfg.Seed = config.Seed + int64(rep)
		sim, err := NewSimulation(cfg, program)
		if err != nil {
			return err
		}
		if sinkFactory != nil {
			sinks, err := sinkFactory(rep)
			if err != nil {
				return err
			}
			for _, sink := range sinks {
				sim.AddSink(sink)
			}
		}
		if err := sim.Run(ctx); err != nil {
			return fmt.Errorf("replicate %d: %w", rep, err)
		}
	}
	return nil
}

// Log returns a manipulator that writes simulation status messages to
// w after every tick.
func Log(w io.Writer) SimulationManipulator {
	startTime := time.Now()
	tickTime := time.Now()
	return func(s *Simulation) error {
		fmt.Fprintf(w, "Tick %-4d  walltime=%6.3gh  Δwalltime=%4.2gs  entities=%d\n",
			s.tick, time.Since(startTime).Hours(),
			time.Since(tickTime).Seconds(), len(s.current.entities))
		tickTime = time.Now()
		return nil
	}
}
