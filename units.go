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
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/unit"
)

// The base units every model gets without declaring anything. Custom
// dimensions are created the same way for units declared by models at
// runtime.
var yearDim, countDim unit.Dimension

func init() {
	yearDim = unit.NewDimension("yr")
	countDim = unit.NewDimension("ct")

	defineUnit("m", unit.Meter, "meter", "meters")
	defineUnit("km", unit.Meter, "kilometer", "kilometers")
	defineUnit("cm", unit.Meter, "centimeter", "centimeters")
	defineUnit("kg", unit.Kilogram, "kilogram", "kilograms")
	defineUnit("g", unit.Kilogram, "gram", "grams")
	defineUnit("s", unit.Second, "second", "seconds", "sec")
	defineUnit("K", unit.Dimensions{unit.TemperatureDim: 1}, "kelvin")
	defineUnit("year", unit.Dimensions{yearDim: 1}, "years", "yr")
	defineUnit("day", unit.Dimensions{yearDim: 1}, "days")
	defineUnit("count", unit.Dimensions{countDim: 1}, "counts")
}

// unitRegistry interns unit names. A unit is a canonical name with zero
// or more aliases and an associated set of base dimensions. The
// registry only grows; models add units through DefineUnit during
// program construction.
var unitRegistry = struct {
	sync.RWMutex
	canonical map[string]string          // alias (including canonical) → canonical name
	dims      map[string]unit.Dimensions // canonical name → dimensions
}{
	canonical: make(map[string]string),
	dims:      make(map[string]unit.Dimensions),
}

// DefineUnit interns a unit name with the given base dimensions and
// aliases. Redefining a name with different dimensions or rebinding an
// alias to a different unit is an invalid-configuration error.
func DefineUnit(name string, dims unit.Dimensions, aliases ...string) error {
	unitRegistry.Lock()
	defer unitRegistry.Unlock()
	if existing, ok := unitRegistry.canonical[name]; ok {
		if existing != name || !unitRegistry.dims[name].Matches(dims) {
			return newError(ErrInvalidConfiguration,
				"unit %q is already defined", name)
		}
	}
	unitRegistry.canonical[name] = name
	unitRegistry.dims[name] = dims
	for _, a := range aliases {
		if existing, ok := unitRegistry.canonical[a]; ok && existing != name {
			return newError(ErrInvalidConfiguration,
				"unit alias %q is already bound to %q", a, existing)
		}
		unitRegistry.canonical[a] = name
	}
	return nil
}

func defineUnit(name string, dims unit.Dimensions, aliases ...string) {
	if err := DefineUnit(name, dims, aliases...); err != nil {
		panic(err)
	}
}

// internUnit resolves an alias to its canonical name, creating a fresh
// unit with its own dimension for names never seen before. Models may
// use units the runtime has no opinion about.
func internUnit(name string) string {
	unitRegistry.RLock()
	c, ok := unitRegistry.canonical[name]
	unitRegistry.RUnlock()
	if ok {
		return c
	}
	unitRegistry.Lock()
	defer unitRegistry.Unlock()
	if c, ok := unitRegistry.canonical[name]; ok {
		return c
	}
	d := unit.NewDimension("josh_" + name)
	unitRegistry.canonical[name] = name
	unitRegistry.dims[name] = unit.Dimensions{d: 1}
	return name
}

func dimsOf(name string) unit.Dimensions {
	unitRegistry.RLock()
	defer unitRegistry.RUnlock()
	return unitRegistry.dims[name]
}

// Units is a symbolic monomial over interned unit names, e.g. m/s² is
// {m: 1, s: -2}. The zero value is dimensionless.
type Units struct {
	terms map[string]int
}

// Dimless is the dimensionless unit.
var Dimless = Units{}

// ParseUnits parses a unit expression of the form "a*b/c^2". An empty
// string is dimensionless. Names are interned as they are seen.
func ParseUnits(s string) (Units, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Dimless, nil
	}
	// Walk the expression keeping track of whether each factor is
	// multiplied or divided.
	terms := make(map[string]int)
	sign := 1
	i := 0
	for i < len(s) {
		j := i
		for j < len(s) && s[j] != '*' && s[j] != '/' {
			j++
		}
		factor := strings.TrimSpace(s[i:j])
		name := factor
		exp := 1
		if k := strings.IndexByte(factor, '^'); k >= 0 {
			name = strings.TrimSpace(factor[:k])
			var err error
			exp, err = strconv.Atoi(strings.TrimSpace(factor[k+1:]))
			if err != nil {
				return Dimless, newError(ErrInvalidConfiguration,
					"bad unit exponent in %q", s)
			}
		}
		if name == "" {
			return Dimless, newError(ErrInvalidConfiguration, "bad unit expression %q", s)
		}
		// A bare "1" numerator, as in "1/s", carries no unit.
		if name != "1" {
			terms[internUnit(name)] += sign * exp
		}
		if j < len(s) {
			if s[j] == '/' {
				sign = -1
			} else {
				sign = 1
			}
		}
		i = j + 1
	}
	return normalizeUnits(terms), nil
}

// MustParseUnits is ParseUnits for statically known unit expressions.
func MustParseUnits(s string) Units {
	u, err := ParseUnits(s)
	if err != nil {
		panic(err)
	}
	return u
}

func normalizeUnits(terms map[string]int) Units {
	for name, exp := range terms {
		if exp == 0 {
			delete(terms, name)
		}
	}
	if len(terms) == 0 {
		return Dimless
	}
	return Units{terms: terms}
}

// Equal reports whether two units are the same monomial after alias
// resolution.
func (u Units) Equal(o Units) bool {
	if len(u.terms) != len(o.terms) {
		return false
	}
	for name, exp := range u.terms {
		if o.terms[name] != exp {
			return false
		}
	}
	return true
}

// IsDimless reports whether u carries no units.
func (u Units) IsDimless() bool { return len(u.terms) == 0 }

// baseName returns the unit name if u is a single base unit with
// exponent one, which is the only form the Converter handles.
func (u Units) baseName() (string, bool) {
	if len(u.terms) != 1 {
		return "", false
	}
	for name, exp := range u.terms {
		if exp == 1 {
			return name, true
		}
	}
	return "", false
}

// Dimensions composes the base dimensions of u's terms.
func (u Units) Dimensions() unit.Dimensions {
	d := make(unit.Dimensions)
	for name, exp := range u.terms {
		for dim, e := range dimsOf(name) {
			d[dim] += e * exp
			if d[dim] == 0 {
				delete(d, dim)
			}
		}
	}
	return d
}

func (u Units) String() string {
	if len(u.terms) == 0 {
		return ""
	}
	names := make([]string, 0, len(u.terms))
	for name := range u.terms {
		names = append(names, name)
	}
	sort.Strings(names)
	var num, den []string
	for _, name := range names {
		exp := u.terms[name]
		abs := exp
		if abs < 0 {
			abs = -abs
		}
		t := name
		if abs != 1 {
			t = fmt.Sprintf("%s^%d", name, abs)
		}
		if exp > 0 {
			num = append(num, t)
		} else {
			den = append(den, t)
		}
	}
	s := strings.Join(num, "*")
	if len(num) == 0 {
		s = "1"
	}
	if len(den) > 0 {
		s += "/" + strings.Join(den, "/")
	}
	return s
}

func mulUnits(a, b Units) Units {
	terms := make(map[string]int, len(a.terms)+len(b.terms))
	for name, exp := range a.terms {
		terms[name] += exp
	}
	for name, exp := range b.terms {
		terms[name] += exp
	}
	return normalizeUnits(terms)
}

func divUnits(a, b Units) Units {
	terms := make(map[string]int, len(a.terms)+len(b.terms))
	for name, exp := range a.terms {
		terms[name] += exp
	}
	for name, exp := range b.terms {
		terms[name] -= exp
	}
	return normalizeUnits(terms)
}

func powUnits(u Units, n int) Units {
	terms := make(map[string]int, len(u.terms))
	for name, exp := range u.terms {
		terms[name] = exp * n
	}
	return normalizeUnits(terms)
}

// A Conversion is a unidirectional compiled mapping between two unit
// names. Op must be a pure function of its argument.
type Conversion struct {
	From, To string
	Op       func(float64) float64
}

// Converter is a directed graph over unit names. Path lookups compose
// the conversions along the shortest edge path and are cached; the
// cache tolerates concurrent readers and racing writers because
// competing computations over the same frozen edge set produce equal
// paths.
type Converter struct {
	mu    sync.RWMutex
	edges map[string][]Conversion

	paths sync.Map // pathKey → []Conversion
}

type pathKey struct{ from, to string }

// NewConverter returns an empty conversion graph.
func NewConverter() *Converter {
	return &Converter{edges: make(map[string][]Conversion)}
}

// Register adds a unidirectional conversion edge. Aliases are resolved
// to canonical names. Registration must finish before the converter is
// shared across goroutines; the path cache assumes a frozen edge set.
func (c *Converter) Register(from, to string, op func(float64) float64) {
	f, t := internUnit(from), internUnit(to)
	c.mu.Lock()
	c.edges[f] = append(c.edges[f], Conversion{From: f, To: t, Op: op})
	c.mu.Unlock()
}

// RegisterLinear adds conversions in both directions for a pure
// rescaling, e.g. RegisterLinear("km", "m", 1000).
func (c *Converter) RegisterLinear(from, to string, factor float64) {
	c.Register(from, to, func(v float64) float64 { return v * factor })
	c.Register(to, from, func(v float64) float64 { return v / factor })
}

// find returns the conversion chain from one canonical name to
// another, consulting and populating the path cache.
func (c *Converter) find(from, to string) ([]Conversion, bool) {
	key := pathKey{from, to}
	if p, ok := c.paths.Load(key); ok {
		if p == nil {
			return nil, false
		}
		return p.([]Conversion), true
	}
	path := c.search(from, to)
	if path == nil {
		c.paths.Store(key, nil)
		return nil, false
	}
	c.paths.Store(key, path)
	return path, true
}

// search does a breadth-first search over the edge graph. Edge
// insertion order breaks ties so concurrent searches agree.
func (c *Converter) search(from, to string) []Conversion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if from == to {
		return []Conversion{}
	}
	type node struct {
		name string
		path []Conversion
	}
	visited := map[string]bool{from: true}
	queue := []node{{name: from}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range c.edges[n.name] {
			if visited[e.To] {
				continue
			}
			path := make([]Conversion, len(n.path), len(n.path)+1)
			copy(path, n.path)
			path = append(path, e)
			if e.To == to {
				return path
			}
			visited[e.To] = true
			queue = append(queue, node{name: e.To, path: path})
		}
	}
	return nil
}

// Convert converts a scalar or realized distribution to the target
// units. Only single base-unit names participate in the conversion
// graph; everything else must already match.
func (c *Converter) Convert(v *Value, to Units) (*Value, error) {
	if v.units.Equal(to) {
		return v, nil
	}
	from, okFrom := v.units.baseName()
	target, okTo := to.baseName()
	if !okFrom || !okTo {
		return nil, newError(ErrNoConversion,
			"no conversion from %q to %q", v.units, to)
	}
	path, ok := c.find(from, target)
	if !ok {
		return nil, newError(ErrNoConversion,
			"no conversion from %q to %q", v.units, to)
	}
	apply := func(x float64) float64 {
		for _, e := range path {
			x = e.Op(x)
		}
		return x
	}
	switch v.kind {
	case ScalarValue:
		return NewScalar(apply(v.num), to), nil
	case RealizedValue:
		elems := make([]*Value, len(v.elems))
		for i, e := range v.elems {
			ce, err := c.Convert(e, to)
			if err != nil {
				return nil, err
			}
			elems[i] = ce
		}
		return NewRealized(elems, to), nil
	case VirtualValue:
		inner := v.sampleFn
		return NewVirtual(func(rng randSource) float64 {
			return apply(inner(rng))
		}, to, v.size), nil
	default:
		return nil, newError(ErrType, "cannot convert %s value", v.kind)
	}
}

// StandardConversions registers the conversions between the built-in
// units on c.
func StandardConversions(c *Converter) {
	c.RegisterLinear("km", "m", 1000)
	c.RegisterLinear("cm", "m", 0.01)
	c.RegisterLinear("g", "kg", 0.001)
	c.RegisterLinear("day", "year", 1./365.25)
}
