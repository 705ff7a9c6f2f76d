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
	"math"
)

// randSource is the part of math/rand.Rand the runtime samples from.
type randSource interface {
	Float64() float64
	Intn(n int) int
}

// ValueKind discriminates the variants a Value can hold.
type ValueKind int

const (
	// ScalarValue is a decimal number with units.
	ScalarValue ValueKind = iota
	// RealizedValue is a materialised ordered bag of scalars (or
	// entity references) sharing one set of units.
	RealizedValue
	// VirtualValue is a lazy sampler with optional size.
	VirtualValue
	// RefValue references an entity by ID.
	RefValue
	// BoolValue is a boolean.
	BoolValue
	// StringValue is a string.
	StringValue
)

func (k ValueKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case RealizedValue:
		return "realized distribution"
	case VirtualValue:
		return "virtual distribution"
	case RefValue:
		return "entity reference"
	case BoolValue:
		return "boolean"
	case StringValue:
		return "string"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// UnboundedSize marks a virtual distribution with no known size.
const UnboundedSize = -1

// Value is a unit-tagged simulation value.
type Value struct {
	kind  ValueKind
	num   float64
	units Units

	elems    []*Value // RealizedValue, insertion order
	sampleFn func(randSource) float64
	size     int // VirtualValue; UnboundedSize if unbounded

	ref EntityRef
	b   bool
	str string
}

// NewScalar returns a scalar value.
func NewScalar(v float64, units Units) *Value {
	return &Value{kind: ScalarValue, num: v, units: units}
}

// NewRealized returns a realized distribution over elems, preserving
// their order.
func NewRealized(elems []*Value, units Units) *Value {
	return &Value{kind: RealizedValue, elems: elems, units: units}
}

// NewVirtual returns a lazy distribution drawing samples from sample.
// size is the number of draws the distribution can produce, or
// UnboundedSize.
func NewVirtual(sample func(randSource) float64, units Units, size int) *Value {
	return &Value{kind: VirtualValue, sampleFn: sample, units: units, size: size}
}

// NewRef returns an entity reference value.
func NewRef(ref EntityRef) *Value {
	return &Value{kind: RefValue, ref: ref}
}

// NewBool returns a boolean value.
func NewBool(b bool) *Value {
	return &Value{kind: BoolValue, b: b}
}

// NewString returns a string value.
func NewString(s string) *Value {
	return &Value{kind: StringValue, str: s}
}

// Kind returns the variant v holds.
func (v *Value) Kind() ValueKind { return v.kind }

// Units returns the units of v.
func (v *Value) Units() Units { return v.units }

// Float64 returns the numeric value of a scalar.
func (v *Value) Float64() (float64, error) {
	if v.kind != ScalarValue {
		return 0, newError(ErrType, "expected a scalar, got a %s", v.kind)
	}
	return v.num, nil
}

// Int returns the value of a scalar that holds an integer.
func (v *Value) Int() (int, error) {
	f, err := v.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, newError(ErrType, "expected an integer, got %g", f)
	}
	return int(f), nil
}

// Bool returns the value of a boolean.
func (v *Value) Bool() (bool, error) {
	if v.kind != BoolValue {
		return false, newError(ErrType, "expected a boolean, got a %s", v.kind)
	}
	return v.b, nil
}

// Str returns the value of a string.
func (v *Value) Str() (string, error) {
	if v.kind != StringValue {
		return "", newError(ErrType, "expected a string, got a %s", v.kind)
	}
	return v.str, nil
}

// Ref returns the entity reference v holds.
func (v *Value) Ref() (EntityRef, error) {
	if v.kind != RefValue {
		return EntityRef{}, newError(ErrType, "expected an entity reference, got a %s", v.kind)
	}
	return v.ref, nil
}

func (v *Value) String() string {
	switch v.kind {
	case ScalarValue:
		if v.units.IsDimless() {
			return fmt.Sprintf("%g", v.num)
		}
		return fmt.Sprintf("%g %s", v.num, v.units)
	case RealizedValue:
		return fmt.Sprintf("distribution of %d %s", len(v.elems), v.units)
	case VirtualValue:
		if v.size == UnboundedSize {
			return fmt.Sprintf("unbounded distribution %s", v.units)
		}
		return fmt.Sprintf("virtual distribution of %d %s", v.size, v.units)
	case RefValue:
		return fmt.Sprintf("entity %d", v.ref.ID)
	case BoolValue:
		return fmt.Sprintf("%t", v.b)
	case StringValue:
		return v.str
	default:
		return "invalid value"
	}
}

// numeric reports whether v participates in arithmetic.
func (v *Value) numeric() bool {
	return v.kind == ScalarValue || v.kind == RealizedValue || v.kind == VirtualValue
}

// Add adds two values. Both operands must carry identical units.
func (v *Value) Add(o *Value) (*Value, error) {
	if err := checkSameUnits("add", v, o); err != nil {
		return nil, err
	}
	return broadcast(v, o, v.units, func(a, b float64) (float64, error) {
		return a + b, nil
	})
}

// Sub subtracts o from v. Both operands must carry identical units.
func (v *Value) Sub(o *Value) (*Value, error) {
	if err := checkSameUnits("subtract", v, o); err != nil {
		return nil, err
	}
	return broadcast(v, o, v.units, func(a, b float64) (float64, error) {
		return a - b, nil
	})
}

// Mul multiplies two values; units combine as symbolic monomials.
func (v *Value) Mul(o *Value) (*Value, error) {
	if err := checkNumeric(v, o); err != nil {
		return nil, err
	}
	return broadcast(v, o, mulUnits(v.units, o.units), func(a, b float64) (float64, error) {
		return a * b, nil
	})
}

// Div divides v by o; units combine as symbolic monomials. A zero
// divisor fails with a DivisionByZero error.
func (v *Value) Div(o *Value) (*Value, error) {
	if err := checkNumeric(v, o); err != nil {
		return nil, err
	}
	return broadcast(v, o, divUnits(v.units, o.units), func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, newError(ErrDivisionByZero, "division by zero")
		}
		return a / b, nil
	})
}

// Pow raises v to an integer exponent; unit exponents multiply.
func (v *Value) Pow(o *Value) (*Value, error) {
	if !v.numeric() {
		return nil, newError(ErrType, "cannot exponentiate a %s", v.kind)
	}
	n, err := o.Int()
	if err != nil {
		return nil, newError(ErrInvalidExponent, "exponent must be an integer scalar: %s", err)
	}
	if !o.units.IsDimless() {
		return nil, newError(ErrInvalidExponent, "exponent must be dimensionless, got %q", o.units)
	}
	return mapValue(v, powUnits(v.units, n), func(a float64) (float64, error) {
		return math.Pow(a, float64(n)), nil
	})
}

func checkSameUnits(op string, v, o *Value) error {
	if err := checkNumeric(v, o); err != nil {
		return err
	}
	if !v.units.Equal(o.units) {
		return newError(ErrUnitMismatch, "cannot %s %q and %q", op, v.units, o.units)
	}
	return nil
}

func checkNumeric(v, o *Value) error {
	if !v.numeric() {
		return newError(ErrType, "cannot do arithmetic on a %s", v.kind)
	}
	if !o.numeric() {
		return newError(ErrType, "cannot do arithmetic on a %s", o.kind)
	}
	if v.kind != ScalarValue && o.kind != ScalarValue {
		return newError(ErrType,
			"arithmetic requires at least one scalar operand, got %s and %s", v.kind, o.kind)
	}
	return nil
}

// broadcast applies op pairing a scalar with the elements or samples of
// the other operand. checkNumeric has already ensured at least one side
// is a scalar.
func broadcast(v, o *Value, units Units, op func(a, b float64) (float64, error)) (*Value, error) {
	switch {
	case v.kind == ScalarValue && o.kind == ScalarValue:
		r, err := op(v.num, o.num)
		if err != nil {
			return nil, err
		}
		return NewScalar(r, units), nil
	case o.kind == ScalarValue:
		return mapValue(v, units, func(a float64) (float64, error) {
			return op(a, o.num)
		})
	default:
		return mapValue(o, units, func(b float64) (float64, error) {
			return op(v.num, b)
		})
	}
}

// mapValue applies f elementwise to a scalar or distribution,
// producing a value with the given units. Virtual distributions stay
// lazy; an error inside a deferred sample surfaces as NaN because the
// sampler contract has no error channel, so f must only fail for
// realized inputs.
func mapValue(v *Value, units Units, f func(float64) (float64, error)) (*Value, error) {
	switch v.kind {
	case ScalarValue:
		r, err := f(v.num)
		if err != nil {
			return nil, err
		}
		return NewScalar(r, units), nil
	case RealizedValue:
		elems := make([]*Value, len(v.elems))
		for i, e := range v.elems {
			if e.kind != ScalarValue {
				return nil, newError(ErrType,
					"arithmetic on a distribution of %s", e.kind)
			}
			r, err := f(e.num)
			if err != nil {
				return nil, err
			}
			elems[i] = NewScalar(r, units)
		}
		return NewRealized(elems, units), nil
	case VirtualValue:
		inner := v.sampleFn
		return NewVirtual(func(rng randSource) float64 {
			r, err := f(inner(rng))
			if err != nil {
				return math.NaN()
			}
			return r
		}, units, v.size), nil
	default:
		return nil, newError(ErrType, "cannot do arithmetic on a %s", v.kind)
	}
}
