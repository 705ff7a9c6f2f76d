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

// Sample draws one scalar from a distribution. Sampling a scalar
// returns the scalar itself.
func (v *Value) Sample(rng randSource) (*Value, error) {
	switch v.kind {
	case ScalarValue:
		return v, nil
	case RealizedValue:
		if len(v.elems) == 0 {
			return nil, newError(ErrType, "cannot sample an empty distribution")
		}
		return v.elems[rng.Intn(len(v.elems))], nil
	case VirtualValue:
		return NewScalar(v.sampleFn(rng), v.units), nil
	default:
		return nil, newError(ErrType, "cannot sample a %s", v.kind)
	}
}

// Contents materialises a finite ordered sequence of n elements from a
// distribution. Without replacement, a realized distribution yields its
// first n elements in insertion order and a virtual distribution of
// unknown size fails with NotRewindable.
func (v *Value) Contents(n int, withReplacement bool, rng randSource) ([]*Value, error) {
	if n < 0 {
		return nil, newError(ErrType, "negative element count %d", n)
	}
	switch v.kind {
	case RealizedValue:
		if withReplacement {
			out := make([]*Value, n)
			for i := range out {
				e, err := v.Sample(rng)
				if err != nil {
					return nil, err
				}
				out[i] = e
			}
			return out, nil
		}
		if n > len(v.elems) {
			return nil, newError(ErrType,
				"requested %d elements without replacement from a distribution of %d", n, len(v.elems))
		}
		out := make([]*Value, n)
		copy(out, v.elems[:n])
		return out, nil
	case VirtualValue:
		if !withReplacement && v.size == UnboundedSize {
			return nil, newError(ErrNotRewindable,
				"cannot enumerate an unbounded distribution without replacement")
		}
		if !withReplacement && n > v.size {
			return nil, newError(ErrType,
				"requested %d elements without replacement from a distribution of %d", n, v.size)
		}
		out := make([]*Value, n)
		for i := range out {
			out[i] = NewScalar(v.sampleFn(rng), v.units)
		}
		return out, nil
	default:
		return nil, newError(ErrType, "cannot enumerate a %s", v.kind)
	}
}

// Filter evaluates pred against each element of a realized
// distribution and returns a new distribution holding the survivors in
// their original order.
func (v *Value) Filter(pred func(*Value) (bool, error)) (*Value, error) {
	if v.kind != RealizedValue {
		return nil, newError(ErrType, "cannot filter a %s", v.kind)
	}
	var out []*Value
	for _, e := range v.elems {
		keep, err := pred(e)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, e)
		}
	}
	return NewRealized(out, v.units), nil
}

// Concat concatenates two realized distributions of the same element
// kind, preserving order (v first, then o). Mismatched units fail with
// UnitMismatch.
func (v *Value) Concat(o *Value) (*Value, error) {
	if v.kind != RealizedValue || o.kind != RealizedValue {
		return nil, newError(ErrType,
			"cannot concatenate a %s and a %s", v.kind, o.kind)
	}
	if !v.units.Equal(o.units) {
		return nil, newError(ErrUnitMismatch,
			"cannot concatenate %q and %q", v.units, o.units)
	}
	if len(v.elems) > 0 && len(o.elems) > 0 && v.elems[0].kind != o.elems[0].kind {
		return nil, newError(ErrType,
			"cannot concatenate elements of kind %s and %s", v.elems[0].kind, o.elems[0].kind)
	}
	elems := make([]*Value, 0, len(v.elems)+len(o.elems))
	elems = append(elems, v.elems...)
	elems = append(elems, o.elems...)
	return NewRealized(elems, v.units), nil
}

// Elements returns the ordered elements of a realized distribution.
func (v *Value) Elements() ([]*Value, error) {
	if v.kind != RealizedValue {
		return nil, newError(ErrType, "expected a realized distribution, got a %s", v.kind)
	}
	return v.elems, nil
}

// Len returns the number of elements of a realized distribution or the
// known size of a virtual one.
func (v *Value) Len() (int, error) {
	switch v.kind {
	case RealizedValue:
		return len(v.elems), nil
	case VirtualValue:
		if v.size == UnboundedSize {
			return 0, newError(ErrNotRewindable, "distribution size is unknown")
		}
		return v.size, nil
	default:
		return 0, newError(ErrType, "expected a distribution, got a %s", v.kind)
	}
}
