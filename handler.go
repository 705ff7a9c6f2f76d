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

	"github.com/Knetic/govaluate"
)

// Callable is a compiled handler body or guard. The front-end compiler
// produces them; CompileExpression below offers a textual bridge.
type Callable func(*Scope) (*Value, error)

// Handler associates an attribute assignment with an event key. Guard
// is optional; a nil guard always fires.
type Handler struct {
	Attribute string
	Substep   Substep
	State     string
	Guard     Callable
	Body      Callable
}

// HandlerGroup is the ordered list of handlers sharing one event key.
// Guards are evaluated in declaration order and the first that holds
// (or is absent) supplies the value.
type HandlerGroup struct {
	State    string
	Handlers []*Handler
}

// evaluate runs the group's guards in order and executes the body of
// the first match. ok is false when no guard fired, in which case the
// attribute keeps its prior value.
func (g *HandlerGroup) evaluate(s *Scope) (v *Value, ok bool, err error) {
	for _, h := range g.Handlers {
		if h.Guard != nil {
			gv, err := h.Guard(s)
			if err != nil {
				return nil, false, err
			}
			fired, err := gv.Bool()
			if err != nil {
				return nil, false, newError(ErrGuard,
					"guard returned a %s instead of a boolean", gv.Kind())
			}
			if !fired {
				continue
			}
		}
		v, err := h.Body(s)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}
	return nil, false, nil
}

// exprFunctions are the functions available inside compiled
// expressions.
var exprFunctions = map[string]govaluate.ExpressionFunction{
	"exp": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("josh: got %d arguments for function 'exp', but need 1", len(arg))
		}
		return math.Exp(arg[0].(float64)), nil
	},
	"log": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("josh: got %d arguments for function 'log', but need 1", len(arg))
		}
		return math.Log(arg[0].(float64)), nil
	},
	"sqrt": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("josh: got %d arguments for function 'sqrt', but need 1", len(arg))
		}
		return math.Sqrt(arg[0].(float64)), nil
	},
	"floor": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("josh: got %d arguments for function 'floor', but need 1", len(arg))
		}
		return math.Floor(arg[0].(float64)), nil
	},
	"abs": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("josh: got %d arguments for function 'abs', but need 1", len(arg))
		}
		return math.Abs(arg[0].(float64)), nil
	},
}

// CompileExpression compiles a textual arithmetic expression into a
// handler callable. Scope references use bracketed variable names,
// e.g. "[prior.age] + 1" or "[meta.rainfall] * 0.5"; the bare variable
// "rand" draws a uniform sample from the replicate's random stream.
// Numeric results are tagged with the given units; boolean and string
// results pass through, so the same bridge compiles guards.
//
// The bridge is unit-blind inside the expression. Unit-checked
// arithmetic is the Value layer's job; front ends that need it compose
// Callables directly.
func CompileExpression(expr string, units Units) (Callable, error) {
	ee, err := govaluate.NewEvaluableExpressionWithFunctions(expr, exprFunctions)
	if err != nil {
		return nil, newError(ErrParse, "compiling %q: %s", expr, err)
	}
	vars := removeDuplicates(ee.Vars())
	return func(s *Scope) (*Value, error) {
		params := make(map[string]interface{}, len(vars))
		for _, name := range vars {
			if name == "rand" {
				params[name] = s.Rand().Float64()
				continue
			}
			v, err := s.Lookup(name)
			if err != nil {
				return nil, err
			}
			p, err := exprParam(v)
			if err != nil {
				return nil, err
			}
			params[name] = p
		}
		result, err := ee.Evaluate(params)
		if err != nil {
			return nil, newError(ErrType, "evaluating %q: %s", expr, err)
		}
		switch r := result.(type) {
		case float64:
			return NewScalar(r, units), nil
		case bool:
			return NewBool(r), nil
		case string:
			return NewString(r), nil
		default:
			return nil, newError(ErrType,
				"expression %q produced unsupported type %T", expr, result)
		}
	}, nil
}

// exprParam converts a Value into a govaluate parameter.
func exprParam(v *Value) (interface{}, error) {
	switch v.Kind() {
	case ScalarValue:
		return v.num, nil
	case BoolValue:
		return v.b, nil
	case StringValue:
		return v.str, nil
	default:
		return nil, newError(ErrType,
			"a %s cannot appear in a compiled expression", v.Kind())
	}
}

// removeDuplicates removes all duplicated strings from a slice,
// returning a slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}
