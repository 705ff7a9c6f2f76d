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

// ErrKind classifies the failures the runtime can produce.
type ErrKind int

// The error taxonomy. ErrParse marks source text that fails to
// compile: the front end's parse failures and expressions rejected by
// CompileExpression.
const (
	ErrParse ErrKind = iota
	ErrUnitMismatch
	ErrNoConversion
	ErrCircularDependency
	ErrMissingAttribute
	ErrMissingHandler
	ErrType
	ErrGuard
	ErrDivisionByZero
	ErrInvalidExponent
	ErrNotRewindable
	ErrExternalIO
	ErrExport
	ErrInvalidConfiguration
)

func (k ErrKind) String() string {
	switch k {
	case ErrParse:
		return "parse"
	case ErrUnitMismatch:
		return "unit mismatch"
	case ErrNoConversion:
		return "no conversion"
	case ErrCircularDependency:
		return "circular dependency"
	case ErrMissingAttribute:
		return "missing attribute"
	case ErrMissingHandler:
		return "missing handler"
	case ErrType:
		return "type error"
	case ErrGuard:
		return "guard error"
	case ErrDivisionByZero:
		return "division by zero"
	case ErrInvalidExponent:
		return "invalid exponent"
	case ErrNotRewindable:
		return "not rewindable"
	case ErrExternalIO:
		return "external I/O"
	case ErrExport:
		return "export"
	case ErrInvalidConfiguration:
		return "invalid configuration"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Error is a structured error record. Besides the kind and message it
// carries the originating entity, attribute, substep and tick when the
// failure happened inside handler execution; those fields are zero
// otherwise.
type Error struct {
	Kind       ErrKind
	Message    string
	EntityKind EntityKind
	EntityID   int
	Attribute  string
	Substep    Substep
	Tick       int

	// located reports whether the entity context fields have been
	// filled in, so that entity ID 0 is distinguishable from "no
	// entity".
	located bool
}

func (e *Error) Error() string {
	if !e.located {
		return fmt.Sprintf("josh: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("josh: %s: %s (%s %d, attribute %q, substep %s, tick %d)",
		e.Kind, e.Message, e.EntityKind, e.EntityID, e.Attribute, e.Substep, e.Tick)
}

func newError(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// locate fills in the entity context of err if it is a *Error that has
// not been located yet, and otherwise wraps err in a located guard
// error. Handler failures always travel upward fully located.
func locate(err error, e *Entity, attribute string, substep Substep, tick int) *Error {
	je, ok := err.(*Error)
	if !ok {
		je = newError(ErrGuard, "%s", err.Error())
	}
	if je.located {
		return je
	}
	je.EntityKind = e.Prototype().Kind()
	je.EntityID = e.ID()
	je.Attribute = attribute
	je.Substep = substep
	je.Tick = tick
	je.located = true
	return je
}

// IsKind reports whether err is a josh Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	je, ok := err.(*Error)
	return ok && je.Kind == kind
}
