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

// Package josh implements the runtime core of the Josh ecological
// simulation engine. A model describes a rectangular grid of patches
// populated by organisms whose attributes evolve across discrete time
// steps. The front-end language compiler (not part of this package)
// produces entity prototypes holding compiled handler callables; this
// package executes them: it resolves attribute values in dependency
// order, advances all entities through the init → start → step → end
// substep sequence each tick, answers spatial neighbourhood queries,
// and streams per-substep exports.
package josh

// Version gives the version number of this version of Josh.
const Version = "0.9.0"
