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
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// circleOffsets caches, per integer radius, the list of (dx,dy) cell
// offsets whose unit square can intersect a circle of that radius
// centred in the origin cell. The cache is process-wide, append-only
// and never evicted; its key space is small in practice (one entry per
// distinct query radius). Racing writers for the same radius compute
// equal lists, so last-write-wins publication is harmless.
var circleOffsets sync.Map // int → [][2]int

// offsetsForRadius returns the cached offset list for the given
// integer radius, computing and publishing it on first use.
func offsetsForRadius(r int) [][2]int {
	if v, ok := circleOffsets.Load(r); ok {
		return v.([][2]int)
	}
	// Keep every cell whose unit square comes within r of the origin
	// cell. The one-cell margin over the spec'd bounding box covers
	// query centres anywhere inside their cell.
	var offsets [][2]int
	for dx := -(r + 1); dx <= r+1; dx++ {
		for dy := -(r + 1); dy <= r+1; dy++ {
			gx := gapToUnit(float64(dx))
			gy := gapToUnit(float64(dy))
			if gx*gx+gy*gy <= float64(r)*float64(r) {
				offsets = append(offsets, [2]int{dx, dy})
			}
		}
	}
	v, _ := circleOffsets.LoadOrStore(r, offsets)
	return v.([][2]int)
}

// gapToUnit is the minimal distance along one axis between the unit
// interval [d, d+1] and the unit interval [0, 1].
func gapToUnit(d float64) float64 {
	if d > 1 {
		return d - 1
	}
	if d < -1 {
		return -d - 1
	}
	return 0
}

// patchBounds adapts a patch to the r-tree's spatial interface.
type patchBounds struct {
	bounds *geom.Bounds
	patch  *Entity
}

// Bounds returns the underlying bounds, satisfying geom.Geom.
func (pb patchBounds) Bounds() *geom.Bounds {
	return pb.bounds
}

// Similar reports whether g is similar to pb's bounds, satisfying geom.Geom.
func (pb patchBounds) Similar(g geom.Geom, tolerance float64) bool {
	return pb.bounds.Similar(g, tolerance)
}

// Transform applies t to pb's bounds, satisfying geom.Geom.
func (pb patchBounds) Transform(t proj.Transformer) (geom.Geom, error) {
	return pb.bounds.Transform(t)
}

// Len returns the number of points in pb's bounds, satisfying geom.Geom.
func (pb patchBounds) Len() int {
	return pb.bounds.Len()
}

// Points returns an iterator over pb's bounds' points, satisfying geom.Geom.
func (pb patchBounds) Points() func() geom.Point {
	return pb.bounds.Points()
}

// PatchIndex maps every integer grid coordinate to the single patch at
// that coordinate. It is built once when the simulation is set up and
// reused for every tick, since patches never move. The r-tree carries
// the same patches for extent (square and point) candidate queries.
type PatchIndex struct {
	minX, minY int
	w, h       int
	patches    []*Entity
	tree       *rtree.Rtree
}

// NewPatchIndex creates an empty index covering the grid cells
// [minX, minX+w) × [minY, minY+h).
func NewPatchIndex(minX, minY, w, h int) *PatchIndex {
	return &PatchIndex{
		minX:    minX,
		minY:    minY,
		w:       w,
		h:       h,
		patches: make([]*Entity, w*h),
		tree:    rtree.NewTree(25, 50),
	}
}

// Insert adds a patch at its grid coordinate.
func (ix *PatchIndex) Insert(p *Entity) error {
	x, y := p.Location()
	i, ok := ix.cellIndex(x, y)
	if !ok {
		return newError(ErrInvalidConfiguration,
			"patch at (%d, %d) is outside the grid", x, y)
	}
	if ix.patches[i] != nil {
		return newError(ErrInvalidConfiguration,
			"two patches at (%d, %d)", x, y)
	}
	ix.patches[i] = p
	ix.tree.Insert(patchBounds{bounds: unitCellBounds(x, y), patch: p})
	return nil
}

func (ix *PatchIndex) cellIndex(x, y int) (int, bool) {
	cx, cy := x-ix.minX, y-ix.minY
	if cx < 0 || cx >= ix.w || cy < 0 || cy >= ix.h {
		return 0, false
	}
	return cy*ix.w + cx, true
}

// At returns the patch at an integer grid coordinate, or nil.
func (ix *PatchIndex) At(x, y int) *Entity {
	i, ok := ix.cellIndex(x, y)
	if !ok {
		return nil
	}
	return ix.patches[i]
}

// All returns the patches in row-major grid order, skipping empty
// cells.
func (ix *PatchIndex) All() []*Entity {
	out := make([]*Entity, 0, len(ix.patches))
	for _, p := range ix.patches {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// CellsIntersecting returns every patch whose unit cell intersects the
// circle. Candidates come from the radius offset cache; each candidate
// is re-tested exactly against the translated circle, so the result
// has no false positives and no duplicates. Enumeration order follows
// the offset list and is unspecified.
func (ix *PatchIndex) CellsIntersecting(c Circle) []*Entity {
	bx := int(math.Floor(c.Center.X))
	by := int(math.Floor(c.Center.Y))
	var out []*Entity
	for _, off := range offsetsForRadius(int(math.Ceil(c.Radius))) {
		x, y := bx+off[0], by+off[1]
		p := ix.At(x, y)
		if p != nil && c.IntersectsBounds(unitCellBounds(x, y)) {
			out = append(out, p)
		}
	}
	return out
}

// Within returns the patches whose grid coordinate lies inside the
// circle. This is the membership rule of the modelling language's
// radial `within` query.
func (ix *PatchIndex) Within(c Circle) []*Entity {
	bx := int(math.Floor(c.Center.X))
	by := int(math.Floor(c.Center.Y))
	var out []*Entity
	for _, off := range offsetsForRadius(int(math.Ceil(c.Radius))) {
		x, y := bx+off[0], by+off[1]
		p := ix.At(x, y)
		if p != nil && c.Contains(geom.Point{X: float64(x), Y: float64(y)}) {
			out = append(out, p)
		}
	}
	return out
}

// SquareQuery returns every patch whose unit cell overlaps the square.
// Candidates are selected by bounding box through the r-tree and then
// tested exactly.
func (ix *PatchIndex) SquareQuery(s Square) []*Entity {
	var out []*Entity
	for _, ci := range ix.tree.SearchIntersect(s.Bounds()) {
		pb := ci.(patchBounds)
		if s.IntersectsBounds(pb.bounds) {
			out = append(out, pb.patch)
		}
	}
	return out
}

// AtPoint returns the patch whose unit cell contains the point, or
// nil.
func (ix *PatchIndex) AtPoint(p geom.Point) *Entity {
	return ix.At(int(math.Floor(p.X)), int(math.Floor(p.Y)))
}
