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

	"github.com/ctessum/geom"
)

// geomTolerance is the tolerance used when comparing shape centres and
// extents.
const geomTolerance = 1e-5

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= geomTolerance
}

// Square is an axis-aligned square given by its centre and width.
type Square struct {
	Center geom.Point
	Width  float64
}

// Circle is a circle given by its centre and radius.
type Circle struct {
	Center geom.Point
	Radius float64
}

// PointsEqual compares two points with tolerance.
func PointsEqual(a, b geom.Point) bool {
	return closeTo(a.X, b.X) && closeTo(a.Y, b.Y)
}

// Equal compares centres and extents with tolerance.
func (s Square) Equal(o Square) bool {
	return PointsEqual(s.Center, o.Center) && closeTo(s.Width, o.Width)
}

// Equal compares centres and extents with tolerance.
func (c Circle) Equal(o Circle) bool {
	return PointsEqual(c.Center, o.Center) && closeTo(c.Radius, o.Radius)
}

// Bounds returns the bounding box of the square.
func (s Square) Bounds() *geom.Bounds {
	h := s.Width / 2
	return &geom.Bounds{
		Min: geom.Point{X: s.Center.X - h, Y: s.Center.Y - h},
		Max: geom.Point{X: s.Center.X + h, Y: s.Center.Y + h},
	}
}

// Bounds returns the bounding box of the circle.
func (c Circle) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: c.Center.X - c.Radius, Y: c.Center.Y - c.Radius},
		Max: geom.Point{X: c.Center.X + c.Radius, Y: c.Center.Y + c.Radius},
	}
}

// Contains reports whether p lies inside or on the circle.
func (c Circle) Contains(p geom.Point) bool {
	dx := p.X - c.Center.X
	dy := p.Y - c.Center.Y
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

// Contains reports whether p lies inside or on the square.
func (s Square) Contains(p geom.Point) bool {
	b := s.Bounds()
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// IntersectsBounds reports whether the circle intersects an
// axis-aligned box: the distance from the centre clamped into the box
// must not exceed the radius.
func (c Circle) IntersectsBounds(b *geom.Bounds) bool {
	dx := c.Center.X - clamp(c.Center.X, b.Min.X, b.Max.X)
	dy := c.Center.Y - clamp(c.Center.Y, b.Min.Y, b.Max.Y)
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

// IntersectsBounds reports whether the square overlaps an axis-aligned
// box.
func (s Square) IntersectsBounds(b *geom.Bounds) bool {
	sb := s.Bounds()
	return sb.Min.X <= b.Max.X && sb.Max.X >= b.Min.X &&
		sb.Min.Y <= b.Max.Y && sb.Max.Y >= b.Min.Y
}

// unitCellBounds is the unit square a grid cell occupies.
func unitCellBounds(x, y int) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: float64(x), Y: float64(y)},
		Max: geom.Point{X: float64(x) + 1, Y: float64(y) + 1},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
