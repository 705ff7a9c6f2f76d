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
	"testing"

	"github.com/ctessum/geom"
)

func TestShapeEqualityTolerance(t *testing.T) {
	a := Circle{Center: geom.Point{X: 1, Y: 2}, Radius: 3}
	b := Circle{Center: geom.Point{X: 1 + 1e-6, Y: 2}, Radius: 3 - 1e-6}
	if !a.Equal(b) {
		t.Errorf("circles %v and %v should be equal within tolerance", a, b)
	}
	c := Circle{Center: geom.Point{X: 1.001, Y: 2}, Radius: 3}
	if a.Equal(c) {
		t.Errorf("circles %v and %v should differ", a, c)
	}

	s1 := Square{Center: geom.Point{X: 0, Y: 0}, Width: 2}
	s2 := Square{Center: geom.Point{X: 1e-6, Y: -1e-6}, Width: 2}
	if !s1.Equal(s2) {
		t.Errorf("squares %v and %v should be equal within tolerance", s1, s2)
	}
}

func TestCircleUnitSquareIntersection(t *testing.T) {
	tests := []struct {
		circle Circle
		x, y   int
		want   bool
	}{
		// Circle at a cell corner touches all four surrounding cells.
		{Circle{geom.Point{X: 1, Y: 1}, 0.1}, 0, 0, true},
		{Circle{geom.Point{X: 1, Y: 1}, 0.1}, 1, 1, true},
		// Clamped distance to the diagonal cell is √2·(d) from the
		// nearest corner.
		{Circle{geom.Point{X: 0.5, Y: 0.5}, 0.7}, 1, 1, false},
		{Circle{geom.Point{X: 0.5, Y: 0.5}, 0.8}, 1, 1, true},
		// Far away.
		{Circle{geom.Point{X: 0, Y: 0}, 1}, 5, 5, false},
	}
	for _, test := range tests {
		got := test.circle.IntersectsBounds(unitCellBounds(test.x, test.y))
		if got != test.want {
			t.Errorf("circle %v vs cell (%d, %d): got %t, want %t",
				test.circle, test.x, test.y, got, test.want)
		}
	}
}

func TestCircleContains(t *testing.T) {
	c := Circle{Center: geom.Point{X: 1, Y: 1}, Radius: 1}
	if !c.Contains(geom.Point{X: 2, Y: 1}) {
		t.Error("boundary point should be contained")
	}
	if c.Contains(geom.Point{X: 2, Y: 2}) {
		t.Error("diagonal point at distance √2 should not be contained")
	}
}

func TestSquareIntersectsBounds(t *testing.T) {
	s := Square{Center: geom.Point{X: 2, Y: 2}, Width: 2}
	if !s.IntersectsBounds(unitCellBounds(2, 2)) {
		t.Error("overlapping cell should intersect")
	}
	if s.IntersectsBounds(unitCellBounds(5, 5)) {
		t.Error("distant cell should not intersect")
	}
	// Edge contact counts as intersection.
	if !s.IntersectsBounds(unitCellBounds(3, 2)) {
		t.Error("edge-adjacent cell should intersect")
	}
}
