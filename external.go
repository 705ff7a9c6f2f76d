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
	"runtime"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/geom"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
)

// ExternalResource is a geospatial data source. Implementations wrap
// raster readers; the runtime neither opens nor decodes files. A nil
// value with a nil error from SampleAt means the source has no value
// at that point; the scope turns it into an empty distribution.
type ExternalResource interface {
	SampleAt(p geom.Point) (*Value, error)
	BulkSample(b *geom.Bounds) (*Value, error)
	Close() error
}

// GridResource serves samples from an in-memory 2-D raster. The
// array's first dimension is y (rows), the second x (columns), with
// (x0, y0) the lower-left corner of cell (0, 0).
type GridResource struct {
	data   *sparse.DenseArray
	x0, y0 float64
	dx, dy float64
	units  Units
}

// NewGridResource wraps a 2-D dense array as an external resource.
func NewGridResource(data *sparse.DenseArray, x0, y0, dx, dy float64, units Units) (*GridResource, error) {
	if len(data.Shape) != 2 {
		return nil, newError(ErrInvalidConfiguration,
			"grid resource needs a 2-D array, got %d dimensions", len(data.Shape))
	}
	if dx <= 0 || dy <= 0 {
		return nil, newError(ErrInvalidConfiguration,
			"grid resource cell size must be positive")
	}
	return &GridResource{data: data, x0: x0, y0: y0, dx: dx, dy: dy, units: units}, nil
}

func (g *GridResource) cell(p geom.Point) (ix, iy int, ok bool) {
	ix = int((p.X - g.x0) / g.dx)
	iy = int((p.Y - g.y0) / g.dy)
	if p.X < g.x0 || p.Y < g.y0 || iy >= g.data.Shape[0] || ix >= g.data.Shape[1] {
		return 0, 0, false
	}
	return ix, iy, true
}

// SampleAt returns the raster value of the cell containing p, or nil
// when p is outside the raster.
func (g *GridResource) SampleAt(p geom.Point) (*Value, error) {
	ix, iy, ok := g.cell(p)
	if !ok {
		return nil, nil
	}
	return NewScalar(g.data.Get(iy, ix), g.units), nil
}

// BulkSample returns the values of every cell whose centre lies inside
// b, ordered row-major.
func (g *GridResource) BulkSample(b *geom.Bounds) (*Value, error) {
	var elems []*Value
	for iy := 0; iy < g.data.Shape[0]; iy++ {
		for ix := 0; ix < g.data.Shape[1]; ix++ {
			cx := g.x0 + (float64(ix)+0.5)*g.dx
			cy := g.y0 + (float64(iy)+0.5)*g.dy
			if cx >= b.Min.X && cx <= b.Max.X && cy >= b.Min.Y && cy <= b.Max.Y {
				elems = append(elems, NewScalar(g.data.Get(iy, ix), g.units))
			}
		}
	}
	return NewRealized(elems, g.units), nil
}

func (g *GridResource) Close() error { return nil }

// CachedResource wraps a resource with a deduplicating in-memory
// sample cache and retries transient read failures with exponential
// backoff. Resources backed by remote or on-demand readers should be
// wrapped; GridResource does not need it.
type CachedResource struct {
	inner ExternalResource

	// CacheSize is the number of sample results kept in memory.
	CacheSize int

	cacheInit sync.Once
	cache     *requestcache.Cache
}

// maxSampleRetries bounds the backoff retry loop around one read.
const maxSampleRetries = 3

// NewCachedResource wraps inner with a sample cache of the given
// size.
func NewCachedResource(inner ExternalResource, cacheSize int) *CachedResource {
	return &CachedResource{inner: inner, CacheSize: cacheSize}
}

type sampleRequest struct {
	x, y float64
}

// SampleAt serves the sample from the cache, deduplicating concurrent
// requests for the same point and retrying transient failures.
func (c *CachedResource) SampleAt(p geom.Point) (*Value, error) {
	c.cacheInit.Do(func() {
		c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			r := request.(sampleRequest)
			var v *Value
			err := backoff.Retry(func() error {
				var err error
				v, err = c.inner.SampleAt(geom.Point{X: r.x, Y: r.y})
				if err != nil && !IsKind(err, ErrExternalIO) {
					return backoff.Permanent(err)
				}
				return err
			}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSampleRetries))
			return v, err
		}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(c.CacheSize))
	})
	req := c.cache.NewRequest(context.TODO(),
		sampleRequest{x: p.X, y: p.Y},
		fmt.Sprintf("%g_%g", p.X, p.Y),
	)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	if v, ok := result.(*Value); ok {
		return v, nil
	}
	return nil, nil
}

// BulkSample passes through to the wrapped resource; bulk reads are
// assumed to already amortise their cost.
func (c *CachedResource) BulkSample(b *geom.Bounds) (*Value, error) {
	return c.inner.BulkSample(b)
}

func (c *CachedResource) Close() error { return c.inner.Close() }
