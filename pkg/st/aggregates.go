package st

import (
	"context"
	"math"

	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/twpayne/go-geos"
)

func single(mem memory.Allocator, value []byte) arrow.Array {
	b := binaries(mem)
	defer b.Release()
	b.Append(value)
	return b.NewArray()
}

// firstSRID is the SRID an aggregate result carries.
func firstSRID(values [][]byte) (int32, error) {
	h, err := geom.ReadHeader(values[0])
	if err != nil {
		return 0, err
	}
	return h.SRID, nil
}

// folding reduces values on one GEOS engine and returns a single value.
func folding(fn func(e *native.Engine, gs []*geos.Geom, kw Kwargs) *geos.Geom) reduceFunc {
	return func(_ context.Context, values [][]byte, kw Kwargs, mem memory.Allocator) (arrow.Array, error) {
		srid, err := firstSRID(values)
		if err != nil {
			return nil, err
		}
		out, err := native.Reduce(values, srid, func(e *native.Engine, gs []*geos.Geom) *geos.Geom {
			return fn(e, gs, kw)
		})
		if err != nil {
			return nil, err
		}
		return single(mem, out), nil
	}
}

func asCollection(e *native.Engine, gs []*geos.Geom) *geos.Geom {
	return e.Context().NewCollection(geos.TypeIDGeometryCollection, gs)
}

// pairwise folds gs left to right with op.
func pairwise(op func(x, y *geos.Geom) *geos.Geom) func(*native.Engine, []*geos.Geom, Kwargs) *geos.Geom {
	return func(_ *native.Engine, gs []*geos.Geom, _ Kwargs) *geos.Geom {
		acc := gs[0]
		for _, g := range gs[1:] {
			acc = op(acc, g)
		}
		return acc
	}
}

var (
	voronoiPolygons = folding(func(e *native.Engine, gs []*geos.Geom, kw Kwargs) *geos.Geom {
		return asCollection(e, gs).VoronoiDiagram(nil, kw.float("tolerance"), kw.bool("only_edges"))
	})

	delaunayTriangles = folding(func(e *native.Engine, gs []*geos.Geom, kw Kwargs) *geos.Geom {
		return asCollection(e, gs).DelaunayTriangulation(kw.float("tolerance"), kw.bool("only_edges"))
	})

	polygonize = folding(func(e *native.Engine, gs []*geos.Geom, _ Kwargs) *geos.Geom {
		return e.Context().Polygonize(gs)
	})

	unionAll = folding(func(e *native.Engine, gs []*geos.Geom, _ Kwargs) *geos.Geom {
		return asCollection(e, gs).UnaryUnion()
	})

	coverageUnionAll = folding(func(e *native.Engine, gs []*geos.Geom, _ Kwargs) *geos.Geom {
		return asCollection(e, gs).CoverageUnion()
	})

	intersectionAll        = folding(pairwise((*geos.Geom).Intersection))
	symmetricDifferenceAll = folding(pairwise((*geos.Geom).SymDifference))
)

// collectInto frames the values under a collection header of type t.
func collectInto(t geom.Type) reduceFunc {
	return func(_ context.Context, values [][]byte, _ Kwargs, mem memory.Allocator) (arrow.Array, error) {
		srid, err := firstSRID(values)
		if err != nil {
			return nil, err
		}
		out, err := geom.Collect(t, values, srid)
		if err != nil {
			return nil, err
		}
		return single(mem, out), nil
	}
}

// collect picks the narrowest collection type for the member types.
func collect(ctx context.Context, values [][]byte, kw Kwargs, mem memory.Allocator) (arrow.Array, error) {
	types := make([]geom.Type, len(values))
	for i, v := range values {
		h, err := geom.ReadHeader(v)
		if err != nil {
			return nil, err
		}
		types[i] = h.Type
	}
	return collectInto(geom.Supertype(types))(ctx, values, kw, mem)
}

func totalBounds(_ context.Context, values [][]byte, _ Kwargs, mem memory.Allocator) (arrow.Array, error) {
	out := nan4
	for _, b := range values {
		v, err := geom.Decode(b)
		if err != nil {
			return nil, err
		}
		e, err := getBounds(v, nil)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(e[0]) {
			continue
		}
		if math.IsNaN(out[0]) {
			out = e
			continue
		}
		out[0], out[1] = min(out[0], e[0]), min(out[1], e[1])
		out[2], out[3] = max(out[2], e[2]), max(out[3], e[3])
	}

	bb := bounds(mem)
	defer bb.Release()
	bb.Append(out)
	return bb.NewArray(), nil
}
