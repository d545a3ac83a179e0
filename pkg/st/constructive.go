package st

import (
	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

var capStyles = map[string]geos.BufCapStyle{
	"round":  geos.BufCapStyle(1),
	"flat":   geos.BufCapStyle(2),
	"square": geos.BufCapStyle(3),
}

var joinStyles = map[string]geos.BufJoinStyle{
	"round": geos.BufJoinStyle(1),
	"mitre": geos.BufJoinStyle(2),
	"bevel": geos.BufJoinStyle(3),
}

var precisionModes = map[string]geos.PrecisionRule{
	"valid_output":   geos.PrecisionRule(0),
	"no_topo":        geos.PrecisionRule(1),
	"keep_collapsed": geos.PrecisionRule(2),
}

// oneOf validates that key holds one of the names in choices.
func oneOf[T any](op, key string, choices map[string]T) func(Kwargs) error {
	return func(kw Kwargs) error {
		if _, ok := choices[kw.str(key)]; !ok {
			return ErrInvalidArgument.New(op, key, "unknown value "+kw.str(key))
		}
		return nil
	}
}

func validateBuffer(kw Kwargs) error {
	if err := oneOf("buffer", "cap_style", capStyles)(kw); err != nil {
		return err
	}
	return oneOf("buffer", "join_style", joinStyles)(kw)
}

var boundary = always(func(v *geom.Value, kw Kwargs) ([]byte, error) {
	if v.Type() == geom.GeometryCollection {
		return geom.EmptyOf(geom.GeometryCollection, v.SRID()), nil
	}
	return native.Unary(v.Bytes(), v.SRID(), (*geos.Geom).Boundary)
})

var (
	buffer = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		return g.BufferWithStyle(kw.float("distance"), kw.int("quad_segs"),
			capStyles[kw.str("cap_style")], joinStyles[kw.str("join_style")], kw.float("mitre_limit"))
	})

	offsetCurve = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		return g.OffsetCurve(kw.float("distance"), kw.int("quad_segs"),
			joinStyles[kw.str("join_style")], kw.float("mitre_limit"))
	})

	centroid = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.Centroid() })

	clipByRect = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		return g.ClipByRect(kw.float("xmin"), kw.float("ymin"), kw.float("xmax"), kw.float("ymax"))
	})

	concaveHull = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		var holes uint
		if kw.bool("allow_holes") {
			holes = 1
		}
		return g.ConcaveHull(kw.float("ratio"), holes)
	})

	convexHull              = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.ConvexHull() })
	envelope                = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.Envelope() })
	buildArea               = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.BuildArea() })
	makeValid               = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.MakeValid() })
	normalize               = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.Normalize() })
	node                    = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.Node() })
	pointOnSurface          = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.PointOnSurface() })
	reverse                 = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.Reverse() })
	minimumRotatedRectangle = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom { return g.MinimumRotatedRectangle() })

	segmentize = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		return g.Densify(kw.float("max_segment_length"))
	})

	simplify = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		if kw.bool("preserve_topology") {
			return g.TopologyPreserveSimplify(kw.float("tolerance"))
		}
		return g.Simplify(kw.float("tolerance"))
	})

	interpolate = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		if kw.bool("normalized") {
			return g.InterpolateNormalized(kw.float("distance"))
		}
		return g.Interpolate(kw.float("distance"))
	})

	lineMerge = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		if kw.bool("directed") {
			return g.LineMergeDirected()
		}
		return g.LineMerge()
	})

	setPrecision = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		return g.SetPrecision(kw.float("grid_size"), precisionModes[kw.str("mode")])
	})

	snap = construct2(func(x, y *geos.Geom, kw Kwargs) *geos.Geom {
		return x.Snap(y, kw.float("tolerance"))
	})

	sharedPaths = construct2(func(x, y *geos.Geom, _ Kwargs) *geos.Geom {
		return x.SharedPaths(y)
	})
)

var (
	extractUniquePoints = reshape(func(g gogeom.T, _ Kwargs) gogeom.T { return uniquePoints(g) })

	removeRepeatedPoints = reshape(func(g gogeom.T, kw Kwargs) gogeom.T {
		return dropRepeated(g, kw.float("tolerance"))
	})

	forceTwoD = reshape(func(g gogeom.T, _ Kwargs) gogeom.T { return force2D(g) })

	forceThreeD = reshape(func(g gogeom.T, kw Kwargs) gogeom.T { return force3D(g, kw.float("z")) })

	flipCoordinates = reshape(func(g gogeom.T, _ Kwargs) gogeom.T { return flipXY(g) })

	translate = reshape(func(g gogeom.T, kw Kwargs) gogeom.T {
		return translateBy(g, kw.float("x"), kw.float("y"), kw.float("z"))
	})
)

// center is the midpoint of the bounding box.
var center = always(func(v *geom.Value, _ Kwargs) ([]byte, error) {
	if empty, err := v.IsEmpty(); err != nil || empty {
		return geom.EmptyOf(geom.Point, v.SRID()), err
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, err
	}
	b := extent(g)
	mid := gogeom.NewPointFlat(gogeom.XY, []float64{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2})
	return geom.EncodeWithSRID(mid, v.SRID())
})

// shortestLine joins the nearest points of self and other.
var shortestLine = always2(func(a, b *geom.Value, _ Kwargs) ([]byte, error) {
	if empty, err := anyEmpty(a, b); err != nil || empty {
		return geom.EmptyOf(geom.LineString, a.SRID()), err
	}
	pts, err := native.Measure2(a.Bytes(), b.Bytes(), (*geos.Geom).NearestPoints)
	if err != nil {
		return nil, err
	}

	flat := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		flat = append(flat, p[0], p[1])
	}
	return geom.EncodeWithSRID(gogeom.NewLineStringFlat(gogeom.XY, flat), a.SRID())
})
