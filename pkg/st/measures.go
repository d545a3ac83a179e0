package st

import (
	"math"

	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	"github.com/twpayne/go-geos"
)

var (
	area             = measure(func(g *geos.Geom, _ Kwargs) float64 { return g.Area() })
	length           = measure(func(g *geos.Geom, _ Kwargs) float64 { return g.Length() })
	minimumClearance = measure(func(g *geos.Geom, _ Kwargs) float64 { return g.MinimumClearance() })

	isRing        = measure(func(g *geos.Geom, _ Kwargs) bool { return g.IsRing() })
	isSimple      = measure(func(g *geos.Geom, _ Kwargs) bool { return g.IsSimple() })
	isValid       = measure(func(g *geos.Geom, _ Kwargs) bool { return g.IsValid() })
	isValidReason = measure(func(g *geos.Geom, _ Kwargs) string { return g.IsValidReason() })
)

// metric is a distance between two geometries that is NaN as soon as one
// side is empty.
func metric(fn func(x, y *geos.Geom, kw Kwargs) float64) binaryKernel[float64] {
	return always2(func(a, b *geom.Value, kw Kwargs) (float64, error) {
		if empty, err := anyEmpty(a, b); err != nil || empty {
			return math.NaN(), err
		}
		return native.Measure2(a.Bytes(), b.Bytes(), func(x, y *geos.Geom) float64 { return fn(x, y, kw) })
	})
}

var (
	distance = metric(func(x, y *geos.Geom, _ Kwargs) float64 { return x.Distance(y) })

	hausdorffDistance = metric(func(x, y *geos.Geom, kw Kwargs) float64 {
		if frac, ok := kw.optFloat("densify"); ok {
			return x.HausdorffDistanceDensify(y, frac)
		}
		return x.HausdorffDistance(y)
	})

	frechetDistance = metric(func(x, y *geos.Geom, kw Kwargs) float64 {
		if frac, ok := kw.optFloat("densify"); ok {
			return x.FrechetDistanceDensify(y, frac)
		}
		return x.FrechetDistance(y)
	})
)

// project is the distance along self to the point of self nearest to
// the point other. NaN unless self is lineal, other is a point and both
// are non-empty.
var project = always2(func(a, b *geom.Value, kw Kwargs) (float64, error) {
	if !a.Type().In(geom.LineString, geom.MultiLineString) || b.Type() != geom.Point {
		return math.NaN(), nil
	}
	if empty, err := anyEmpty(a, b); err != nil || empty {
		return math.NaN(), err
	}
	return native.Measure2(a.Bytes(), b.Bytes(), func(x, y *geos.Geom) float64 {
		if kw.bool("normalized") {
			return x.ProjectNormalized(y)
		}
		return x.Project(y)
	})
})
