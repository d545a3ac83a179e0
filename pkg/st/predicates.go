package st

import (
	"bytes"

	"geoexpr/pkg/geom"

	"github.com/twpayne/go-geos"
)

func predicate(fn func(x, y *geos.Geom) bool) binaryKernel[bool] {
	return measure2(func(x, y *geos.Geom, _ Kwargs) bool { return fn(x, y) })
}

var (
	crosses    = predicate((*geos.Geom).Crosses)
	contains   = predicate((*geos.Geom).Contains)
	coveredBy  = predicate((*geos.Geom).CoveredBy)
	covers     = predicate((*geos.Geom).Covers)
	disjoint   = predicate((*geos.Geom).Disjoint)
	intersects = predicate((*geos.Geom).Intersects)
	overlaps   = predicate((*geos.Geom).Overlaps)
	touches    = predicate((*geos.Geom).Touches)
	within     = predicate((*geos.Geom).Within)
	equals     = predicate((*geos.Geom).Equals)

	containsProperly = predicate(func(x, y *geos.Geom) bool {
		return x.Prepare().ContainsProperly(y)
	})

	equalsExact = measure2(func(x, y *geos.Geom, kw Kwargs) bool {
		return x.EqualsExact(y, kw.float("tolerance"))
	})

	relate = measure2(func(x, y *geos.Geom, _ Kwargs) string {
		return x.Relate(y)
	})

	relatePattern = measure2(func(x, y *geos.Geom, kw Kwargs) bool {
		return x.RelatePattern(y, kw.str("pattern"))
	})
)

// The xy predicates test one coordinate against a prepared geometry
// without building a point.
var (
	intersectsXY = measure(func(g *geos.Geom, kw Kwargs) bool {
		return g.Prepare().IntersectsXY(kw.float("x"), kw.float("y"))
	})

	containsXY = measure(func(g *geos.Geom, kw Kwargs) bool {
		return g.Prepare().ContainsXY(kw.float("x"), kw.float("y"))
	})
)

// dwithin is false whenever one side is empty.
var dwithin = always2(func(a, b *geom.Value, kw Kwargs) (bool, error) {
	if empty, err := anyEmpty(a, b); err != nil || empty {
		return false, err
	}
	d, _, err := distance(a, b, kw)
	if err != nil {
		return false, err
	}
	return d <= kw.float("distance"), nil
})

// equalsIdentical compares structure and ordinates bit for bit, ignoring
// the SRID and the byte order the values were written in.
var equalsIdentical = always2(func(a, b *geom.Value, _ Kwargs) (bool, error) {
	if a.Type() != b.Type() || a.CoordDims() != b.CoordDims() {
		return false, nil
	}
	x, err := canonical(a)
	if err != nil {
		return false, err
	}
	y, err := canonical(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(x, y), nil
})

func canonical(v *geom.Value) ([]byte, error) {
	g, err := v.Geometry()
	if err != nil {
		return nil, err
	}
	return geom.EncodeWithSRID(g, 0)
}
