package st

import (
	"geoexpr/pkg/geom"

	goerrors "gopkg.in/src-d/go-errors.v1"
)

// Errors raised by the dispatch rules. Messages match what GEOS and the
// overlay engine report for the same inputs.
var (
	ErrRelateEmptyCollection = goerrors.NewKind(`impossible to build a geometry from a nullptr in "GGeom::relate::managed_string"`)
	ErrRelatePatternEmpty    = goerrors.NewKind("error while calling libgeos method RelatePattern (error number = 2)")
	ErrMixedDimension        = goerrors.NewKind("IllegalArgumentException: Overlay input is mixed-dimension")
	ErrNotLineal             = goerrors.NewKind("IllegalArgumentException: Geometry is not lineal")
	ErrNotPolygon            = goerrors.NewKind("Geometry must be a Polygon or CurvePolygon")
	ErrNotLineString         = goerrors.NewKind("Geometry must be a LineString")
	ErrNotCollection         = goerrors.NewKind("Geometry must be a collection")
	ErrUnknownSRID           = goerrors.NewKind("Unknown SRID: %d")
)

// rule rejects a class of inputs for a set of operations.
type rule struct {
	ops   []string
	match func(op string, v *geom.Value, kw Kwargs) (bool, error)
	err   *goerrors.Kind
	args  func(v *geom.Value, kw Kwargs) []any
}

// rules are tried in order; the first match fails the call.
var rules = []rule{
	{
		ops:   []string{"relate"},
		match: isEmptyCollection,
		err:   ErrRelateEmptyCollection,
	},
	{
		ops:   []string{"relate_pattern"},
		match: isEmptyCollection,
		err:   ErrRelatePatternEmpty,
	},
	{
		ops:   []string{"coverage_union"},
		match: mixedCollection,
		err:   ErrMixedDimension,
	},
	{
		ops: []string{"difference", "symmetric_difference", "union"},
		match: func(op string, v *geom.Value, kw Kwargs) (bool, error) {
			if !kw.Has("grid_size") || v.Type() != geom.GeometryCollection {
				return false, nil
			}
			empty, err := v.IsEmpty()
			return !empty, err
		},
		err: ErrMixedDimension,
	},
	{
		ops:   []string{"shared_paths"},
		match: nonEmptyNot(geom.LineString, geom.MultiLineString),
		err:   ErrNotLineal,
	},
	{
		ops:   []string{"get_interior_ring"},
		match: nonEmptyNot(geom.Polygon, geom.CurvePolygon),
		err:   ErrNotPolygon,
	},
	{
		ops:   []string{"offset_curve", "interpolate", "get_point"},
		match: nonEmptyNot(geom.LineString),
		err:   ErrNotLineString,
	},
	{
		ops: []string{"coverage_union"},
		match: nonEmptyNot(geom.MultiPoint, geom.MultiLineString, geom.MultiPolygon,
			geom.GeometryCollection, geom.CompoundCurve, geom.MultiCurve, geom.MultiSurface),
		err: ErrNotCollection,
	},
	{
		ops: []string{"to_srid"},
		match: func(op string, v *geom.Value, kw Kwargs) (bool, error) {
			if v.SRID() != 0 || int32(kw.int("srid")) == 0 {
				return false, nil
			}
			empty, err := v.IsEmpty()
			return !empty, err
		},
		err:  ErrUnknownSRID,
		args: func(v *geom.Value, _ Kwargs) []any { return []any{v.SRID()} },
	},
}

var rulesByOp = func() map[string][]rule {
	m := make(map[string][]rule)
	for _, r := range rules {
		for _, op := range r.ops {
			m[op] = append(m[op], r)
		}
	}
	return m
}()

// check runs the rules registered for op against v.
func check(op string, v *geom.Value, kw Kwargs) error {
	for _, r := range rulesByOp[op] {
		ok, err := r.match(op, v, kw)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if r.args != nil {
			return r.err.New(r.args(v, kw)...)
		}
		return r.err.New()
	}
	return nil
}

func isEmptyCollection(_ string, v *geom.Value, _ Kwargs) (bool, error) {
	if v.Type() != geom.GeometryCollection {
		return false, nil
	}
	return v.IsEmpty()
}

func mixedCollection(_ string, v *geom.Value, _ Kwargs) (bool, error) {
	if v.Type() != geom.GeometryCollection {
		return false, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return false, err
	}
	return geom.IsMixedDimension(g), nil
}

// nonEmptyNot matches non-empty values whose type is not one of ts.
func nonEmptyNot(ts ...geom.Type) func(string, *geom.Value, Kwargs) (bool, error) {
	return func(_ string, v *geom.Value, _ Kwargs) (bool, error) {
		if v.Type().In(ts...) {
			return false, nil
		}
		empty, err := v.IsEmpty()
		return !empty, err
	}
}
