package st

import (
	"geoexpr/pkg/geom"

	gogeom "github.com/twpayne/go-geom"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// ErrInvalidCast is returned for type pairs cast does not convert between.
var ErrInvalidCast = goerrors.NewKind("invalid cast from %s to %s")

// castValue converts v to type to, keeping its SRID. Arc strings are
// reinterpreted vertex for vertex, never linearized.
func castValue(v *geom.Value, to geom.Type) ([]byte, error) {
	from := v.Type()
	switch {
	case from == to:
		return v.Bytes(), nil

	case to == geom.GeometryCollection && from.IsCollection(),
		from == geom.MultiPolygon && to == geom.MultiSurface:
		// Every collection body is a count followed by its members.
		return geom.Retype(v.Bytes(), to)

	case to == geom.GeometryCollection,
		from == geom.Point && to == geom.MultiPoint,
		from == geom.LineString && to == geom.MultiLineString,
		from.In(geom.LineString, geom.CircularString) && to == geom.MultiCurve,
		from == geom.Polygon && to == geom.MultiPolygon,
		from.In(geom.Polygon, geom.CurvePolygon) && to == geom.MultiSurface:
		return wrap(v.Bytes(), to, v.SRID())

	case from == geom.CircularString && to == geom.MultiLineString:
		line, err := geom.Retype(v.Bytes(), geom.LineString)
		if err != nil {
			return nil, err
		}
		return wrap(line, to, v.SRID())

	case from.In(geom.LineString, geom.CircularString) && to.In(geom.LineString, geom.CircularString):
		return geom.Retype(v.Bytes(), to)

	case from.In(geom.LineString, geom.CircularString) && to == geom.MultiPoint:
		line, err := asLineString(v)
		if err != nil {
			return nil, err
		}
		return geom.EncodeWithSRID(gogeom.NewMultiPointFlat(line.Layout(), line.FlatCoords()), v.SRID())

	case from == geom.MultiPoint && to.In(geom.LineString, geom.CircularString):
		g, err := v.Geometry()
		if err != nil {
			return nil, err
		}
		mp := g.(*gogeom.MultiPoint)
		var flat []float64
		for i := 0; i < mp.NumPoints(); i++ {
			flat = append(flat, mp.Coord(i)...)
		}
		out, err := geom.EncodeWithSRID(gogeom.NewLineStringFlat(mp.Layout(), flat), v.SRID())
		if err != nil || to == geom.LineString {
			return out, err
		}
		return geom.Retype(out, to)

	case from == geom.MultiLineString && to == geom.Polygon:
		g, err := v.Geometry()
		if err != nil {
			return nil, err
		}
		mls := g.(*gogeom.MultiLineString)
		for i := 0; i < mls.NumLineStrings(); i++ {
			ring := sequence{layout: mls.Layout(), flat: mls.LineString(i).FlatCoords()}
			if err := checkRing(ring); err != nil {
				return nil, err
			}
		}
		return geom.EncodeWithSRID(gogeom.NewPolygonFlat(mls.Layout(), mls.FlatCoords(), mls.Ends()), v.SRID())
	}
	return nil, ErrInvalidCast.New(from, to)
}

// wrap puts b alone in a collection of type t. An empty b gives an empty
// collection, except for GeometryCollection, which keeps the empty member.
func wrap(b []byte, t geom.Type, srid int32) ([]byte, error) {
	v, err := geom.Decode(b)
	if err != nil {
		return nil, err
	}
	empty, err := v.IsEmpty()
	if err != nil {
		return nil, err
	}
	if empty && t != geom.GeometryCollection {
		return geom.EmptyOf(t, srid), nil
	}
	return geom.Collect(t, [][]byte{b}, srid)
}

// asLineString decodes a LineString or CircularString as a LineString.
func asLineString(v *geom.Value) (*gogeom.LineString, error) {
	b := v.Bytes()
	if v.Type() == geom.CircularString {
		var err error
		if b, err = geom.Retype(b, geom.LineString); err != nil {
			return nil, err
		}
	}
	line, err := geom.Decode(b)
	if err != nil {
		return nil, err
	}
	g, err := line.Geometry()
	if err != nil {
		return nil, err
	}
	return g.(*gogeom.LineString), nil
}

func castTo(v *geom.Value, kw Kwargs) ([]byte, error) {
	to, _ := geom.TypeFromName(kw.str("into"))
	return castValue(v, to)
}

func validateCast(kw Kwargs) error {
	if t, ok := geom.TypeFromName(kw.str("into")); !ok || t == geom.Unknown {
		return ErrInvalidArgument.New("cast", "into", "unknown geometry type "+kw.str("into"))
	}
	return nil
}

var multiOf = map[geom.Type]geom.Type{
	geom.Point:          geom.MultiPoint,
	geom.LineString:     geom.MultiLineString,
	geom.CircularString: geom.MultiCurve,
	geom.Polygon:        geom.MultiPolygon,
	geom.CurvePolygon:   geom.MultiSurface,
}

// multi promotes single geometries to their collection type. Anything
// else is returned as is.
func multi(v *geom.Value, _ Kwargs) ([]byte, error) {
	if t, ok := multiOf[v.Type()]; ok {
		return castValue(v, t)
	}
	return v.Bytes(), nil
}
