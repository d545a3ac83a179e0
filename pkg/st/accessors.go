package st

import (
	"math"

	"geoexpr/pkg/geom"

	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

var nan4 = [4]float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}

// walk calls fn on every non-collection geometry inside g.
func walk(g gogeom.T, fn func(leaf gogeom.T)) {
	if gc, ok := g.(*gogeom.GeometryCollection); ok {
		for _, m := range gc.Geoms() {
			walk(m, fn)
		}
		return
	}
	fn(g)
}

// members returns the direct sub-geometries of a collection, or g itself.
func members(g gogeom.T) []gogeom.T {
	switch g := g.(type) {
	case *gogeom.MultiPoint:
		out := make([]gogeom.T, g.NumPoints())
		for i := range out {
			out[i] = g.Point(i)
		}
		return out
	case *gogeom.MultiLineString:
		out := make([]gogeom.T, g.NumLineStrings())
		for i := range out {
			out[i] = g.LineString(i)
		}
		return out
	case *gogeom.MultiPolygon:
		out := make([]gogeom.T, g.NumPolygons())
		for i := range out {
			out[i] = g.Polygon(i)
		}
		return out
	case *gogeom.GeometryCollection:
		return g.Geoms()
	}
	return []gogeom.T{g}
}

// ring returns ring i of p as a LineString, which is how WKB carries rings.
func ring(p *gogeom.Polygon, i int) *gogeom.LineString {
	return gogeom.NewLineStringFlat(p.Layout(), p.LinearRing(i).FlatCoords())
}

func numCoords(g gogeom.T) int {
	n := 0
	walk(g, func(leaf gogeom.T) {
		if s := leaf.Stride(); s > 0 {
			n += len(leaf.FlatCoords()) / s
		}
	})
	return n
}

func extent(g gogeom.T) [4]float64 {
	out := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	seen := false
	walk(g, func(leaf gogeom.T) {
		flat, stride := leaf.FlatCoords(), leaf.Stride()
		for i := 0; i+1 < len(flat); i += stride {
			seen = true
			out[0] = math.Min(out[0], flat[i])
			out[1] = math.Min(out[1], flat[i+1])
			out[2] = math.Max(out[2], flat[i])
			out[3] = math.Max(out[3], flat[i+1])
		}
	})
	if !seen {
		return nan4
	}
	return out
}

func geometryType(v *geom.Value, _ Kwargs) (uint32, error) {
	return uint32(v.Type()), nil
}

func dimensions(v *geom.Value, _ Kwargs) (int32, error) {
	g, err := v.Geometry()
	if err != nil {
		return 0, err
	}
	return int32(geom.Dimension(g)), nil
}

func coordinateDimension(v *geom.Value, _ Kwargs) (uint32, error) {
	return uint32(v.CoordDims()), nil
}

func srid(v *geom.Value, _ Kwargs) (int32, error) {
	return v.SRID(), nil
}

func setSRID(v *geom.Value, kw Kwargs) ([]byte, error) {
	return geom.SetSRID(v.Bytes(), int32(kw.int("srid")))
}

// ordinate reads one ordinate of a non-empty point; anything else is NaN.
func ordinate(read func(p *gogeom.Point) float64, has func(v *geom.Value) bool) unaryKernel[float64] {
	return always(func(v *geom.Value, _ Kwargs) (float64, error) {
		if v.Type() != geom.Point || !has(v) {
			return math.NaN(), nil
		}
		g, err := v.Geometry()
		if err != nil {
			return 0, err
		}
		p := g.(*gogeom.Point)
		if p.Empty() {
			return math.NaN(), nil
		}
		return read(p), nil
	})
}

var (
	getX = ordinate((*gogeom.Point).X, func(*geom.Value) bool { return true })
	getY = ordinate((*gogeom.Point).Y, func(*geom.Value) bool { return true })
	getZ = ordinate((*gogeom.Point).Z, (*geom.Value).HasZ)
	getM = ordinate((*gogeom.Point).M, (*geom.Value).HasM)
)

func exteriorRing(v *geom.Value, _ Kwargs) ([]byte, bool, error) {
	if v.Type() != geom.Polygon {
		return nil, false, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, false, err
	}
	p := g.(*gogeom.Polygon)
	if p.NumLinearRings() == 0 {
		return geom.EmptyOf(geom.LineString, v.SRID()), true, nil
	}
	out, err := geom.EncodeWithSRID(ring(p, 0), v.SRID())
	return out, err == nil, err
}

func interiorRings(v *geom.Value, _ Kwargs) ([][]byte, error) {
	if v.Type() != geom.Polygon {
		return nil, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, err
	}
	p := g.(*gogeom.Polygon)

	var out [][]byte
	for i := 1; i < p.NumLinearRings(); i++ {
		b, err := geom.EncodeWithSRID(ring(p, i), v.SRID())
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func countPoints(v *geom.Value, _ Kwargs) (uint32, error) {
	if v.Type() != geom.LineString {
		return 0, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return 0, err
	}
	return uint32(g.(*gogeom.LineString).NumCoords()), nil
}

func countInteriorRings(v *geom.Value, _ Kwargs) (uint32, error) {
	if v.Type() != geom.Polygon {
		return 0, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return 0, err
	}
	return uint32(max(g.(*gogeom.Polygon).NumLinearRings()-1, 0)), nil
}

func countGeometries(v *geom.Value, _ Kwargs) (uint32, error) {
	if !v.Type().IsCollection() {
		return 1, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return 0, err
	}
	return uint32(len(members(g))), nil
}

func countCoordinates(v *geom.Value, _ Kwargs) (uint32, error) {
	if empty, err := v.IsEmpty(); err != nil || empty {
		return 0, err
	}
	g, err := v.Geometry()
	if err != nil {
		return 0, err
	}
	return uint32(numCoords(g)), nil
}

func getPoint(v *geom.Value, kw Kwargs) ([]byte, bool, error) {
	if v.Type() != geom.LineString {
		return nil, false, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, false, err
	}
	ls := g.(*gogeom.LineString)
	i := kw.int("index")
	if i < 0 || i >= ls.NumCoords() {
		return nil, false, nil
	}
	out, err := geom.EncodeWithSRID(gogeom.NewPointFlat(ls.Layout(), ls.Coord(i)), v.SRID())
	return out, err == nil, err
}

// getInteriorRing passes the type rule for CurvePolygon too, but curved
// bodies are not decoded, so a CurvePolygon yields null.
func getInteriorRing(v *geom.Value, kw Kwargs) ([]byte, bool, error) {
	if v.Type() != geom.Polygon {
		return nil, false, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, false, err
	}
	p := g.(*gogeom.Polygon)
	i := kw.int("index")
	if i < 0 || i+1 >= p.NumLinearRings() {
		return nil, false, nil
	}
	out, err := geom.EncodeWithSRID(ring(p, i+1), v.SRID())
	return out, err == nil, err
}

func getGeometry(v *geom.Value, kw Kwargs) ([]byte, bool, error) {
	i := kw.int("index")
	if !v.Type().IsCollection() {
		return v.Bytes(), i == 0, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, false, err
	}
	ms := members(g)
	if i < 0 || i >= len(ms) {
		return nil, false, nil
	}
	out, err := geom.EncodeWithSRID(ms[i], v.SRID())
	return out, err == nil, err
}

func getParts(v *geom.Value, _ Kwargs) ([][]byte, error) {
	if !v.Type().IsCollection() {
		return [][]byte{v.Bytes()}, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, err
	}
	ms := members(g)
	out := make([][]byte, len(ms))
	for i, m := range ms {
		if out[i], err = geom.EncodeWithSRID(m, v.SRID()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// precision is always 0: values carry no precision model once serialized.
func precision(*geom.Value, Kwargs) (float64, error) {
	return 0, nil
}

func getBounds(v *geom.Value, _ Kwargs) ([4]float64, error) {
	if empty, err := v.IsEmpty(); err != nil || empty {
		return nan4, err
	}
	g, err := v.Geometry()
	if err != nil {
		return nan4, err
	}
	return extent(g), nil
}

func hasZ(v *geom.Value, _ Kwargs) (bool, error) { return v.HasZ(), nil }
func hasM(v *geom.Value, _ Kwargs) (bool, error) { return v.HasM(), nil }

func isEmptyKernel(v *geom.Value, _ Kwargs) (bool, error) {
	return v.IsEmpty()
}

func isCCW(v *geom.Value, _ Kwargs) (bool, error) {
	if !v.Type().In(geom.Point, geom.LineString) {
		return false, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return false, err
	}
	flat, stride := g.FlatCoords(), g.Stride()
	if stride == 0 || len(flat)/stride < 4 {
		return false, nil
	}
	return xy.IsRingCounterClockwise(g.Layout(), flat), nil
}

func isClosed(v *geom.Value, _ Kwargs) (bool, error) {
	if !v.Type().In(geom.LineString, geom.MultiLineString) {
		return false, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return false, err
	}

	closed := func(flat []float64, stride int) bool {
		n := len(flat)
		if n < 2*stride {
			return false
		}
		return flat[0] == flat[n-stride] && flat[1] == flat[n-stride+1]
	}

	switch g := g.(type) {
	case *gogeom.LineString:
		return closed(g.FlatCoords(), g.Stride()), nil
	case *gogeom.MultiLineString:
		if g.NumLineStrings() == 0 {
			return false, nil
		}
		for i := 0; i < g.NumLineStrings(); i++ {
			ls := g.LineString(i)
			if !closed(ls.FlatCoords(), ls.Stride()) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

// coordinates lists every coordinate with dims ordinates. A missing Z
// reads as NaN.
func coordinates(v *geom.Value, kw Kwargs) ([]float64, error) {
	if empty, err := v.IsEmpty(); err != nil || empty {
		return nil, err
	}
	g, err := v.Geometry()
	if err != nil {
		return nil, err
	}

	dims := kw.int("output_dimension")
	var out []float64
	walk(g, func(leaf gogeom.T) {
		flat, stride := leaf.FlatCoords(), leaf.Stride()
		for i := 0; i+stride <= len(flat) && stride > 0; i += stride {
			out = append(out, flat[i], flat[i+1])
			if dims > 2 {
				z := math.NaN()
				if zi := leaf.Layout().ZIndex(); zi >= 0 {
					z = flat[i+zi]
				}
				out = append(out, z)
			}
		}
	})
	return out, nil
}
