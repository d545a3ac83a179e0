package st

import (
	"encoding/binary"
	"math"
	"testing"

	"geoexpr/pkg/frame"
	"geoexpr/pkg/geom"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gogeom "github.com/twpayne/go-geom"
)

func binaryAt(t *testing.T, col interface{}, i int) []byte {
	t.Helper()
	b, ok := col.(*array.Binary)
	require.True(t, ok)
	require.True(t, b.IsValid(i))
	return b.Value(i)
}

func TestAccessors(t *testing.T) {
	polygon := mustWKB(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0), (1 1, 2 1, 2 2, 1 1))")
	point := mustWKB(t, "POINT (1 2)")
	empty := mustWKB(t, "GEOMETRYCOLLECTION EMPTY")

	dims := evalCall(t, "dimensions", nil, polygon, point, empty, nil).(*array.Int32)
	assert.Equal(t, []int32{2, 0, -1}, dims.Int32Values()[:3])
	assert.True(t, dims.IsNull(3))

	counts := evalCall(t, "count_interior_rings", nil, polygon, point).(*array.Uint32)
	assert.Equal(t, []uint32{1, 0}, counts.Uint32Values())

	ext := evalCall(t, "exterior_ring", nil, polygon, point)
	_, g := decoded(t, binaryAt(t, ext, 0))
	assert.IsType(t, &gogeom.LineString{}, g)
	assert.Len(t, g.FlatCoords(), 10)
	assert.True(t, ext.IsNull(1))

	rings := evalCall(t, "rings", nil, polygon).(*array.List)
	start, end := rings.ValueOffsets(0)
	assert.Equal(t, int64(1), end-start)
}

func TestGetGeometry(t *testing.T) {
	multi := mustWKB(t, "MULTIPOINT ((0 0), (1 1))")
	point := mustWKB(t, "POINT (1 2)")

	out := evalCall(t, "get_geometry", Kwargs{"index": 1}, multi, point)
	_, g := decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{1, 1}, g.FlatCoords())
	assert.True(t, out.IsNull(1))

	out = evalCall(t, "get_geometry", Kwargs{"index": 5}, multi)
	assert.True(t, out.IsNull(0))

	out = evalCall(t, "get_geometry", Kwargs{"index": 0}, point)
	assert.Equal(t, point, binaryAt(t, out, 0))
}

func TestGetInteriorRing(t *testing.T) {
	_, err := tryCall(t, "get_interior_ring", Kwargs{"index": 0}, mustWKB(t, "POINT (1 2)"))
	require.Error(t, err)
	assert.True(t, ErrNotPolygon.Is(err))
	assert.Contains(t, err.Error(), "Polygon or CurvePolygon")

	out := evalCall(t, "get_interior_ring", Kwargs{"index": 0}, mustWKB(t, "POINT EMPTY"))
	assert.True(t, out.IsNull(0))

	out = evalCall(t, "get_interior_ring", Kwargs{"index": 0}, curvePolygon())
	assert.True(t, out.IsNull(0))
}

// curvePolygon encodes CURVEPOLYGON ((0 0, 1 0, 1 1, 0 0)) by hand.
func curvePolygon() []byte {
	b := []byte{1}
	b = binary.LittleEndian.AppendUint32(b, uint32(geom.CurvePolygon))
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = append(b, 1)
	b = binary.LittleEndian.AppendUint32(b, uint32(geom.LineString))
	b = binary.LittleEndian.AppendUint32(b, 4)
	for _, f := range []float64{0, 0, 1, 0, 1, 1, 0, 0} {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
	}
	return b
}

func TestNestedEmptyPoints(t *testing.T) {
	nan := []byte{1}
	nan = binary.LittleEndian.AppendUint32(nan, uint32(geom.Point))
	nan = binary.LittleEndian.AppendUint64(nan, math.Float64bits(math.NaN()))
	nan = binary.LittleEndian.AppendUint64(nan, math.Float64bits(math.NaN()))

	collected, err := geom.Collect(geom.GeometryCollection, [][]byte{nan}, 0)
	require.NoError(t, err)
	multi, err := geom.Collect(geom.MultiPoint, [][]byte{nan, mustWKB(t, "POINT (1 2)")}, 0)
	require.NoError(t, err)
	parsed := mustWKB(t, "GEOMETRYCOLLECTION (POINT EMPTY)")

	empty := evalCall(t, "is_empty", nil, collected, parsed, multi).(*array.Boolean)
	assert.True(t, empty.Value(0))
	assert.True(t, empty.Value(1))
	assert.False(t, empty.Value(2))

	counts := evalCall(t, "count_coordinates", nil, collected, parsed, multi).(*array.Uint32)
	assert.Equal(t, []uint32{0, 0, 1}, counts.Uint32Values())

	for _, b := range [][]byte{collected, parsed} {
		_, err := tryCall(t, "relate", Kwargs{"other": "POINT (1 2)"}, b)
		assert.True(t, ErrRelateEmptyCollection.Is(err))
	}
}

func TestRuleErrors(t *testing.T) {
	_, err := tryCall(t, "coverage_union", nil,
		mustWKB(t, "GEOMETRYCOLLECTION (POINT (0 0), LINESTRING (0 0, 1 1))"))
	assert.True(t, ErrMixedDimension.Is(err))

	_, err = tryCall(t, "relate", Kwargs{"other": "POINT (1 2)"}, mustWKB(t, "GEOMETRYCOLLECTION EMPTY"))
	assert.True(t, ErrRelateEmptyCollection.Is(err))

	_, err = tryCall(t, "union", Kwargs{"other": "POINT (1 2)", "grid_size": 1},
		mustWKB(t, "GEOMETRYCOLLECTION (POINT (0 0))"))
	assert.True(t, ErrMixedDimension.Is(err))

	out, err := tryCall(t, "union", Kwargs{"other": "POINT (1 2)"}, mustWKB(t, "GEOMETRYCOLLECTION (POINT (0 0))"))
	require.NoError(t, err)
	v, _ := decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, geom.MultiPoint, v.Type())
}

func TestMeasures(t *testing.T) {
	square := mustWKB(t, "POLYGON ((0 0, 2 0, 2 2, 0 2, 0 0))")

	a := evalCall(t, "area", nil, square, mustWKB(t, "POLYGON EMPTY"), nil).(*array.Float64)
	assert.Equal(t, 4.0, a.Value(0))
	assert.Equal(t, 0.0, a.Value(1))
	assert.True(t, a.IsNull(2))

	l := evalCall(t, "length", nil, square).(*array.Float64)
	assert.Equal(t, 8.0, l.Value(0))

	d := evalCall(t, "distance", Kwargs{"other": "POINT (5 2)"}, square, mustWKB(t, "POINT EMPTY")).(*array.Float64)
	assert.Equal(t, 3.0, d.Value(0))
	assert.True(t, math.IsNaN(d.Value(1)))

	d = evalCall(t, "distance", Kwargs{"other": "POINT EMPTY"}, square).(*array.Float64)
	assert.True(t, math.IsNaN(d.Value(0)))
}

func TestProject(t *testing.T) {
	line := mustWKB(t, "LINESTRING (0 0, 10 0)")
	point := mustWKB(t, "POINT (0 0)")

	p := evalCall(t, "project", Kwargs{"other": "POINT (3 1)"}, line, point).(*array.Float64)
	assert.InDelta(t, 3.0, p.Value(0), 1e-9)
	assert.True(t, math.IsNaN(p.Value(1)))

	p = evalCall(t, "project", Kwargs{"other": "POINT (3 1)", "normalized": true}, line).(*array.Float64)
	assert.InDelta(t, 0.3, p.Value(0), 1e-9)
}

func TestPredicates(t *testing.T) {
	square := mustWKB(t, "POLYGON ((0 0, 2 0, 2 2, 0 2, 0 0))")
	far := mustWKB(t, "POINT (10 10)")

	c := evalCall(t, "contains", Kwargs{"other": "POINT (1 1)"}, square, far).(*array.Boolean)
	assert.True(t, c.Value(0))
	assert.False(t, c.Value(1))

	w := evalCall(t, "dwithin", Kwargs{"other": "POINT (1 2)", "distance": 3}, mustWKB(t, "POINT (0 0)"), far, mustWKB(t, "POINT EMPTY")).(*array.Boolean)
	assert.True(t, w.Value(0))
	assert.False(t, w.Value(1))
	assert.False(t, w.Value(2))

	r := evalCall(t, "relate", Kwargs{"other": "POINT (1 1)"}, square).(*array.String)
	assert.Equal(t, "0F2FF1FF2", r.Value(0))

	same, err := geom.SetSRID(mustWKB(t, "POINT (1 2)"), 4326)
	require.NoError(t, err)
	eq := evalCall(t, "equals_identical", Kwargs{"other": "POINT (1 2)"}, mustWKB(t, "POINT (1 2)"), same, mustWKB(t, "POINT Z (1 2 0)")).(*array.Boolean)
	assert.Equal(t, []bool{true, true, false}, []bool{eq.Value(0), eq.Value(1), eq.Value(2)})
}

func TestConstructive(t *testing.T) {
	out := evalCall(t, "center", nil, mustWKB(t, "LINESTRING (0 0, 2 4)"), mustWKB(t, "LINESTRING EMPTY"))
	_, g := decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{1, 2}, g.FlatCoords())
	v, _ := decoded(t, binaryAt(t, out, 1))
	assert.Equal(t, geom.Point, v.Type())

	out = evalCall(t, "shortest_line", Kwargs{"other": "POINT (3 4)"}, mustWKB(t, "POINT (0 0)"), mustWKB(t, "POINT EMPTY"))
	_, g = decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{0, 0, 3, 4}, g.FlatCoords())
	v, _ = decoded(t, binaryAt(t, out, 1))
	assert.Equal(t, geom.LineString, v.Type())

	area := evalCall(t, "area", nil, binaryAt(t, evalCall(t, "buffer", Kwargs{"distance": 1}, mustWKB(t, "POINT (0 0)")), 0)).(*array.Float64)
	assert.InDelta(t, math.Pi, area.Value(0), 0.05)

	out = evalCall(t, "offset_curve", Kwargs{"distance": 1}, mustWKB(t, "LINESTRING EMPTY"), mustWKB(t, "POINT EMPTY"))
	v, _ = decoded(t, binaryAt(t, out, 1))
	assert.Equal(t, geom.LineString, v.Type())
}

func TestCoordinateTransforms(t *testing.T) {
	pz := mustWKB(t, "POINT Z (1 2 3)")

	out := evalCall(t, "force_2d", nil, pz)
	v, g := decoded(t, binaryAt(t, out, 0))
	assert.False(t, v.HasZ())
	assert.Equal(t, []float64{1, 2}, g.FlatCoords())

	out = evalCall(t, "force_3d", Kwargs{"z": 7}, mustWKB(t, "LINESTRING (0 0, 1 1)"))
	v, g = decoded(t, binaryAt(t, out, 0))
	assert.True(t, v.HasZ())
	assert.Equal(t, []float64{0, 0, 7, 1, 1, 7}, g.FlatCoords())

	out = evalCall(t, "flip_coordinates", nil, mustWKB(t, "POINT (1 2)"))
	_, g = decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{2, 1}, g.FlatCoords())

	out = evalCall(t, "translate", Kwargs{"x": 1, "z": 1}, pz)
	_, g = decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{2, 2, 4}, g.FlatCoords())

	out = evalCall(t, "extract_unique_points", nil, mustWKB(t, "LINESTRING (0 0, 1 1, 0 0)"))
	v, g = decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, geom.MultiPoint, v.Type())
	assert.Equal(t, []float64{0, 0, 1, 1}, g.FlatCoords())

	out = evalCall(t, "remove_repeated_points", nil, mustWKB(t, "LINESTRING (0 0, 0 0, 1 1)"))
	_, g = decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{0, 0, 1, 1}, g.FlatCoords())
}

func TestSerialization(t *testing.T) {
	point, err := geom.SetSRID(mustWKB(t, "POINT (1 2)"), 4326)
	require.NoError(t, err)

	wkt := evalCall(t, "to_wkt", nil, point).(*array.String)
	assert.Equal(t, "POINT (1 2)", wkt.Value(0))

	ewkt := evalCall(t, "to_ewkt", nil, point, mustWKB(t, "POINT (1 2)")).(*array.String)
	assert.Equal(t, "SRID=4326;POINT (1 2)", ewkt.Value(0))
	assert.Equal(t, "POINT (1 2)", ewkt.Value(1))

	out := evalCall(t, "to_wkb", Kwargs{"include_srid": true}, point)
	v, _ := decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, int32(4326), v.SRID())

	out = evalCall(t, "to_wkb", nil, point)
	v, _ = decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, int32(0), v.SRID())

	out = evalCall(t, "to_wkb", Kwargs{"byte_order": 0}, mustWKB(t, "POINT (1 2)"))
	assert.Equal(t, byte(0), binaryAt(t, out, 0)[0])
	_, g := decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{1, 2}, g.FlatCoords())

	out = evalCall(t, "to_wkb", Kwargs{"output_dimension": 2}, mustWKB(t, "POINT Z (1 2 3)"))
	v, _ = decoded(t, binaryAt(t, out, 0))
	assert.False(t, v.HasZ())

	js := evalCall(t, "to_geojson", nil, mustWKB(t, "POINT (1 2)")).(*array.String)
	assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, js.Value(0))
}

func TestPointPredicates(t *testing.T) {
	square := mustWKB(t, "POLYGON ((0 0, 2 0, 2 2, 0 2, 0 0))")
	values := [][]byte{square, mustWKB(t, "POINT (5 5)"), mustWKB(t, "POLYGON EMPTY"), nil}

	in := evalCall(t, "intersects_xy", Kwargs{"x": 2, "y": 1}, values...).(*array.Boolean)
	assert.Equal(t, []bool{true, false, false}, []bool{in.Value(0), in.Value(1), in.Value(2)})
	assert.True(t, in.IsNull(3))

	c := evalCall(t, "contains_xy", Kwargs{"x": 2, "y": 1}, values...).(*array.Boolean)
	assert.False(t, c.Value(0))
	c = evalCall(t, "contains_xy", Kwargs{"x": 1, "y": 1}, values...).(*array.Boolean)
	assert.True(t, c.Value(0))
	assert.False(t, c.Value(1))
}

func TestDisjointSubsetUnion(t *testing.T) {
	out := evalCall(t, "disjoint_subset_union", nil,
		mustWKB(t, "MULTIPOLYGON (((0 0, 1 0, 1 1, 0 1, 0 0)), ((1 0, 2 0, 2 1, 1 1, 1 0)), ((5 5, 6 5, 6 6, 5 5)))"))
	area := evalCall(t, "area", nil, binaryAt(t, out, 0)).(*array.Float64)
	assert.InDelta(t, 2.5, area.Value(0), 1e-9)

	parts := evalCall(t, "count_geometries", nil, binaryAt(t, out, 0)).(*array.Uint32)
	assert.Equal(t, uint32(2), parts.Value(0))
}

func TestWKTOptions(t *testing.T) {
	point, err := geom.SetSRID(mustWKB(t, "POINT (1 2)"), 4326)
	require.NoError(t, err)
	pz := mustWKB(t, "POINT Z (1.5 2 3)")

	tests := []struct {
		name  string
		fn    string
		kw    Kwargs
		value []byte
		want  string
	}{
		{"fixed decimals", "to_wkt", Kwargs{"rounding_precision": 2, "trim": false}, point, "POINT (1.00 2.00)"},
		{"trimmed decimals", "to_wkt", Kwargs{"rounding_precision": 2}, mustWKB(t, "POINT (1.2345 2)"), "POINT (1.23 2)"},
		{"old 3d", "to_wkt", Kwargs{"old_3d": true}, pz, "POINT (1.5 2 3)"},
		{"tagged 3d", "to_wkt", nil, pz, "POINT Z (1.5 2 3)"},
		{"two dimensions", "to_wkt", Kwargs{"output_dimension": 2}, pz, "POINT (1.5 2)"},
		{"empty old 3d", "to_wkt", Kwargs{"old_3d": true}, mustWKB(t, "POINT Z EMPTY"), "POINT EMPTY"},
		{"ewkt fixed decimals", "to_ewkt", Kwargs{"rounding_precision": 1, "trim": false}, point, "SRID=4326;POINT (1.0 2.0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := evalCall(t, tt.fn, tt.kw, tt.value).(*array.String)
			assert.Equal(t, tt.want, out.Value(0))
		})
	}

	for _, dims := range []int{1, 5} {
		_, err := Call("to_wkt", frame.Col("geometry"), Kwargs{"output_dimension": dims})
		assert.True(t, ErrInvalidArgument.Is(err), dims)
	}
}
