package st

import (
	"testing"

	"geoexpr/pkg/frame"
	"geoexpr/pkg/geom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gogeom "github.com/twpayne/go-geom"
)

func TestCast(t *testing.T) {
	tests := []struct {
		wkt    string
		into   string
		want   geom.Type
		coords []float64
	}{
		{"POINT (1 2)", "MultiPoint", geom.MultiPoint, []float64{1, 2}},
		{"POINT (1 2)", "Point", geom.Point, []float64{1, 2}},
		{"LINESTRING (0 0, 1 1)", "MultiPoint", geom.MultiPoint, []float64{0, 0, 1, 1}},
		{"LINESTRING (0 0, 1 1)", "MultiLineString", geom.MultiLineString, []float64{0, 0, 1, 1}},
		{"MULTIPOINT ((0 0), (1 1))", "LineString", geom.LineString, []float64{0, 0, 1, 1}},
		{"MULTILINESTRING ((0 0, 1 0, 1 1, 0 0))", "Polygon", geom.Polygon, []float64{0, 0, 1, 0, 1, 1, 0, 0}},
		{"POLYGON ((0 0, 1 0, 1 1, 0 0))", "MultiPolygon", geom.MultiPolygon, []float64{0, 0, 1, 0, 1, 1, 0, 0}},
		{"POINT Z (1 2 3)", "MultiPoint", geom.MultiPoint, []float64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.wkt+"/"+tt.into, func(t *testing.T) {
			out := evalCall(t, "cast", Kwargs{"into": tt.into}, mustWKB(t, tt.wkt))
			v, g := decoded(t, binaryAt(t, out, 0))
			assert.Equal(t, tt.want, v.Type())
			assert.Equal(t, tt.coords, g.FlatCoords())
		})
	}
}

func TestCastToCollections(t *testing.T) {
	out := evalCall(t, "cast", Kwargs{"into": "GeometryCollection"},
		mustWKB(t, "POINT (1 2)"),
		mustWKB(t, "MULTIPOINT ((0 0), (1 1))"),
		mustWKB(t, "POINT EMPTY"),
	)
	_, g := decoded(t, binaryAt(t, out, 0))
	gc := g.(*gogeom.GeometryCollection)
	require.Equal(t, 1, gc.NumGeoms())
	assert.Equal(t, []float64{1, 2}, gc.Geom(0).FlatCoords())

	_, g = decoded(t, binaryAt(t, out, 1))
	assert.Equal(t, 2, g.(*gogeom.GeometryCollection).NumGeoms())

	_, g = decoded(t, binaryAt(t, out, 2))
	assert.Equal(t, 1, g.(*gogeom.GeometryCollection).NumGeoms())

	out = evalCall(t, "cast", Kwargs{"into": "MultiPolygon"}, mustWKB(t, "POLYGON EMPTY"))
	assertEmpty(t, binaryAt(t, out, 0), geom.MultiPolygon)

	out = evalCall(t, "cast", Kwargs{"into": "MultiSurface"}, mustWKB(t, "MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))"))
	v, err := geom.Decode(binaryAt(t, out, 0))
	require.NoError(t, err)
	assert.Equal(t, geom.MultiSurface, v.Type())
	empty, err := v.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestCastCurves(t *testing.T) {
	out := evalCall(t, "cast", Kwargs{"into": "CircularString"}, mustWKB(t, "LINESTRING (0 0, 1 1, 2 0)"))
	arc := binaryAt(t, out, 0)
	v, err := geom.Decode(arc)
	require.NoError(t, err)
	assert.Equal(t, geom.CircularString, v.Type())

	out = evalCall(t, "cast", Kwargs{"into": "MultiPoint"}, arc)
	_, g := decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, []float64{0, 0, 1, 1, 2, 0}, g.FlatCoords())

	out = evalCall(t, "cast", Kwargs{"into": "MultiLineString"}, arc)
	v, g = decoded(t, binaryAt(t, out, 0))
	assert.Equal(t, geom.MultiLineString, v.Type())
	assert.Equal(t, []float64{0, 0, 1, 1, 2, 0}, g.FlatCoords())

	out = evalCall(t, "cast", Kwargs{"into": "MultiCurve"}, arc)
	v, err = geom.Decode(binaryAt(t, out, 0))
	require.NoError(t, err)
	assert.Equal(t, geom.MultiCurve, v.Type())
}

func TestCastErrors(t *testing.T) {
	_, err := tryCall(t, "cast", Kwargs{"into": "Polygon"}, mustWKB(t, "POINT (1 2)"))
	require.Error(t, err)
	assert.True(t, ErrInvalidCast.Is(err), err.Error())

	_, err = tryCall(t, "cast", Kwargs{"into": "Polygon"}, mustWKB(t, "MULTILINESTRING ((0 0, 1 0, 1 1))"))
	require.Error(t, err)
	assert.True(t, ErrInvalidCoordinates.Is(err), err.Error())

	for _, into := range []string{"Blob", "Unknown", "point"} {
		_, err = Call("cast", frame.Col("geometry"), Kwargs{"into": into})
		assert.True(t, ErrInvalidArgument.Is(err), into)
	}
}

func TestMulti(t *testing.T) {
	out := evalCall(t, "multi", nil,
		mustWKB(t, "POINT (1 2)"),
		mustWKB(t, "POLYGON ((0 0, 1 0, 1 1, 0 0))"),
		mustWKB(t, "MULTIPOINT ((0 0), (1 1))"),
		mustWKB(t, "LINESTRING EMPTY"),
		curvePolygon(),
		nil,
	)

	types := []geom.Type{geom.MultiPoint, geom.MultiPolygon, geom.MultiPoint, geom.MultiLineString, geom.MultiSurface}
	for i, want := range types {
		v, err := geom.Decode(binaryAt(t, out, i))
		require.NoError(t, err)
		assert.Equal(t, want, v.Type(), i)
	}
	assertEmpty(t, binaryAt(t, out, 3), geom.MultiLineString)
	assert.True(t, out.IsNull(5))
}
