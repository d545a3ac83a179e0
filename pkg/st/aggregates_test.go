package st

import (
	"context"
	"math"
	"testing"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/frame"
	"geoexpr/pkg/geom"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gogeom "github.com/twpayne/go-geom"
)

func aggregate(t *testing.T, name string, kw Kwargs, values ...[]byte) (arrow.Array, error) {
	t.Helper()
	f := geomFrame(t, values...)
	e, err := Agg(name, frame.Col("geometry"), kw)
	require.NoError(t, err)

	out, err := f.Select(context.Background(), e)
	if err != nil {
		return nil, err
	}
	t.Cleanup(out.Release)
	require.Equal(t, 1, out.NumRows())
	return out.ColumnAt(0), nil
}

func mustAggregate(t *testing.T, name string, kw Kwargs, values ...[]byte) arrow.Array {
	t.Helper()
	out, err := aggregate(t, name, kw, values...)
	require.NoError(t, err)
	return out
}

// assertIdentity checks that col holds exactly the identity of a.
func assertIdentity(t *testing.T, a *Aggregate, col arrow.Array) {
	t.Helper()
	require.Equal(t, 1, col.Len())
	require.True(t, arrow.TypeEqual(a.Type, col.DataType()))
	require.True(t, col.IsValid(0))

	switch want := a.Identity.(type) {
	case []byte:
		assert.Equal(t, want, col.(*array.Binary).Value(0))
	case [4]float64:
		vals := col.(*array.FixedSizeList).ListValues().(*array.Float64)
		require.Equal(t, 4, vals.Len())
		for i := 0; i < 4; i++ {
			assert.True(t, math.IsNaN(vals.Value(i)))
		}
	default:
		t.Fatalf("unexpected identity %T", want)
	}
}

func TestAggregateIdentities(t *testing.T) {
	for _, name := range Aggregates() {
		a, _ := LookupAggregate(name)
		t.Run(name, func(t *testing.T) {
			assertIdentity(t, a, mustAggregate(t, name, nil))
			assertIdentity(t, a, mustAggregate(t, name, nil, nil, nil))
		})
	}
}

func TestAggregateIdentitiesGrouped(t *testing.T) {
	for _, name := range Aggregates() {
		a, _ := LookupAggregate(name)
		t.Run(name, func(t *testing.T) {
			f := geomFrame(t, nil)
			e, err := Agg(name, frame.Col("geometry"), nil)
			require.NoError(t, err)

			g, err := f.GroupBy(frame.Lit(1)).Agg(context.Background(), e)
			require.NoError(t, err)
			defer g.Release()
			assertIdentity(t, a, g.ColumnAt(1))

			lists := grouped(t, f)
			inner, err := Agg(name, frame.Element(), nil)
			require.NoError(t, err)
			out, err := lists.Select(context.Background(), frame.ListEval(frame.Col("geometry"), inner))
			require.NoError(t, err)
			defer out.Release()

			l := out.ColumnAt(0).(*array.List)
			require.Equal(t, 1, l.Len())
			assertIdentity(t, a, l.ListValues())
		})
	}
}

func TestAggregateIdentitiesEmptyGroups(t *testing.T) {
	for _, name := range Aggregates() {
		a, _ := LookupAggregate(name)
		t.Run(name, func(t *testing.T) {
			f := geomFrame(t)
			e, err := Agg(name, frame.Col("geometry"), nil)
			require.NoError(t, err)

			g, err := f.GroupBy(frame.Lit(1)).Agg(context.Background(), e)
			require.NoError(t, err)
			defer g.Release()
			assert.Equal(t, 0, g.NumRows())
			assert.True(t, arrow.TypeEqual(a.Type, g.Schema().Field(1).Type))
		})
	}
}

func TestUnionAllEmptyFrame(t *testing.T) {
	out := mustAggregate(t, "union_all", nil)
	assert.True(t, arrow.TypeEqual(arrow.BinaryTypes.Binary, out.DataType()))
	assert.Equal(t, geom.EmptyOf(geom.GeometryCollection, 0), out.(*array.Binary).Value(0))
}

func TestUnionAll(t *testing.T) {
	out := mustAggregate(t, "union_all", nil,
		mustWKB(t, "POLYGON ((0 0, 2 0, 2 2, 0 2, 0 0))"),
		nil,
		mustWKB(t, "POLYGON ((1 0, 3 0, 3 2, 1 2, 1 0))"),
	)
	v, _ := decoded(t, out.(*array.Binary).Value(0))
	assert.Equal(t, geom.Polygon, v.Type())

	a := evalCall(t, "area", nil, out.(*array.Binary).Value(0))
	assert.InDelta(t, 6.0, a.(*array.Float64).Value(0), 1e-9)
}

func TestIntersectionAll(t *testing.T) {
	out := mustAggregate(t, "intersection_all", nil,
		mustWKB(t, "POLYGON ((0 0, 2 0, 2 2, 0 2, 0 0))"),
		mustWKB(t, "POLYGON ((1 0, 3 0, 3 2, 1 2, 1 0))"),
		mustWKB(t, "POLYGON ((1 1, 3 1, 3 3, 1 3, 1 1))"),
	)
	a := evalCall(t, "area", nil, out.(*array.Binary).Value(0))
	assert.InDelta(t, 1.0, a.(*array.Float64).Value(0), 1e-9)
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   geom.Type
	}{
		{"points", []string{"POINT (0 0)", "POINT (1 1)"}, geom.MultiPoint},
		{"lines", []string{"LINESTRING (0 0, 1 1)", "LINESTRING (2 2, 3 3)"}, geom.MultiLineString},
		{"polygons", []string{"POLYGON ((0 0, 1 0, 0 1, 0 0))"}, geom.MultiPolygon},
		{"mixed", []string{"POINT (0 0)", "LINESTRING (0 0, 1 1)"}, geom.GeometryCollection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([][]byte, len(tt.values))
			for i, wkt := range tt.values {
				values[i] = mustWKB(t, wkt)
			}
			out := mustAggregate(t, "collect", nil, values...)
			v, g := decoded(t, out.(*array.Binary).Value(0))
			assert.Equal(t, tt.want, v.Type())
			assert.Len(t, members(g), len(tt.values))
		})
	}
}

func TestCollectKeepsFirstSRID(t *testing.T) {
	a, err := geom.SetSRID(mustWKB(t, "POINT (0 0)"), 4326)
	require.NoError(t, err)
	b, err := geom.SetSRID(mustWKB(t, "POINT (1 1)"), 3857)
	require.NoError(t, err)

	out := mustAggregate(t, "multipoint", nil, a, b)
	v, g := decoded(t, out.(*array.Binary).Value(0))
	assert.Equal(t, int32(4326), v.SRID())
	assert.Equal(t, []float64{0, 0, 1, 1}, g.FlatCoords())
}

func TestTypedCollectRejectsMembers(t *testing.T) {
	_, err := aggregate(t, "multipoint", nil, mustWKB(t, "POINT (0 0)"), mustWKB(t, "LINESTRING (0 0, 1 1)"))
	require.Error(t, err)
	assert.True(t, geom.ErrInvalidMember.Is(err), err.Error())
}

func TestTotalBounds(t *testing.T) {
	out := mustAggregate(t, "total_bounds", nil,
		mustWKB(t, "POINT (1 5)"),
		mustWKB(t, "POINT EMPTY"),
		nil,
		mustWKB(t, "LINESTRING (-1 0, 3 2)"),
	)
	assert.True(t, arrow.TypeEqual(arity.BoundsType, out.DataType()))
	vals := out.(*array.FixedSizeList).ListValues().(*array.Float64)
	assert.Equal(t, []float64{-1, 0, 3, 5}, vals.Float64Values())
}

func TestTotalBoundsAllEmpty(t *testing.T) {
	out := mustAggregate(t, "total_bounds", nil, mustWKB(t, "POINT EMPTY"), mustWKB(t, "LINESTRING EMPTY"))
	vals := out.(*array.FixedSizeList).ListValues().(*array.Float64)
	for _, v := range vals.Float64Values() {
		assert.True(t, math.IsNaN(v))
	}
}

func TestTriangulations(t *testing.T) {
	points := [][]byte{
		mustWKB(t, "POINT (0 0)"),
		mustWKB(t, "POINT (4 0)"),
		mustWKB(t, "POINT (0 4)"),
		mustWKB(t, "POINT (4 4)"),
	}

	tests := []struct {
		name string
		kw   Kwargs
		want geom.Type
	}{
		{"voronoi_polygons", nil, geom.GeometryCollection},
		{"voronoi_polygons", Kwargs{"only_edges": true}, geom.MultiLineString},
		{"delaunay_triangles", nil, geom.GeometryCollection},
		{"delaunay_triangles", Kwargs{"only_edges": true}, geom.MultiLineString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustAggregate(t, tt.name, tt.kw, points...)
			v, g := decoded(t, out.(*array.Binary).Value(0))
			assert.Equal(t, tt.want, v.Type())
			assert.False(t, geom.IsEmpty(g))
		})
	}
}

func TestPolygonize(t *testing.T) {
	out := mustAggregate(t, "polygonize", nil,
		mustWKB(t, "LINESTRING (0 0, 1 0)"),
		mustWKB(t, "LINESTRING (1 0, 1 1)"),
		mustWKB(t, "LINESTRING (1 1, 0 0)"),
	)
	v, g := decoded(t, out.(*array.Binary).Value(0))
	assert.Equal(t, geom.GeometryCollection, v.Type())
	require.Len(t, members(g), 1)
	assert.IsType(t, &gogeom.Polygon{}, members(g)[0])
}
