package geom

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gogeom "github.com/twpayne/go-geom"
)

func TestReadHeader(t *testing.T) {
	t.Run("ewkb with srid and z", func(t *testing.T) {
		b := []byte{1}
		b = binary.LittleEndian.AppendUint32(b, uint32(Point)|ewkbZ|ewkbSRID)
		b = binary.LittleEndian.AppendUint32(b, 4326)
		for _, f := range []float64{1, 2, 3} {
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
		}

		h, err := ReadHeader(b)
		require.NoError(t, err)
		assert.Equal(t, Point, h.Type)
		assert.True(t, h.HasZ)
		assert.False(t, h.HasM)
		assert.Equal(t, int32(4326), h.SRID)
		assert.Equal(t, 3, h.Dims())
	})

	t.Run("iso big endian", func(t *testing.T) {
		b := []byte{0}
		b = binary.BigEndian.AppendUint32(b, 3002)
		b = binary.BigEndian.AppendUint32(b, 0)

		h, err := ReadHeader(b)
		require.NoError(t, err)
		assert.Equal(t, LineString, h.Type)
		assert.True(t, h.HasZ)
		assert.True(t, h.HasM)
		assert.Equal(t, int32(0), h.SRID)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ReadHeader([]byte{7, 1, 0, 0, 0})
		assert.True(t, ErrInvalidWKB.Is(err))

		_, err = ReadHeader([]byte{1})
		assert.True(t, ErrInvalidWKB.Is(err))
	})
}

func TestSetSRID(t *testing.T) {
	ls := gogeom.NewLineStringFlat(gogeom.XY, []float64{0, 0, 1, 1})
	b, err := Encode(ls)
	require.NoError(t, err)

	withSRID, err := SetSRID(b, 3857)
	require.NoError(t, err)
	assert.Len(t, withSRID, len(b)+4)

	v, err := Decode(withSRID)
	require.NoError(t, err)
	assert.Equal(t, int32(3857), v.SRID())

	g, err := v.Geometry()
	require.NoError(t, err)
	assert.Equal(t, 3857, g.SRID())
	assert.Equal(t, []float64{0, 0, 1, 1}, g.FlatCoords())

	cleared, err := SetSRID(withSRID, 0)
	require.NoError(t, err)
	assert.Equal(t, b, cleared)
}

func TestEmptyValues(t *testing.T) {
	for _, typ := range []Type{Point, LineString, Polygon, MultiPoint, MultiLineString, MultiPolygon, GeometryCollection} {
		t.Run(typ.String(), func(t *testing.T) {
			v, err := Decode(EmptyOf(typ, 0))
			require.NoError(t, err)
			assert.Equal(t, typ, v.Type())

			empty, err := v.IsEmpty()
			require.NoError(t, err)
			assert.True(t, empty)

			g, err := v.Geometry()
			require.NoError(t, err)
			assert.Equal(t, typ, TypeOf(g))
		})
	}

	t.Run("empty point round trip", func(t *testing.T) {
		b, err := Encode(gogeom.NewPointEmpty(gogeom.XYZ))
		require.NoError(t, err)

		v, err := Decode(b)
		require.NoError(t, err)
		assert.True(t, v.HasZ())

		empty, err := v.IsEmpty()
		require.NoError(t, err)
		assert.True(t, empty)
	})
}

func TestCollect(t *testing.T) {
	p1, err := Encode(gogeom.NewPointFlat(gogeom.XY, []float64{0, 0}))
	require.NoError(t, err)
	p2, err := EncodeWithSRID(gogeom.NewPointFlat(gogeom.XYZ, []float64{1, 1, 1}), 4326)
	require.NoError(t, err)
	ls, err := Encode(gogeom.NewLineStringFlat(gogeom.XY, []float64{0, 0, 1, 1}))
	require.NoError(t, err)

	t.Run("multipoint", func(t *testing.T) {
		b, err := Collect(MultiPoint, [][]byte{p1, p2}, 4326)
		require.NoError(t, err)

		v, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, MultiPoint, v.Type())
		assert.True(t, v.HasZ())
		assert.Equal(t, int32(4326), v.SRID())

		g, err := v.Geometry()
		require.NoError(t, err)
		assert.Equal(t, gogeom.XYZ, g.Layout())
		assert.Equal(t, []float64{0, 0, 0, 1, 1, 1}, g.FlatCoords())
	})

	t.Run("mixed dimensions", func(t *testing.T) {
		pz, err := Encode(gogeom.NewPointFlat(gogeom.XYZ, []float64{1, 2, 3}))
		require.NoError(t, err)
		pm, err := Encode(gogeom.NewPointFlat(gogeom.XYM, []float64{4, 5, 6}))
		require.NoError(t, err)
		empty, err := Encode(gogeom.NewPointEmpty(gogeom.XY))
		require.NoError(t, err)
		poly, err := Encode(gogeom.NewPolygonFlat(gogeom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8}))
		require.NoError(t, err)

		b, err := Collect(MultiPoint, [][]byte{pz, pm, empty}, 0)
		require.NoError(t, err)
		v, err := Decode(b)
		require.NoError(t, err)
		g, err := v.Geometry()
		require.NoError(t, err)

		mp, ok := g.(*gogeom.MultiPoint)
		require.True(t, ok)
		assert.Equal(t, gogeom.XYZM, mp.Layout())
		require.Equal(t, 3, mp.NumPoints())
		assert.Equal(t, []float64{1, 2, 3, 0}, mp.Point(0).FlatCoords())
		assert.Equal(t, []float64{4, 5, 0, 6}, mp.Point(1).FlatCoords())
		assert.True(t, mp.Point(2).Empty())

		b, err = Collect(GeometryCollection, [][]byte{pz, poly}, 0)
		require.NoError(t, err)
		v, err = Decode(b)
		require.NoError(t, err)
		g, err = v.Geometry()
		require.NoError(t, err)

		gc := g.(*gogeom.GeometryCollection)
		require.Equal(t, 2, gc.NumGeoms())
		ring := gc.Geom(1).(*gogeom.Polygon)
		assert.Equal(t, gogeom.XYZ, ring.Layout())
		assert.Equal(t, []int{12}, ring.Ends())
		assert.InDelta(t, 0.5, ring.Area(), 1e-12)
	})

	t.Run("wrong member", func(t *testing.T) {
		_, err := Collect(MultiPoint, [][]byte{p1, ls}, 0)
		assert.True(t, ErrInvalidMember.Is(err))
	})

	t.Run("geometry collection", func(t *testing.T) {
		b, err := Collect(GeometryCollection, [][]byte{p1, ls}, 0)
		require.NoError(t, err)

		v, err := Decode(b)
		require.NoError(t, err)
		g, err := v.Geometry()
		require.NoError(t, err)

		gc, ok := g.(*gogeom.GeometryCollection)
		require.True(t, ok)
		assert.Equal(t, 2, gc.NumGeoms())
		assert.Equal(t, 1, Dimension(gc))
		assert.True(t, IsMixedDimension(gc))
	})

	t.Run("no members", func(t *testing.T) {
		b, err := Collect(GeometryCollection, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, EmptyOf(GeometryCollection, 0), b)
	})
}

func TestBigEndian(t *testing.T) {
	b, err := EncodeOrder(gogeom.NewPointEmpty(gogeom.XYM), binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, byte(0), b[0])

	withSRID, err := SetSRID(b, 2154)
	require.NoError(t, err)

	v, err := Decode(withSRID)
	require.NoError(t, err)
	assert.Equal(t, Point, v.Type())
	assert.True(t, v.HasM())
	assert.Equal(t, int32(2154), v.SRID())

	empty, err := v.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	ls, err := EncodeOrder(gogeom.NewLineStringFlat(gogeom.XY, []float64{0, 0, 3, 4}), binary.BigEndian)
	require.NoError(t, err)
	ls, err = SetSRID(ls, 3857)
	require.NoError(t, err)
	v, err = Decode(ls)
	require.NoError(t, err)
	g, err := v.Geometry()
	require.NoError(t, err)
	assert.Equal(t, 3857, g.SRID())
	assert.Equal(t, []float64{0, 0, 3, 4}, g.FlatCoords())
}

// nanPoint encodes a 2D point whose ordinates are a NaN other than the one
// go-geom writes for empty points.
func nanPoint() []byte {
	b := []byte{1}
	b = binary.LittleEndian.AppendUint32(b, uint32(Point))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(math.NaN()))
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(math.NaN()))
}

func TestNestedEmptyPoints(t *testing.T) {
	p, err := Encode(gogeom.NewPointFlat(gogeom.XY, []float64{1, 2}))
	require.NoError(t, err)

	tests := []struct {
		name    string
		typ     Type
		members [][]byte
		empty   bool
		coords  []float64
	}{
		{"collection of an empty point", GeometryCollection, [][]byte{nanPoint()}, true, nil},
		{"multipoint of empty points", MultiPoint, [][]byte{nanPoint(), nanPoint()}, true, nil},
		{"multipoint with one empty point", MultiPoint, [][]byte{nanPoint(), p}, false, []float64{1, 2}},
		{"collection with one empty point", GeometryCollection, [][]byte{p, nanPoint()}, false, []float64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Collect(tt.typ, tt.members, 0)
			require.NoError(t, err)
			v, err := Decode(b)
			require.NoError(t, err)

			empty, err := v.IsEmpty()
			require.NoError(t, err)
			assert.Equal(t, tt.empty, empty)

			g, err := v.Geometry()
			require.NoError(t, err)
			var coords []float64
			if gc, ok := g.(*gogeom.GeometryCollection); ok {
				for i := 0; i < gc.NumGeoms(); i++ {
					coords = append(coords, gc.Geom(i).FlatCoords()...)
				}
			} else {
				coords = g.FlatCoords()
			}
			assert.Equal(t, tt.coords, coords)
		})
	}

	pt := gogeom.NewPointFlat(gogeom.XY, []float64{math.NaN(), math.NaN()})
	assert.True(t, IsEmpty(pt))
	assert.True(t, IsEmpty(gogeom.NewGeometryCollection().MustPush(pt)))
}

func TestSupertype(t *testing.T) {
	assert.Equal(t, MultiPoint, Supertype([]Type{Point, Point}))
	assert.Equal(t, MultiLineString, Supertype([]Type{LineString}))
	assert.Equal(t, MultiPolygon, Supertype([]Type{Polygon}))
	assert.Equal(t, MultiCurve, Supertype([]Type{LineString, CircularString}))
	assert.Equal(t, MultiSurface, Supertype([]Type{CurvePolygon, Polygon}))
	assert.Equal(t, GeometryCollection, Supertype([]Type{Point, Polygon}))
	assert.Equal(t, GeometryCollection, Supertype(nil))
}

func TestDimension(t *testing.T) {
	assert.Equal(t, -1, Dimension(gogeom.NewGeometryCollection()))
	assert.Equal(t, 0, Dimension(gogeom.NewPointEmpty(gogeom.XY)))
	assert.Equal(t, 2, Dimension(gogeom.NewPolygon(gogeom.XY)))
	assert.False(t, IsMixedDimension(gogeom.NewMultiLineString(gogeom.XY)))
}

func TestRetype(t *testing.T) {
	line, err := EncodeWithSRID(gogeom.NewLineStringFlat(gogeom.XYZ, []float64{0, 0, 0, 1, 1, 1, 2, 0, 2}), 4326)
	require.NoError(t, err)

	arc, err := Retype(line, CircularString)
	require.NoError(t, err)
	v, err := Decode(arc)
	require.NoError(t, err)
	assert.Equal(t, CircularString, v.Type())
	assert.Equal(t, int32(4326), v.SRID())
	assert.True(t, v.HasZ())
	assert.Equal(t, len(line), len(arc))

	back, err := Retype(arc, LineString)
	require.NoError(t, err)
	assert.Equal(t, line, back)

	_, err = Retype([]byte{1, 2}, LineString)
	assert.True(t, ErrInvalidWKB.Is(err))
}

func TestCurveIsEmpty(t *testing.T) {
	for _, typ := range []Type{CircularString, CompoundCurve, CurvePolygon, MultiCurve, MultiSurface} {
		v, err := Decode(EmptyOf(typ, 0))
		require.NoError(t, err)
		empty, err := v.IsEmpty()
		require.NoError(t, err)
		assert.True(t, empty, typ.String())
	}

	line, err := Encode(gogeom.NewLineStringFlat(gogeom.XY, []float64{0, 0, 1, 1, 2, 0}))
	require.NoError(t, err)
	arc, err := Retype(line, CircularString)
	require.NoError(t, err)
	v, err := Decode(arc)
	require.NoError(t, err)
	empty, err := v.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)

	v, err = Decode(arc[:9])
	require.NoError(t, err)
	_, err = v.IsEmpty()
	assert.True(t, ErrInvalidWKB.Is(err))
}
