package geom

import (
	"encoding/binary"
	"math"

	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Value is one non-null geometry cell. The body is decoded on first use.
type Value struct {
	raw []byte
	hdr Header
	g   gogeom.T
}

// Decode reads the header of b. It does not decode the coordinates.
func Decode(b []byte) (*Value, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	return &Value{raw: b, hdr: h}, nil
}

func (v *Value) Bytes() []byte  { return v.raw }
func (v *Value) Header() Header { return v.hdr }
func (v *Value) Type() Type     { return v.hdr.Type }
func (v *Value) SRID() int32    { return v.hdr.SRID }
func (v *Value) HasZ() bool     { return v.hdr.HasZ }
func (v *Value) HasM() bool     { return v.hdr.HasM }
func (v *Value) CoordDims() int { return v.hdr.Dims() }
func (v *Value) IsISO() bool    { return v.hdr.iso }
func (v *Value) Layout() gogeom.Layout {
	return layoutOf(v.hdr.HasZ, v.hdr.HasM)
}

// Geometry decodes the value with go-geom.
func (v *Value) Geometry() (gogeom.T, error) {
	if v.g != nil {
		return v.g, nil
	}

	if v.hdr.Type > GeometryCollection {
		return nil, ErrUnsupportedType.New(v.hdr.Type)
	}

	var (
		g   gogeom.T
		err error
	)
	switch {
	case isEmptyPoint(v.raw, v.hdr):
		g = gogeom.NewPointEmpty(v.Layout()).SetSRID(int(v.hdr.SRID))
	case v.hdr.iso:
		g, err = wkb.Unmarshal(v.raw)
	default:
		g, err = ewkb.Unmarshal(v.raw)
	}
	if err != nil {
		return nil, ErrInvalidWKB.New(err.Error())
	}

	v.g = normalize(g)
	return v.g, nil
}

// normalize turns NaN points nested in multipoints and collections into
// empty points. go-geom only recognises one NaN bit pattern as empty.
func normalize(g gogeom.T) gogeom.T {
	switch g := g.(type) {
	case *gogeom.Point:
		if !g.Empty() && allNaN(g.FlatCoords()) {
			return gogeom.NewPointEmpty(g.Layout()).SetSRID(g.SRID())
		}
	case *gogeom.MultiPoint:
		var (
			flat    []float64
			ends    []int
			changed bool
		)
		for i := 0; i < g.NumPoints(); i++ {
			c := g.Coord(i)
			if c != nil && allNaN(c) {
				c, changed = nil, true
			}
			flat = append(flat, c...)
			ends = append(ends, len(flat))
		}
		if changed {
			return gogeom.NewMultiPointFlat(g.Layout(), flat, gogeom.NewMultiPointFlatOptionWithEnds(ends)).SetSRID(g.SRID())
		}
	case *gogeom.GeometryCollection:
		members := make([]gogeom.T, g.NumGeoms())
		changed := false
		for i := range members {
			members[i] = normalize(g.Geom(i))
			changed = changed || members[i] != g.Geom(i)
		}
		if changed {
			gc := gogeom.NewGeometryCollection().SetSRID(g.SRID())
			if err := gc.Push(members...); err == nil {
				return gc
			}
		}
	}
	return g
}

func allNaN(flat []float64) bool {
	for _, f := range flat {
		if !math.IsNaN(f) {
			return false
		}
	}
	return len(flat) > 0
}

// IsEmpty reports whether the geometry has no coordinates. Curved types
// are not decoded; they are empty when their point or member count is zero.
func (v *Value) IsEmpty() (bool, error) {
	if isEmptyPoint(v.raw, v.hdr) {
		return true, nil
	}
	if v.hdr.Type > GeometryCollection {
		body := v.raw[v.hdr.size:]
		if len(body) < 4 {
			return false, ErrInvalidWKB.New("truncated body")
		}
		return v.hdr.order.Uint32(body) == 0, nil
	}
	g, err := v.Geometry()
	if err != nil {
		return false, err
	}
	return IsEmpty(g), nil
}

// IsEmpty reports whether g has no coordinates, looking through collections.
// Points with only NaN ordinates count as empty.
func IsEmpty(g gogeom.T) bool {
	switch g := g.(type) {
	case *gogeom.GeometryCollection:
		for i := 0; i < g.NumGeoms(); i++ {
			if !IsEmpty(g.Geom(i)) {
				return false
			}
		}
		return true
	case *gogeom.Point:
		return g.Empty() || allNaN(g.FlatCoords())
	case *gogeom.MultiPoint:
		for i := 0; i < g.NumPoints(); i++ {
			if c := g.Coord(i); c != nil && !allNaN(c) {
				return false
			}
		}
		return true
	}
	return len(g.FlatCoords()) == 0
}

// Encode writes g as little endian EWKB. Empty points are written with NaN
// ordinates, which go-geom does not do by itself.
func Encode(g gogeom.T) ([]byte, error) {
	return EncodeOrder(g, binary.LittleEndian)
}

// EncodeOrder is Encode with a chosen byte order.
func EncodeOrder(g gogeom.T, order ByteOrder) ([]byte, error) {
	p, ok := g.(*gogeom.Point)
	if !ok || len(p.FlatCoords()) != 0 {
		return ewkb.Marshal(g, order)
	}

	h := Header{Type: Point}
	h.HasZ = p.Layout().ZIndex() >= 0
	h.HasM = p.Layout().MIndex() >= 0
	srid := int32(p.SRID())

	var out []byte
	if order == binary.BigEndian {
		out = append(out, 0)
	} else {
		out = append(out, 1)
	}
	out = order.AppendUint32(out, h.code(srid != 0))
	if srid != 0 {
		out = order.AppendUint32(out, uint32(srid))
	}
	for i := 0; i < h.Dims(); i++ {
		out = order.AppendUint64(out, gogeom.PointEmptyCoordHex)
	}
	return out, nil
}

// EncodeWithSRID sets the SRID on g before encoding it.
func EncodeWithSRID(g gogeom.T, srid int32) ([]byte, error) {
	b, err := Encode(g)
	if err != nil {
		return nil, err
	}
	return SetSRID(b, srid)
}

func layoutOf(z, m bool) gogeom.Layout {
	switch {
	case z && m:
		return gogeom.XYZM
	case z:
		return gogeom.XYZ
	case m:
		return gogeom.XYM
	}
	return gogeom.XY
}

// TypeOf maps a decoded go-geom geometry to its type tag.
func TypeOf(g gogeom.T) Type {
	switch g.(type) {
	case *gogeom.Point:
		return Point
	case *gogeom.LineString, *gogeom.LinearRing:
		return LineString
	case *gogeom.Polygon:
		return Polygon
	case *gogeom.MultiPoint:
		return MultiPoint
	case *gogeom.MultiLineString:
		return MultiLineString
	case *gogeom.MultiPolygon:
		return MultiPolygon
	case *gogeom.GeometryCollection:
		return GeometryCollection
	}
	return Unknown
}

// Dimension is the topological dimension of g: 0 for points, 1 for lines,
// 2 for areas, and the largest member dimension for collections. An empty
// collection has dimension -1.
func Dimension(g gogeom.T) int {
	switch g := g.(type) {
	case *gogeom.Point, *gogeom.MultiPoint:
		return 0
	case *gogeom.LineString, *gogeom.LinearRing, *gogeom.MultiLineString:
		return 1
	case *gogeom.Polygon, *gogeom.MultiPolygon:
		return 2
	case *gogeom.GeometryCollection:
		dim := -1
		for i := 0; i < g.NumGeoms(); i++ {
			dim = max(dim, Dimension(g.Geom(i)))
		}
		return dim
	}
	return -1
}

// IsMixedDimension reports whether a collection holds members of different
// topological dimensions.
func IsMixedDimension(g gogeom.T) bool {
	seen := make(map[int]struct{})
	var walk func(gogeom.T)
	walk = func(g gogeom.T) {
		if gc, ok := g.(*gogeom.GeometryCollection); ok {
			for i := 0; i < gc.NumGeoms(); i++ {
				walk(gc.Geom(i))
			}
			return
		}
		seen[Dimension(g)] = struct{}{}
	}
	walk(g)
	return len(seen) > 1
}
