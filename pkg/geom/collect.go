package geom

import (
	"encoding/binary"

	gogeom "github.com/twpayne/go-geom"
)

var memberTypes = map[Type][]Type{
	MultiPoint:      {Point},
	MultiLineString: {LineString},
	MultiPolygon:    {Polygon},
	MultiCurve:      {LineString, CircularString, CompoundCurve},
	MultiSurface:    {Polygon, CurvePolygon},
}

// Collect frames members under a collection header of type t. Members are
// copied byte for byte with their own SRID dropped, unless their Z or M
// flags differ from the collection's, in which case they are re-encoded
// with missing ordinates set to zero.
func Collect(t Type, members [][]byte, srid int32) ([]byte, error) {
	if !t.IsCollection() {
		return nil, ErrInvalidMember.New("values", t)
	}

	allowed, typed := memberTypes[t]
	h := Header{Type: t}
	size := 9 + 4
	headers := make([]Header, len(members))

	for i, m := range members {
		mh, err := ReadHeader(m)
		if err != nil {
			return nil, err
		}
		if typed && !mh.Type.In(allowed...) {
			return nil, ErrInvalidMember.New(mh.Type, t)
		}
		h.HasZ = h.HasZ || mh.HasZ
		h.HasM = h.HasM || mh.HasM
		headers[i] = mh
		size += len(m)
	}

	out := appendHeader(make([]byte, 0, size), h, srid)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(members)))
	for i, m := range members {
		if headers[i].HasZ != h.HasZ || headers[i].HasM != h.HasM {
			var err error
			if m, err = relayoutMember(m, headers[i], layoutOf(h.HasZ, h.HasM)); err != nil {
				return nil, err
			}
		} else if headers[i].SRID != 0 {
			m = rewriteHeader(m, headers[i], 0)
		}
		out = append(out, m...)
	}

	return out, nil
}

func relayoutMember(m []byte, h Header, layout gogeom.Layout) ([]byte, error) {
	v := &Value{raw: m, hdr: h}
	g, err := v.Geometry()
	if err != nil {
		return nil, err
	}
	g, err = Relayout(g, layout)
	if err != nil {
		return nil, err
	}
	return Encode(g)
}

// Relayout converts g to layout. Ordinates g lacks are zero, ordinates the
// layout lacks are dropped. The SRID is not carried over.
func Relayout(g gogeom.T, layout gogeom.Layout) (gogeom.T, error) {
	from := g.Layout()
	flat := convertFlat(g.FlatCoords(), from, layout)
	ends := func(ends []int) []int {
		out := make([]int, len(ends))
		for i, e := range ends {
			out[i] = e / from.Stride() * layout.Stride()
		}
		return out
	}

	switch g := g.(type) {
	case *gogeom.Point:
		if g.Empty() {
			return gogeom.NewPointEmpty(layout), nil
		}
		return gogeom.NewPointFlat(layout, flat), nil
	case *gogeom.LineString:
		return gogeom.NewLineStringFlat(layout, flat), nil
	case *gogeom.Polygon:
		return gogeom.NewPolygonFlat(layout, flat, ends(g.Ends())), nil
	case *gogeom.MultiPoint:
		return gogeom.NewMultiPointFlat(layout, flat, gogeom.NewMultiPointFlatOptionWithEnds(ends(g.Ends()))), nil
	case *gogeom.MultiLineString:
		return gogeom.NewMultiLineStringFlat(layout, flat, ends(g.Ends())), nil
	case *gogeom.MultiPolygon:
		endss := make([][]int, len(g.Endss()))
		for i, e := range g.Endss() {
			endss[i] = ends(e)
		}
		return gogeom.NewMultiPolygonFlat(layout, flat, endss), nil
	case *gogeom.GeometryCollection:
		gc := gogeom.NewGeometryCollection()
		if err := gc.SetLayout(layout); err != nil {
			return nil, err
		}
		for i := 0; i < g.NumGeoms(); i++ {
			member, err := Relayout(g.Geom(i), layout)
			if err != nil {
				return nil, err
			}
			if err := gc.Push(member); err != nil {
				return nil, err
			}
		}
		return gc, nil
	}
	return nil, ErrUnsupportedType.New(TypeOf(g))
}

func convertFlat(flat []float64, from, to gogeom.Layout) []float64 {
	if len(flat) == 0 || from.Stride() == 0 {
		return nil
	}
	n := len(flat) / from.Stride()
	out := make([]float64, 0, n*to.Stride())
	for i := 0; i < n; i++ {
		c := flat[i*from.Stride() : (i+1)*from.Stride()]
		out = append(out, c[0], c[1])
		for _, idx := range []struct{ from, to int }{
			{from.ZIndex(), to.ZIndex()},
			{from.MIndex(), to.MIndex()},
		} {
			switch {
			case idx.to < 0:
			case idx.from < 0:
				out = append(out, 0)
			default:
				out = append(out, c[idx.from])
			}
		}
	}
	return out
}

// Supertype picks the narrowest collection type able to hold all of ts.
func Supertype(ts []Type) Type {
	set := make(map[Type]struct{}, len(ts))
	for _, t := range ts {
		set[t] = struct{}{}
	}

	only := func(types ...Type) bool {
		if len(set) == 0 {
			return false
		}
		for t := range set {
			if !t.In(types...) {
				return false
			}
		}
		return true
	}

	switch {
	case only(Point):
		return MultiPoint
	case only(LineString):
		return MultiLineString
	case only(Polygon):
		return MultiPolygon
	case only(LineString, CircularString, CompoundCurve):
		return MultiCurve
	case only(Polygon, CurvePolygon):
		return MultiSurface
	}
	return GeometryCollection
}
