package st

import (
	"context"
	"fmt"
	"math"

	"geoexpr/pkg/geom"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	gogeom "github.com/twpayne/go-geom"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// ErrInvalidCoordinates is returned when a coordinate list cannot form a geometry.
var ErrInvalidCoordinates = goerrors.NewKind("invalid coordinates list: %s")

// coordsType nests Float64 in depth lists.
func coordsType(depth int) arrow.DataType {
	t := arrow.DataType(float64Type)
	for i := 0; i < depth; i++ {
		t = arrow.ListOf(t)
	}
	return t
}

// listShape returns how deep dt nests lists and the type at the bottom.
// List, LargeList and FixedSizeList all count.
func listShape(dt arrow.DataType) (int, arrow.DataType) {
	depth := 0
	for {
		lt, ok := dt.(arrow.ListLikeType)
		if !ok || dt.ID() == arrow.MAP {
			return depth, dt
		}
		depth++
		dt = lt.Elem()
	}
}

// sameShape reports whether got and want are lists of the same depth over
// the same element type.
func sameShape(got, want arrow.DataType) bool {
	gd, gt := listShape(got)
	wd, wt := listShape(want)
	return wd > 0 && gd == wd && arrow.TypeEqual(gt, wt)
}

func layoutFor(dims int) (gogeom.Layout, error) {
	switch dims {
	case 2:
		return gogeom.XY, nil
	case 3:
		return gogeom.XYZ, nil
	case 4:
		return gogeom.XYZM, nil
	}
	return gogeom.NoLayout, ErrInvalidCoordinates.New(fmt.Sprintf("a coordinate has %d ordinates", dims))
}

// floatsAt reads list[i] as numbers. Null numbers read as NaN.
func floatsAt(list array.ListLike, i int) []float64 {
	values := list.ListValues().(*array.Float64)
	start, end := list.ValueOffsets(i)
	out := make([]float64, 0, end-start)
	for j := int(start); j < int(end); j++ {
		if values.IsNull(j) {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, values.Value(j))
	}
	return out
}

// sequence is a run of coordinates sharing one layout.
type sequence struct {
	layout gogeom.Layout
	flat   []float64
}

func (s sequence) len() int {
	if s.layout.Stride() == 0 {
		return 0
	}
	return len(s.flat) / s.layout.Stride()
}

// sequenceAt reads list[i] as a list of coordinates. A list holding only
// nulls is an empty XY sequence.
func sequenceAt(list array.ListLike, i int) (sequence, error) {
	coords := list.ListValues().(array.ListLike)
	start, end := list.ValueOffsets(i)

	valid := 0
	for j := int(start); j < int(end); j++ {
		if coords.IsValid(j) {
			valid++
		}
	}
	if valid == 0 {
		return sequence{layout: gogeom.XY}, nil
	}
	if valid != int(end-start) {
		return sequence{}, ErrInvalidCoordinates.New("must be uniform")
	}

	var (
		flat []float64
		dims int
	)
	for j := int(start); j < int(end); j++ {
		c := floatsAt(coords, j)
		if dims != 0 && len(c) != dims {
			return sequence{}, ErrInvalidCoordinates.New("must be uniform")
		}
		dims = len(c)
		flat = append(flat, c...)
	}
	layout, err := layoutFor(dims)
	if err != nil {
		return sequence{}, err
	}
	return sequence{layout: layout, flat: flat}, nil
}

// sequencesAt reads list[i] as a list of coordinate lists. Null members are
// empty. Non-empty members must share one layout.
func sequencesAt(list array.ListLike, i int) ([]sequence, gogeom.Layout, error) {
	members := list.ListValues().(array.ListLike)
	start, end := list.ValueOffsets(i)

	layout := gogeom.XY
	seen := false
	out := make([]sequence, 0, end-start)
	for j := int(start); j < int(end); j++ {
		s := sequence{layout: gogeom.XY}
		if members.IsValid(j) {
			var err error
			if s, err = sequenceAt(members, j); err != nil {
				return nil, 0, err
			}
		}
		if s.len() > 0 {
			if seen && s.layout != layout {
				return nil, 0, ErrInvalidCoordinates.New("must be uniform")
			}
			layout, seen = s.layout, true
		}
		out = append(out, s)
	}
	return out, layout, nil
}

func checkLine(s sequence) error {
	if n := s.len(); n == 1 {
		return ErrInvalidCoordinates.New("a line needs 0 or more than 1 points")
	}
	return nil
}

func checkRing(s sequence) error {
	n := s.len()
	if n == 0 {
		return nil
	}
	if n < 4 {
		return ErrInvalidCoordinates.New("a ring needs 0 or at least 4 points")
	}
	stride := s.layout.Stride()
	first, last := s.flat[:stride], s.flat[len(s.flat)-stride:]
	if first[0] != last[0] || first[1] != last[1] {
		return ErrInvalidCoordinates.New("a ring must be closed")
	}
	return nil
}

// joined concatenates ss, recording the end of each member.
func joined(ss []sequence) ([]float64, []int) {
	var (
		flat []float64
		ends = make([]int, len(ss))
	)
	for i, s := range ss {
		flat = append(flat, s.flat...)
		ends[i] = len(flat)
	}
	return flat, ends
}

func buildPoint(list array.ListLike, i int) (gogeom.T, error) {
	c := floatsAt(list, i)
	layout, err := layoutFor(len(c))
	if err != nil {
		return nil, err
	}
	return gogeom.NewPointFlatMaybeEmpty(layout, c), nil
}

func buildLineString(list array.ListLike, i int) (gogeom.T, error) {
	s, err := sequenceAt(list, i)
	if err != nil {
		return nil, err
	}
	if err := checkLine(s); err != nil {
		return nil, err
	}
	return gogeom.NewLineStringFlat(s.layout, s.flat), nil
}

func buildMultiPoint(list array.ListLike, i int) (gogeom.T, error) {
	s, err := sequenceAt(list, i)
	if err != nil {
		return nil, err
	}
	return gogeom.NewMultiPointFlat(s.layout, s.flat), nil
}

func buildMultiLineString(list array.ListLike, i int) (gogeom.T, error) {
	lines, layout, err := sequencesAt(list, i)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if err := checkLine(l); err != nil {
			return nil, err
		}
	}
	flat, ends := joined(lines)
	return gogeom.NewMultiLineStringFlat(layout, flat, ends), nil
}

// buildPolygon takes the first ring as the shell. No rings is an empty polygon.
func buildPolygon(list array.ListLike, i int) (gogeom.T, error) {
	rings, layout, err := sequencesAt(list, i)
	if err != nil {
		return nil, err
	}
	for _, r := range rings {
		if err := checkRing(r); err != nil {
			return nil, err
		}
	}
	flat, ends := joined(rings)
	return gogeom.NewPolygonFlat(layout, flat, ends), nil
}

// fromCoords evaluates build over every non-null row of a nested list
// column and encodes the result as type t.
func fromCoords(t geom.Type, build func(list array.ListLike, i int) (gogeom.T, error)) evalFunc {
	return func(_ context.Context, in *input) (arrow.Array, error) {
		list, ok := in.self.(array.ListLike)
		if !ok {
			return nil, ErrInputType.New(in.op, "list", in.self.DataType())
		}

		b := binaries(in.mem)
		defer b.Release()
		for i := 0; i < list.Len(); i++ {
			if list.IsNull(i) {
				b.AppendNull()
				continue
			}
			g, err := build(list, i)
			if err != nil {
				return nil, err
			}
			out, err := geom.Encode(g)
			if err != nil {
				return nil, err
			}
			if geom.TypeOf(g) != t {
				if out, err = geom.Retype(out, t); err != nil {
					return nil, err
				}
			}
			b.Append(out)
		}
		return b.NewArray(), nil
	}
}

// buildCircularString reads the points like a line string and requires
// the count an arc string needs.
func buildCircularString(list array.ListLike, i int) (gogeom.T, error) {
	g, err := buildLineString(list, i)
	if err != nil {
		return nil, err
	}
	if n := g.(*gogeom.LineString).NumCoords(); n != 0 && (n < 3 || n%2 == 0) {
		return nil, ErrInvalidCoordinates.New("a circular string needs 0 or an odd number of at least 3 points")
	}
	return g, nil
}

func constructorFunctions() []*Function {
	ctor := func(name string, depth int, t geom.Type, build func(array.ListLike, int) (gogeom.T, error)) *Function {
		return &Function{Name: name, Type: binaryType, Input: coordsType(depth), eval: fromCoords(t, build)}
	}
	return []*Function{
		ctor("point", 1, geom.Point, buildPoint),
		ctor("multipoint", 2, geom.MultiPoint, buildMultiPoint),
		ctor("linestring", 2, geom.LineString, buildLineString),
		ctor("circularstring", 2, geom.CircularString, buildCircularString),
		ctor("multilinestring", 3, geom.MultiLineString, buildMultiLineString),
		ctor("polygon", 3, geom.Polygon, buildPolygon),
	}
}
