package arity

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Declared output types shared by the catalogue.
var (
	BoundsType      = arrow.FixedSizeListOf(4, arrow.PrimitiveTypes.Float64)
	CoordinatesType = CoordinatesOf(2)
	PartsType       = arrow.ListOf(arrow.BinaryTypes.Binary)
)

// CoordinatesOf is a list of coordinates with dims ordinates each.
func CoordinatesOf(dims int) arrow.DataType {
	return arrow.ListOf(arrow.FixedSizeListOf(int32(dims), arrow.PrimitiveTypes.Float64))
}

// Builder is a Sink that also materializes its cells.
type Builder[T any] interface {
	Sink[T]
	NewArray() arrow.Array
	Release()
}

func NewBinary(mem memory.Allocator) *array.BinaryBuilder {
	return array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
}

// BoundsBuilder writes [xmin, ymin, xmax, ymax] cells.
type BoundsBuilder struct {
	b *array.FixedSizeListBuilder
	v *array.Float64Builder
}

func NewBounds(mem memory.Allocator) *BoundsBuilder {
	b := array.NewFixedSizeListBuilder(mem, 4, arrow.PrimitiveTypes.Float64)
	return &BoundsBuilder{b: b, v: b.ValueBuilder().(*array.Float64Builder)}
}

func (s *BoundsBuilder) Append(v [4]float64) {
	s.b.Append(true)
	s.v.AppendValues(v[:], nil)
}

func (s *BoundsBuilder) AppendNull()           { s.b.AppendNull() }
func (s *BoundsBuilder) NewArray() arrow.Array { return s.b.NewArray() }
func (s *BoundsBuilder) Release()              { s.b.Release() }

// CoordinatesBuilder writes one list of coordinates per cell. Cells are
// given as flat ordinates, dims per coordinate.
type CoordinatesBuilder struct {
	dims int
	b    *array.ListBuilder
	xy   *array.FixedSizeListBuilder
	v    *array.Float64Builder
}

func NewCoordinates(mem memory.Allocator, dims int) *CoordinatesBuilder {
	b := array.NewListBuilder(mem, arrow.FixedSizeListOf(int32(dims), arrow.PrimitiveTypes.Float64))
	xy := b.ValueBuilder().(*array.FixedSizeListBuilder)
	return &CoordinatesBuilder{dims: dims, b: b, xy: xy, v: xy.ValueBuilder().(*array.Float64Builder)}
}

func (s *CoordinatesBuilder) Append(flat []float64) {
	s.b.Append(true)
	for i := 0; i+s.dims <= len(flat); i += s.dims {
		s.xy.Append(true)
		s.v.AppendValues(flat[i:i+s.dims], nil)
	}
}

func (s *CoordinatesBuilder) AppendNull()           { s.b.AppendNull() }
func (s *CoordinatesBuilder) NewArray() arrow.Array { return s.b.NewArray() }
func (s *CoordinatesBuilder) Release()              { s.b.Release() }

// PartsBuilder writes one list of geometry values per cell.
type PartsBuilder struct {
	b *array.ListBuilder
	v *array.BinaryBuilder
}

func NewParts(mem memory.Allocator) *PartsBuilder {
	b := array.NewListBuilder(mem, arrow.BinaryTypes.Binary)
	return &PartsBuilder{b: b, v: b.ValueBuilder().(*array.BinaryBuilder)}
}

func (s *PartsBuilder) Append(parts [][]byte) {
	s.b.Append(true)
	for _, p := range parts {
		s.v.Append(p)
	}
}

func (s *PartsBuilder) AppendNull()           { s.b.AppendNull() }
func (s *PartsBuilder) NewArray() arrow.Array { return s.b.NewArray() }
func (s *PartsBuilder) Release()              { s.b.Release() }
