package st

import (
	"context"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/twpayne/go-geos"
)

var (
	uint32Type  = arrow.PrimitiveTypes.Uint32
	int32Type   = arrow.PrimitiveTypes.Int32
	float64Type = arrow.PrimitiveTypes.Float64
	binaryType  = arrow.BinaryTypes.Binary
	stringType  = arrow.BinaryTypes.String
	boolType    = arrow.FixedWidthTypes.Boolean
)

type newBuilder[T any] func(mem memory.Allocator) arity.Builder[T]

func uint32s(mem memory.Allocator) arity.Builder[uint32]   { return array.NewUint32Builder(mem) }
func int32s(mem memory.Allocator) arity.Builder[int32]     { return array.NewInt32Builder(mem) }
func float64s(mem memory.Allocator) arity.Builder[float64] { return array.NewFloat64Builder(mem) }
func bools(mem memory.Allocator) arity.Builder[bool]       { return array.NewBooleanBuilder(mem) }
func strs(mem memory.Allocator) arity.Builder[string]      { return array.NewStringBuilder(mem) }
func binaries(mem memory.Allocator) arity.Builder[[]byte]  { return arity.NewBinary(mem) }

func bounds(mem memory.Allocator) arity.Builder[[4]float64] { return arity.NewBounds(mem) }
func parts(mem memory.Allocator) arity.Builder[[][]byte]    { return arity.NewParts(mem) }

// unaryKernel sees one non-null geometry and the bound arguments.
type unaryKernel[T any] func(v *geom.Value, kw Kwargs) (T, bool, error)

// binaryKernel sees self, other and the bound arguments.
type binaryKernel[T any] func(a, b *geom.Value, kw Kwargs) (T, bool, error)

// always lifts a kernel that never yields null.
func always[T any](fn func(v *geom.Value, kw Kwargs) (T, error)) unaryKernel[T] {
	return func(v *geom.Value, kw Kwargs) (T, bool, error) {
		out, err := fn(v, kw)
		return out, err == nil, err
	}
}

func always2[T any](fn func(a, b *geom.Value, kw Kwargs) (T, error)) binaryKernel[T] {
	return func(a, b *geom.Value, kw Kwargs) (T, bool, error) {
		out, err := fn(a, b, kw)
		return out, err == nil, err
	}
}

// evalUnary evaluates k row by row. The dispatch rules of the function run
// before k on every non-null row.
func evalUnary[T any](nb newBuilder[T], k unaryKernel[T]) evalFunc {
	return func(_ context.Context, in *input) (arrow.Array, error) {
		b := nb(in.mem)
		defer b.Release()

		err := arity.Unary[T](in.geometries(), b, func(v *geom.Value) (T, bool, error) {
			if err := check(in.op, v, in.kw); err != nil {
				var zero T
				return zero, false, err
			}
			return k(v, in.kw)
		})
		if err != nil {
			return nil, err
		}
		return b.NewArray(), nil
	}
}

// evalBinary evaluates k over (self, other) row pairs.
func evalBinary[T any](nb newBuilder[T], k binaryKernel[T]) evalFunc {
	return func(_ context.Context, in *input) (arrow.Array, error) {
		b := nb(in.mem)
		defer b.Release()

		err := arity.Binary[T](in.geometries(), in.other, b, func(x, y *geom.Value) (T, bool, error) {
			if err := check(in.op, x, in.kw); err != nil {
				var zero T
				return zero, false, err
			}
			return k(x, y, in.kw)
		})
		if err != nil {
			return nil, err
		}
		return b.NewArray(), nil
	}
}

// anyEmpty reports whether one of vs is empty.
func anyEmpty(vs ...*geom.Value) (bool, error) {
	for _, v := range vs {
		empty, err := v.IsEmpty()
		if err != nil || empty {
			return empty, err
		}
	}
	return false, nil
}

// measure runs fn on the GEOS form of v.
func measure[T any](fn func(g *geos.Geom, kw Kwargs) T) unaryKernel[T] {
	return always(func(v *geom.Value, kw Kwargs) (T, error) {
		return native.Measure(v.Bytes(), func(g *geos.Geom) T { return fn(g, kw) })
	})
}

// measure2 runs fn on the GEOS forms of a pair.
func measure2[T any](fn func(x, y *geos.Geom, kw Kwargs) T) binaryKernel[T] {
	return always2(func(a, b *geom.Value, kw Kwargs) (T, error) {
		return native.Measure2(a.Bytes(), b.Bytes(), func(x, y *geos.Geom) T { return fn(x, y, kw) })
	})
}

// construct builds a new geometry from v. The result keeps v's SRID.
func construct(fn func(g *geos.Geom, kw Kwargs) *geos.Geom) unaryKernel[[]byte] {
	return always(func(v *geom.Value, kw Kwargs) ([]byte, error) {
		return native.Unary(v.Bytes(), v.SRID(), func(g *geos.Geom) *geos.Geom { return fn(g, kw) })
	})
}

func construct2(fn func(x, y *geos.Geom, kw Kwargs) *geos.Geom) binaryKernel[[]byte] {
	return always2(func(a, b *geom.Value, kw Kwargs) ([]byte, error) {
		return native.Binary(a.Bytes(), b.Bytes(), a.SRID(), func(x, y *geos.Geom) *geos.Geom { return fn(x, y, kw) })
	})
}

// emptyAs short-circuits empty inputs to an empty geometry of type t, or
// to the input itself when t is Unknown.
func emptyAs(t geom.Type, k unaryKernel[[]byte]) unaryKernel[[]byte] {
	return func(v *geom.Value, kw Kwargs) ([]byte, bool, error) {
		empty, err := v.IsEmpty()
		if err != nil {
			return nil, false, err
		}
		if !empty {
			return k(v, kw)
		}
		if t == geom.Unknown {
			return v.Bytes(), true, nil
		}
		return geom.EmptyOf(t, v.SRID()), true, nil
	}
}

func emptyAs2(t geom.Type, k binaryKernel[[]byte]) binaryKernel[[]byte] {
	return func(a, b *geom.Value, kw Kwargs) ([]byte, bool, error) {
		empty, err := a.IsEmpty()
		if err != nil {
			return nil, false, err
		}
		if empty {
			return geom.EmptyOf(t, a.SRID()), true, nil
		}
		return k(a, b, kw)
	}
}
