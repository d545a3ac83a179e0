// Package arity lifts per-value geometry kernels to Arrow columns.
//
// A kernel sees only non-null cells; any null input produces a null output
// and the kernel is not called. Output arrays always carry the declared
// data type, including for zero-length inputs.
package arity

import (
	"fmt"

	"geoexpr/pkg/geom"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Sink receives one output cell per input row.
type Sink[T any] interface {
	Append(v T)
	AppendNull()
}

// Kernel computes one output cell. Returning ok=false emits a null.
type Kernel[T any] func(v *geom.Value) (out T, ok bool, err error)

// Kernel2 is a Kernel over a pair of geometries.
type Kernel2[T any] func(a, b *geom.Value) (out T, ok bool, err error)

// Geometries asserts that arr is a Binary column of geometry values.
func Geometries(arr arrow.Array) (*array.Binary, error) {
	bin, ok := arr.(*array.Binary)
	if !ok {
		return nil, fmt.Errorf("expected a binary geometry column, got %s", arr.DataType())
	}
	return bin, nil
}

// Unary runs k over every non-null cell of in.
func Unary[T any](in *array.Binary, sink Sink[T], k Kernel[T]) error {
	for i := 0; i < in.Len(); i++ {
		if in.IsNull(i) {
			sink.AppendNull()
			continue
		}

		v, err := geom.Decode(in.Value(i))
		if err != nil {
			return err
		}

		out, ok, err := k(v)
		if err != nil {
			return err
		}
		if !ok {
			sink.AppendNull()
			continue
		}
		sink.Append(out)
	}
	return nil
}

// Binary runs k over rows where both a and b are non-null. Both inputs
// must have the same length.
func Binary[T any](a, b *array.Binary, sink Sink[T], k Kernel2[T]) error {
	if a.Len() != b.Len() {
		return fmt.Errorf("length mismatch: %d vs %d", a.Len(), b.Len())
	}

	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) || b.IsNull(i) {
			sink.AppendNull()
			continue
		}

		x, err := geom.Decode(a.Value(i))
		if err != nil {
			return err
		}
		y, err := geom.Decode(b.Value(i))
		if err != nil {
			return err
		}

		out, ok, err := k(x, y)
		if err != nil {
			return err
		}
		if !ok {
			sink.AppendNull()
			continue
		}
		sink.Append(out)
	}
	return nil
}

// Values returns the non-null cells of in, in order.
func Values(in *array.Binary) [][]byte {
	out := make([][]byte, 0, in.Len()-in.NullN())
	for i := 0; i < in.Len(); i++ {
		if in.IsNull(i) {
			continue
		}
		out = append(out, in.Value(i))
	}
	return out
}
