package frame

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func indices(mem memory.Allocator, rows []int) arrow.Array {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.Reserve(len(rows))
	for _, r := range rows {
		b.UnsafeAppend(int64(r))
	}
	return b.NewArray()
}

func take(ctx context.Context, mem memory.Allocator, arr arrow.Array, rows []int) (arrow.Array, error) {
	if len(rows) == 0 {
		return array.NewSlice(arr, 0, 0), nil
	}
	idx := indices(mem, rows)
	defer idx.Release()
	return compute.TakeArray(ctx, arr, idx)
}

func broadcast(ctx context.Context, mem memory.Allocator, arr arrow.Array, n int) (arrow.Array, error) {
	return take(ctx, mem, arr, make([]int, n))
}

// Empty returns a zero-length array of dt.
func Empty(mem memory.Allocator, dt arrow.DataType) arrow.Array {
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	return b.NewArray()
}

// NewList wraps values into a list array. offsets has one more entry than
// there are lists; valid marks the non-null lists.
func NewList(values arrow.Array, offsets []int32, valid []bool) arrow.Array {
	n := len(offsets) - 1

	nulls := 0
	for _, v := range valid {
		if !v {
			nulls++
		}
	}

	var validity *memory.Buffer
	if nulls > 0 {
		bits := make([]byte, bitutil.BytesForBits(int64(n)))
		for i, v := range valid {
			if v {
				bitutil.SetBit(bits, i)
			}
		}
		validity = memory.NewBufferBytes(bits)
	}

	data := array.NewData(
		arrow.ListOf(values.DataType()),
		n,
		[]*memory.Buffer{validity, memory.NewBufferBytes(arrow.Int32Traits.CastToBytes(offsets))},
		[]arrow.ArrayData{values.Data()},
		nulls,
		0,
	)
	defer data.Release()
	return array.MakeFromData(data)
}
