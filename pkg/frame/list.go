package frame

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/opentracing/opentracing-go"
)

type listEval struct {
	input Expr
	inner Expr
}

// ListEval evaluates inner over the elements of every list produced by
// input. Inside inner, Element() refers to the list values.
func ListEval(input, inner Expr) Expr {
	return &listEval{input: input, inner: inner}
}

func (l *listEval) Name() string { return l.input.Name() }

func (l *listEval) elementSchema(schema *arrow.Schema) (*arrow.Schema, error) {
	dt, err := l.input.DataType(schema)
	if err != nil {
		return nil, err
	}
	lt, ok := dt.(*arrow.ListType)
	if !ok {
		return nil, fmt.Errorf("list evaluation needs a list column, %q is %s", l.input.Name(), dt)
	}
	return arrow.NewSchema([]arrow.Field{{Name: ElementName, Type: lt.Elem(), Nullable: true}}, nil), nil
}

func (l *listEval) DataType(schema *arrow.Schema) (arrow.DataType, error) {
	es, err := l.elementSchema(schema)
	if err != nil {
		return nil, err
	}
	dt, err := l.inner.DataType(es)
	if err != nil {
		return nil, err
	}
	return arrow.ListOf(dt), nil
}

func (l *listEval) Eval(ctx context.Context, f *Frame) (arrow.Array, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "frame.ListEval")
	defer span.Finish()

	es, err := l.elementSchema(f.Schema())
	if err != nil {
		return nil, err
	}

	arr, err := l.input.Eval(ctx, f)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	lists, ok := arr.(*array.List)
	if !ok {
		return nil, fmt.Errorf("list evaluation needs a list column, got %s", arr.DataType())
	}

	n := lists.Len()
	var lo, hi int64
	if n > 0 {
		lo, _ = lists.ValueOffsets(0)
		_, hi = lists.ValueOffsets(n - 1)
	}

	values := array.NewSlice(lists.ListValues(), lo, hi)
	defer values.Release()

	elems, err := New(es, []arrow.Array{values})
	if err != nil {
		return nil, err
	}
	defer elems.Release()

	valid := make([]bool, n)
	for i := range valid {
		valid[i] = lists.IsValid(i)
	}

	if IsAggregation(l.inner) {
		return l.reduceLists(ctx, elems, lists, lo, valid)
	}

	out, err := l.inner.Eval(ctx, elems)
	if err != nil {
		return nil, err
	}
	defer out.Release()
	if out.Len() != elems.NumRows() {
		return nil, fmt.Errorf("expression %q has %d rows, expected %d", l.inner.Name(), out.Len(), elems.NumRows())
	}

	offsets := make([]int32, n+1)
	for i := 0; i < n; i++ {
		start, end := lists.ValueOffsets(i)
		offsets[i] = int32(start - lo)
		offsets[i+1] = int32(end - lo)
	}

	return NewList(out, offsets, valid), nil
}

// reduceLists runs an aggregation once per non-null list, yielding lists
// of length one.
func (l *listEval) reduceLists(ctx context.Context, elems *Frame, lists *array.List, lo int64, valid []bool) (arrow.Array, error) {
	dt, err := l.inner.DataType(elems.Schema())
	if err != nil {
		return nil, err
	}

	var parts []arrow.Array
	defer func() {
		for _, p := range parts {
			p.Release()
		}
	}()

	offsets := make([]int32, 1, len(valid)+1)
	for i, ok := range valid {
		if ok {
			start, end := lists.ValueOffsets(i)
			sub, err := elems.Slice(int(start-lo), int(end-lo))
			if err != nil {
				return nil, err
			}
			res, err := l.inner.Eval(ctx, sub)
			sub.Release()
			if err != nil {
				return nil, err
			}
			parts = append(parts, res)
		}
		offsets = append(offsets, int32(len(parts)))
	}

	if len(parts) == 0 {
		empty := Empty(elems.Allocator(), dt)
		defer empty.Release()
		return NewList(empty, offsets, valid), nil
	}

	values, err := array.Concatenate(parts, elems.Allocator())
	if err != nil {
		return nil, err
	}
	defer values.Release()
	return NewList(values, offsets, valid), nil
}
