// Package frame is a small columnar evaluation layer over Arrow arrays.
// Expressions evaluate against a Frame in three shapes: flat selection,
// grouped aggregation and per-list evaluation.
package frame

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/opentracing/opentracing-go"
)

// Frame is a set of named, equally long columns.
type Frame struct {
	schema *arrow.Schema
	cols   []arrow.Array
	nrows  int
	mem    memory.Allocator
}

// New builds a frame. The frame takes a reference on every column.
func New(schema *arrow.Schema, cols []arrow.Array) (*Frame, error) {
	if schema.NumFields() != len(cols) {
		return nil, fmt.Errorf("schema has %d fields but %d columns were given", schema.NumFields(), len(cols))
	}

	nrows := 0
	for i, col := range cols {
		if i == 0 {
			nrows = col.Len()
		} else if col.Len() != nrows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", schema.Field(i).Name, col.Len(), nrows)
		}
		if !arrow.TypeEqual(col.DataType(), schema.Field(i).Type) {
			return nil, fmt.Errorf("column %q is %s, schema says %s", schema.Field(i).Name, col.DataType(), schema.Field(i).Type)
		}
		col.Retain()
	}

	return &Frame{
		schema: schema,
		cols:   cols,
		nrows:  nrows,
		mem:    memory.NewGoAllocator(),
	}, nil
}

// FromColumns builds a frame from (name, column) pairs.
func FromColumns(names []string, cols []arrow.Array) (*Frame, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%d names for %d columns", len(names), len(cols))
	}
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		fields[i] = arrow.Field{Name: names[i], Type: col.DataType(), Nullable: true}
	}
	return New(arrow.NewSchema(fields, nil), cols)
}

// FromRecord wraps a record batch.
func FromRecord(rec arrow.RecordBatch) (*Frame, error) {
	return New(rec.Schema(), rec.Columns())
}

// FromRecords concatenates record batches sharing one schema.
func FromRecords(recs []arrow.RecordBatch) (*Frame, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("no records")
	}
	if len(recs) == 1 {
		return FromRecord(recs[0])
	}

	schema := recs[0].Schema()
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i := range cols {
		parts := make([]arrow.Array, len(recs))
		for j, rec := range recs {
			if !rec.Schema().Equal(schema) {
				return nil, fmt.Errorf("record %d has a different schema", j)
			}
			parts[j] = rec.Column(i)
		}
		col, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, fmt.Errorf("failed to concatenate column %q: %w", schema.Field(i).Name, err)
		}
		defer col.Release()
		cols[i] = col
	}
	return New(schema, cols)
}

func (f *Frame) Schema() *arrow.Schema       { return f.schema }
func (f *Frame) NumRows() int                { return f.nrows }
func (f *Frame) NumCols() int                { return len(f.cols) }
func (f *Frame) Columns() []arrow.Array      { return f.cols }
func (f *Frame) ColumnAt(i int) arrow.Array  { return f.cols[i] }
func (f *Frame) Allocator() memory.Allocator { return f.mem }

// Column returns the column called name.
func (f *Frame) Column(name string) (arrow.Array, error) {
	idx := f.schema.FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return f.cols[idx[0]], nil
}

// Record exposes the frame as a record batch. The caller releases it.
func (f *Frame) Record() arrow.RecordBatch {
	return array.NewRecordBatch(f.schema, f.cols, int64(f.nrows))
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}

	var (
		fields []arrow.Field
		cols   []arrow.Array
	)
	for i, field := range f.schema.Fields() {
		if _, ok := drop[field.Name]; ok {
			continue
		}
		fields = append(fields, field)
		cols = append(cols, f.cols[i])
	}
	return New(arrow.NewSchema(fields, nil), cols)
}

// Release drops the frame's references on its columns.
func (f *Frame) Release() {
	for _, col := range f.cols {
		col.Release()
	}
}

// Take gathers rows by position into a new frame.
func (f *Frame) Take(ctx context.Context, rows []int) (*Frame, error) {
	cols := make([]arrow.Array, len(f.cols))
	for i, col := range f.cols {
		taken, err := take(ctx, f.mem, col, rows)
		if err != nil {
			return nil, err
		}
		defer taken.Release()
		cols[i] = taken
	}
	return New(f.schema, cols)
}

// Slice returns rows [i, j) without copying.
func (f *Frame) Slice(i, j int) (*Frame, error) {
	cols := make([]arrow.Array, len(f.cols))
	for k, col := range f.cols {
		s := array.NewSlice(col, int64(i), int64(j))
		defer s.Release()
		cols[k] = s
	}
	return New(f.schema, cols)
}

// Select evaluates exprs against the frame. Results of length one are
// broadcast when other results are longer.
func (f *Frame) Select(ctx context.Context, exprs ...Expr) (*Frame, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "frame.Select")
	defer span.Finish()

	results := make([]arrow.Array, len(exprs))
	defer func() {
		for _, r := range results {
			if r != nil {
				r.Release()
			}
		}
	}()

	height := 0
	for i, e := range exprs {
		arr, err := e.Eval(ctx, f)
		if err != nil {
			return nil, err
		}
		results[i] = arr
		height = max(height, arr.Len())
	}

	names := make([]string, len(exprs))
	seen := make(map[string]struct{}, len(exprs))
	for i, e := range exprs {
		names[i] = e.Name()
		if _, dup := seen[names[i]]; dup {
			return nil, fmt.Errorf("duplicate output column %q", names[i])
		}
		seen[names[i]] = struct{}{}

		switch n := results[i].Len(); {
		case n == height:
		case n == 1:
			b, err := broadcast(ctx, f.mem, results[i], height)
			if err != nil {
				return nil, err
			}
			results[i].Release()
			results[i] = b
		default:
			return nil, fmt.Errorf("column %q has %d rows, expected %d", names[i], n, height)
		}
	}

	fields := make([]arrow.Field, len(exprs))
	for i, e := range exprs {
		dt, err := e.DataType(f.schema)
		if err != nil {
			return nil, err
		}
		if !arrow.TypeEqual(dt, results[i].DataType()) {
			return nil, fmt.Errorf("expression %q produced %s, declared %s", names[i], results[i].DataType(), dt)
		}
		fields[i] = arrow.Field{Name: names[i], Type: dt, Nullable: true}
	}

	return New(arrow.NewSchema(fields, nil), results)
}
