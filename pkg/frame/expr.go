package frame

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Expr produces one column from a frame.
type Expr interface {
	// Name is the output column name.
	Name() string
	// DataType is the declared output type. It does not depend on the data.
	DataType(schema *arrow.Schema) (arrow.DataType, error)
	// Eval computes the output column.
	Eval(ctx context.Context, f *Frame) (arrow.Array, error)
}

// Aggregation is an Expr that reduces all rows of the frame it is given to
// a single row.
type Aggregation interface {
	Expr
	Reduces()
}

// ElementName is the column name under which list elements are exposed
// to the inner expression of ListEval.
const ElementName = ""

// LiteralName is the output name of literal expressions.
const LiteralName = "literal"

type column struct {
	name string
}

// Col references an input column by name.
func Col(name string) Expr {
	return &column{name: name}
}

// Element references the current list element inside ListEval.
func Element() Expr {
	return &column{name: ElementName}
}

func (c *column) Name() string { return c.name }

func (c *column) DataType(schema *arrow.Schema) (arrow.DataType, error) {
	idx := schema.FieldIndices(c.name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("column %q not found", c.name)
	}
	return schema.Field(idx[0]).Type, nil
}

func (c *column) Eval(_ context.Context, f *Frame) (arrow.Array, error) {
	arr, err := f.Column(c.name)
	if err != nil {
		return nil, err
	}
	arr.Retain()
	return arr, nil
}

type literal struct {
	value any
	dt    arrow.DataType
}

// Lit repeats value on every row of the frame. Supported values are nil,
// bool, int, int32, int64, float64, string and []byte; Go ints map to Int32.
func Lit(value any) Expr {
	var dt arrow.DataType
	switch value.(type) {
	case nil:
		dt = arrow.Null
	case bool:
		dt = arrow.FixedWidthTypes.Boolean
	case int, int32:
		dt = arrow.PrimitiveTypes.Int32
	case int64:
		dt = arrow.PrimitiveTypes.Int64
	case float64:
		dt = arrow.PrimitiveTypes.Float64
	case string:
		dt = arrow.BinaryTypes.String
	case []byte:
		dt = arrow.BinaryTypes.Binary
	}
	return &literal{value: value, dt: dt}
}

func (l *literal) Name() string { return LiteralName }

func (l *literal) DataType(*arrow.Schema) (arrow.DataType, error) {
	if l.dt == nil {
		return nil, fmt.Errorf("unsupported literal %T", l.value)
	}
	return l.dt, nil
}

func (l *literal) Eval(_ context.Context, f *Frame) (arrow.Array, error) {
	if l.dt == nil {
		return nil, fmt.Errorf("unsupported literal %T", l.value)
	}
	return repeat(f.Allocator(), l.value, l.dt, f.NumRows()), nil
}

func repeat(mem memory.Allocator, value any, dt arrow.DataType, n int) arrow.Array {
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	b.Reserve(n)

	for i := 0; i < n; i++ {
		switch b := b.(type) {
		case *array.NullBuilder:
			b.AppendNull()
		case *array.BooleanBuilder:
			b.Append(value.(bool))
		case *array.Int32Builder:
			switch v := value.(type) {
			case int:
				b.Append(int32(v))
			case int32:
				b.Append(v)
			}
		case *array.Int64Builder:
			b.Append(value.(int64))
		case *array.Float64Builder:
			b.Append(value.(float64))
		case *array.StringBuilder:
			b.Append(value.(string))
		case *array.BinaryBuilder:
			b.Append(value.([]byte))
		}
	}
	return b.NewArray()
}

type alias struct {
	Expr
	name string
}

// Alias renames the output of e.
func Alias(e Expr, name string) Expr {
	if agg, ok := e.(Aggregation); ok {
		return &aggAlias{Aggregation: agg, name: name}
	}
	return &alias{Expr: e, name: name}
}

func (a *alias) Name() string { return a.name }

type aggAlias struct {
	Aggregation
	name string
}

func (a *aggAlias) Name() string { return a.name }

// IsAggregation reports whether e reduces its input to one row.
func IsAggregation(e Expr) bool {
	_, ok := e.(Aggregation)
	return ok
}
