package st

import (
	"context"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/frame"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type evalFunc func(ctx context.Context, in *input) (arrow.Array, error)

type reduceFunc func(ctx context.Context, values [][]byte, kw Kwargs, mem memory.Allocator) (arrow.Array, error)

// input is one evaluation of a function over a column.
type input struct {
	op    string
	self  arrow.Array
	other *array.Binary
	kw    Kwargs
	mem   memory.Allocator
}

func (in *input) geometries() *array.Binary {
	return in.self.(*array.Binary)
}

type call struct {
	fn    *Function
	self  frame.Expr
	other frame.Expr
	kw    Kwargs
}

func (c *call) Name() string { return c.self.Name() }

func (c *call) DataType(schema *arrow.Schema) (arrow.DataType, error) {
	dt, err := c.self.DataType(schema)
	if err != nil {
		return nil, err
	}
	if err := c.checkInput(dt); err != nil {
		return nil, err
	}
	return c.fn.OutputType(c.kw), nil
}

func (c *call) checkInput(dt arrow.DataType) error {
	want := c.fn.input()
	switch {
	case dt.ID() == arrow.NULL, arrow.TypeEqual(dt, want), sameShape(dt, want):
		return nil
	}
	return ErrInputType.New(c.fn.Name, want, dt)
}

func (c *call) Eval(ctx context.Context, f *frame.Frame) (arrow.Array, error) {
	self, err := c.self.Eval(ctx, f)
	if err != nil {
		return nil, err
	}
	defer self.Release()

	if err := c.checkInput(self.DataType()); err != nil {
		return nil, err
	}
	if self.DataType().ID() == arrow.NULL {
		nulls := array.MakeArrayOfNull(f.Allocator(), c.fn.input(), self.Len())
		defer nulls.Release()
		self = nulls
	}

	in := &input{
		op:   c.fn.Name,
		self: self,
		kw:   c.kw,
		mem:  f.Allocator(),
	}

	if c.other != nil {
		other, err := c.other.Eval(ctx, f)
		if err != nil {
			return nil, err
		}
		defer other.Release()
		bin, err := arity.Geometries(other)
		if err != nil {
			return nil, err
		}
		in.other = bin
	}

	return c.fn.eval(ctx, in)
}

type aggCall struct {
	agg  *Aggregate
	self frame.Expr
	kw   Kwargs
}

func (a *aggCall) Name() string { return a.self.Name() }

func (a *aggCall) DataType(schema *arrow.Schema) (arrow.DataType, error) {
	if _, err := a.self.DataType(schema); err != nil {
		return nil, err
	}
	return a.agg.Type, nil
}

func (a *aggCall) Reduces() {}

func (a *aggCall) Eval(ctx context.Context, f *frame.Frame) (arrow.Array, error) {
	self, err := a.self.Eval(ctx, f)
	if err != nil {
		return nil, err
	}
	defer self.Release()

	var values [][]byte
	if self.DataType().ID() != arrow.NULL {
		bin, err := arity.Geometries(self)
		if err != nil {
			return nil, err
		}
		values = arity.Values(bin)
	}

	if len(values) == 0 {
		return identity(a.agg, f.Allocator()), nil
	}
	return a.agg.reduce(ctx, values, a.kw, f.Allocator())
}

func identity(a *Aggregate, mem memory.Allocator) arrow.Array {
	switch v := a.Identity.(type) {
	case []byte:
		b := arity.NewBinary(mem)
		defer b.Release()
		b.Append(v)
		return b.NewArray()
	case [4]float64:
		b := arity.NewBounds(mem)
		defer b.Release()
		b.Append(v)
		return b.NewArray()
	}
	return array.MakeArrayOfNull(mem, a.Type, 1)
}
