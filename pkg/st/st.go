// Package st is the catalogue of vectorized geometry expressions.
//
// Every function maps a Binary column of EWKB values to one column of a
// declared type. The declared type never depends on the data: zero rows,
// null rows and empty geometries all produce a column of that type. Null
// inputs give null outputs. Aggregates reduce a column to one value and
// return their identity when there is no non-null input.
package st

import (
	"fmt"
	"sort"

	"geoexpr/pkg/frame"
	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

var log = logrus.WithField("component", "st")

var (
	// ErrUnknownFunction is returned for names missing from the catalogue.
	ErrUnknownFunction = goerrors.NewKind("unknown function: %s")
	// ErrUnknownAggregate is returned for names missing from the aggregate catalogue.
	ErrUnknownAggregate = goerrors.NewKind("unknown aggregate: %s")
	// ErrInvalidArgument is returned when a keyword argument is unknown,
	// missing or cannot be coerced.
	ErrInvalidArgument = goerrors.NewKind("%s: invalid argument %q: %s")
	// ErrInputType is returned when the input column has the wrong type.
	ErrInputType = goerrors.NewKind("%s: expected %s input, got %s")
)

// Param describes how a keyword argument is coerced.
type Param int

const (
	ParamFloat Param = iota
	// ParamOptionalFloat accepts nil as "not set".
	ParamOptionalFloat
	ParamInt
	ParamOptionalInt
	ParamBool
	ParamString
	// ParamFloats accepts a list of numbers.
	ParamFloats
	// ParamGeometry accepts an expression, EWKB bytes or a WKT string.
	ParamGeometry
)

// Kwargs are keyword arguments. After binding, values hold float64, int,
// bool, string, []float64 or nil according to their Param.
type Kwargs map[string]any

// Has reports whether key is bound to a non-nil value.
func (kw Kwargs) Has(key string) bool {
	v, ok := kw[key]
	return ok && v != nil
}

func (kw Kwargs) float(key string) float64    { return kw[key].(float64) }
func (kw Kwargs) int(key string) int          { return kw[key].(int) }
func (kw Kwargs) bool(key string) bool        { return kw[key].(bool) }
func (kw Kwargs) str(key string) string       { return kw[key].(string) }
func (kw Kwargs) floats(key string) []float64 { return kw[key].([]float64) }

func (kw Kwargs) optFloat(key string) (float64, bool) {
	if !kw.Has(key) {
		return 0, false
	}
	return kw[key].(float64), true
}

// Function is one element-wise operation of the catalogue.
type Function struct {
	Name string
	// Type is the declared output type.
	Type arrow.DataType
	// Params lists the accepted keyword arguments. A param without a
	// default in Defaults is required.
	Params   map[string]Param
	Defaults Kwargs
	// Input is the accepted input type. Nil means Binary.
	Input arrow.DataType

	typeOf   func(kw Kwargs) arrow.DataType
	validate func(kw Kwargs) error
	eval     evalFunc
}

// OutputType is the declared type for a bound argument set.
func (f *Function) OutputType(kw Kwargs) arrow.DataType {
	if f.typeOf != nil {
		return f.typeOf(kw)
	}
	return f.Type
}

func (f *Function) input() arrow.DataType {
	if f.Input == nil {
		return arrow.BinaryTypes.Binary
	}
	return f.Input
}

// Aggregate is one reducing operation of the catalogue.
type Aggregate struct {
	Name     string
	Type     arrow.DataType
	Params   map[string]Param
	Defaults Kwargs
	// Identity is the result over no non-null input.
	Identity any

	reduce reduceFunc
}

var (
	functions  = make(map[string]*Function)
	aggregates = make(map[string]*Aggregate)
)

func register(fs ...*Function) {
	for _, f := range fs {
		if _, dup := functions[f.Name]; dup {
			panic(fmt.Sprintf("function %q registered twice", f.Name))
		}
		functions[f.Name] = f
	}
}

func registerAgg(as ...*Aggregate) {
	for _, a := range as {
		if _, dup := aggregates[a.Name]; dup {
			panic(fmt.Sprintf("aggregate %q registered twice", a.Name))
		}
		aggregates[a.Name] = a
	}
}

// Lookup returns the function called name.
func Lookup(name string) (*Function, bool) {
	f, ok := functions[name]
	return f, ok
}

// LookupAggregate returns the aggregate called name.
func LookupAggregate(name string) (*Aggregate, bool) {
	a, ok := aggregates[name]
	return a, ok
}

// Functions lists the function names in sorted order.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for n := range functions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Aggregates lists the aggregate names in sorted order.
func Aggregates() []string {
	names := make([]string, 0, len(aggregates))
	for n := range aggregates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call applies the function called name to self.
func Call(name string, self frame.Expr, kw Kwargs) (frame.Expr, error) {
	fn, ok := functions[name]
	if !ok {
		return nil, ErrUnknownFunction.New(name)
	}

	args, other, err := bind(name, fn.Params, fn.Defaults, kw)
	if err != nil {
		return nil, err
	}
	if fn.validate != nil {
		if err := fn.validate(args); err != nil {
			return nil, err
		}
	}

	return &call{fn: fn, self: self, other: other, kw: args}, nil
}

// Agg applies the aggregate called name to self.
func Agg(name string, self frame.Expr, kw Kwargs) (frame.Expr, error) {
	a, ok := aggregates[name]
	if !ok {
		return nil, ErrUnknownAggregate.New(name)
	}

	args, _, err := bind(name, a.Params, a.Defaults, kw)
	if err != nil {
		return nil, err
	}

	return &aggCall{agg: a, self: self, kw: args}, nil
}

// bind coerces kw against params and fills defaults. A geometry argument
// is returned as an expression.
func bind(op string, params map[string]Param, defaults, kw Kwargs) (Kwargs, frame.Expr, error) {
	out := make(Kwargs, len(params))
	for k, v := range defaults {
		out[k] = v
	}

	var other frame.Expr
	for key, value := range kw {
		p, ok := params[key]
		if !ok {
			return nil, nil, ErrInvalidArgument.New(op, key, "unknown argument")
		}

		if p == ParamGeometry {
			e, err := geometryArg(value)
			if err != nil {
				return nil, nil, ErrInvalidArgument.New(op, key, err.Error())
			}
			other = e
			continue
		}

		v, err := coerce(p, value)
		if err != nil {
			return nil, nil, ErrInvalidArgument.New(op, key, err.Error())
		}
		out[key] = v
	}

	for key, p := range params {
		if p == ParamGeometry {
			if other == nil {
				return nil, nil, ErrInvalidArgument.New(op, key, "required")
			}
			continue
		}
		if _, ok := out[key]; !ok {
			return nil, nil, ErrInvalidArgument.New(op, key, "required")
		}
	}

	return out, other, nil
}

func coerce(p Param, v any) (any, error) {
	switch p {
	case ParamFloat:
		return cast.ToFloat64E(v)
	case ParamOptionalFloat:
		if v == nil {
			return nil, nil
		}
		return cast.ToFloat64E(v)
	case ParamInt:
		return cast.ToIntE(v)
	case ParamOptionalInt:
		if v == nil {
			return nil, nil
		}
		return cast.ToIntE(v)
	case ParamBool:
		return cast.ToBoolE(v)
	case ParamString:
		return cast.ToStringE(v)
	case ParamFloats:
		return toFloats(v)
	}
	return nil, fmt.Errorf("unsupported parameter kind %d", p)
}

func toFloats(v any) ([]float64, error) {
	if fs, ok := v.([]float64); ok {
		return fs, nil
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		if out[i], err = cast.ToFloat64E(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func geometryArg(v any) (frame.Expr, error) {
	switch v := v.(type) {
	case frame.Expr:
		return v, nil
	case []byte:
		b, err := native.Normalize(v)
		if err != nil {
			return nil, err
		}
		return frame.Lit(b), nil
	case string:
		b, err := native.ParseWKT(v)
		if err != nil {
			return nil, err
		}
		return frame.Lit(b), nil
	}
	return nil, fmt.Errorf("cannot use %T as a geometry", v)
}

// emptyCollection is the identity of most geometry aggregates.
var emptyCollection = geom.EmptyOf(geom.GeometryCollection, 0)
