// Package plan decodes JSON or YAML evaluation plans into frame
// expressions and runs them.
//
// A plan selects output columns, optionally grouped:
//
//	group_by: [region]
//	select:
//	  - column: geometry
//	    calls:
//	      - function: buffer
//	        args: {distance: 1}
//	    aggregate: {function: union_all}
//	    alias: merged
package plan

import (
	"context"
	"encoding/json"
	"fmt"

	"geoexpr/pkg/frame"
	"geoexpr/pkg/st"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var log = logrus.WithField("component", "plan")

// Call names one catalogue function or aggregate and its arguments.
type Call struct {
	Function string         `yaml:"function" json:"function"`
	Args     map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
}

// Column is one output column.
type Column struct {
	// Column is the input column name.
	Column string `yaml:"column" json:"column"`
	// Calls are applied left to right.
	Calls     []Call `yaml:"calls,omitempty" json:"calls,omitempty"`
	Aggregate *Call  `yaml:"aggregate,omitempty" json:"aggregate,omitempty"`
	// ListEval applies Calls and Aggregate to the elements of a list
	// column instead of the column itself.
	ListEval bool   `yaml:"list_eval,omitempty" json:"list_eval,omitempty"`
	Alias    string `yaml:"alias,omitempty" json:"alias,omitempty"`
}

// Plan is a decoded evaluation plan.
type Plan struct {
	GroupBy []string `yaml:"group_by,omitempty" json:"group_by,omitempty"`
	Select  []Column `yaml:"select" json:"select"`
}

// Decode parses a JSON or YAML plan.
func Decode(data []byte) (*Plan, error) {
	var (
		p   Plan
		err error
	)
	if json.Valid(data) {
		err = json.Unmarshal(data, &p)
	} else {
		err = yaml.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(p.Select) == 0 {
		return nil, fmt.Errorf("plan selects no columns")
	}
	return &p, nil
}

// Exprs builds one expression per selected column.
func (p *Plan) Exprs() ([]frame.Expr, error) {
	out := make([]frame.Expr, len(p.Select))
	for i, c := range p.Select {
		e, err := c.expr()
		if err != nil {
			return nil, fmt.Errorf("select[%d]: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

func (c Column) expr() (frame.Expr, error) {
	if c.Column == "" {
		return nil, fmt.Errorf("missing column")
	}

	e := frame.Col(c.Column)
	if c.ListEval {
		e = frame.Element()
	}

	var err error
	for _, call := range c.Calls {
		if e, err = st.Call(call.Function, e, call.Args); err != nil {
			return nil, err
		}
	}
	if c.Aggregate != nil {
		if e, err = st.Agg(c.Aggregate.Function, e, c.Aggregate.Args); err != nil {
			return nil, err
		}
	}

	if c.ListEval {
		e = frame.ListEval(frame.Col(c.Column), e)
	}
	if c.Alias != "" {
		e = frame.Alias(e, c.Alias)
	}
	return e, nil
}

// Run evaluates the plan against f.
func (p *Plan) Run(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	exprs, err := p.Exprs()
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"rows":     f.NumRows(),
		"columns":  len(exprs),
		"group_by": p.GroupBy,
	}).Debug("running plan")

	if len(p.GroupBy) == 0 {
		return f.Select(ctx, exprs...)
	}

	keys := make([]frame.Expr, len(p.GroupBy))
	for i, k := range p.GroupBy {
		keys[i] = frame.Col(k)
	}
	return f.GroupBy(keys...).Agg(ctx, exprs...)
}
