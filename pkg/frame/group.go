package frame

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/cespare/xxhash/v2"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "frame")

var parallelism atomic.Int32

func init() {
	parallelism.Store(int32(runtime.GOMAXPROCS(0)))
}

// SetParallelism bounds how many groups are reduced concurrently.
func SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	parallelism.Store(int32(n))
}

// GroupBy holds the key expressions of a grouped aggregation.
type GroupBy struct {
	f    *Frame
	keys []Expr
}

// GroupBy starts a grouped aggregation. Groups keep the order in which
// their first row appears.
func (f *Frame) GroupBy(keys ...Expr) *GroupBy {
	return &GroupBy{f: f, keys: keys}
}

type groups struct {
	first []int
	rows  [][]int
}

func (g *GroupBy) partition(keyCols []arrow.Array) groups {
	var (
		out     groups
		byHash  = make(map[uint64][]int)
		keyStrs []string
		sb      strings.Builder
	)

	for row := 0; row < g.f.NumRows(); row++ {
		sb.Reset()
		for _, col := range keyCols {
			if col.IsNull(row) {
				sb.WriteByte(0)
			} else {
				sb.WriteByte(1)
				sb.WriteString(col.ValueStr(row))
			}
			sb.WriteByte(0x1f)
		}
		key := sb.String()
		h := xxhash.Sum64String(key)

		gid := -1
		for _, cand := range byHash[h] {
			if keyStrs[cand] == key {
				gid = cand
				break
			}
		}
		if gid < 0 {
			gid = len(out.rows)
			byHash[h] = append(byHash[h], gid)
			keyStrs = append(keyStrs, key)
			out.first = append(out.first, row)
			out.rows = append(out.rows, nil)
		}
		out.rows[gid] = append(out.rows[gid], row)
	}
	return out
}

// Agg evaluates exprs once per group. Aggregations yield one value per
// group; any other expression yields the list of its per-row values.
func (g *GroupBy) Agg(ctx context.Context, exprs ...Expr) (*Frame, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "frame.Agg")
	defer span.Finish()

	f := g.f
	var (
		names []string
		cols  []arrow.Array
	)
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	keyCols := make([]arrow.Array, len(g.keys))
	for i, k := range g.keys {
		arr, err := k.Eval(ctx, f)
		if err != nil {
			return nil, err
		}
		defer arr.Release()
		if arr.Len() != f.NumRows() {
			return nil, fmt.Errorf("group key %q has %d rows, expected %d", k.Name(), arr.Len(), f.NumRows())
		}
		keyCols[i] = arr
	}

	parts := g.partition(keyCols)
	log.WithFields(logrus.Fields{"rows": f.NumRows(), "groups": len(parts.rows)}).Debug("partitioned frame")

	for i, k := range g.keys {
		arr, err := take(ctx, f.mem, keyCols[i], parts.first)
		if err != nil {
			return nil, err
		}
		names = append(names, k.Name())
		cols = append(cols, arr)
	}

	for _, e := range exprs {
		dt, err := e.DataType(f.schema)
		if err != nil {
			return nil, err
		}

		var arr arrow.Array
		if IsAggregation(e) {
			arr, err = reduceGroups(ctx, f, e, dt, parts.rows)
		} else {
			arr, err = listGroups(ctx, f, e, parts.rows)
		}
		if err != nil {
			return nil, err
		}
		names = append(names, e.Name())
		cols = append(cols, arr)
	}

	return FromColumns(names, cols)
}

func reduceGroups(ctx context.Context, f *Frame, e Expr, dt arrow.DataType, rows [][]int) (arrow.Array, error) {
	if len(rows) == 0 {
		return Empty(f.mem, dt), nil
	}

	results := make([]arrow.Array, len(rows))
	defer func() {
		for _, r := range results {
			if r != nil {
				r.Release()
			}
		}
	}()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(int(parallelism.Load()))
	for i, idx := range rows {
		eg.Go(func() error {
			sub, err := f.Take(ctx, idx)
			if err != nil {
				return err
			}
			defer sub.Release()

			res, err := e.Eval(ctx, sub)
			if err != nil {
				return err
			}
			if res.Len() != 1 {
				res.Release()
				return fmt.Errorf("aggregation %q returned %d rows", e.Name(), res.Len())
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return array.Concatenate(results, f.mem)
}

func listGroups(ctx context.Context, f *Frame, e Expr, rows [][]int) (arrow.Array, error) {
	flat, err := e.Eval(ctx, f)
	if err != nil {
		return nil, err
	}
	defer flat.Release()

	if flat.Len() != f.NumRows() {
		return nil, fmt.Errorf("expression %q has %d rows, expected %d", e.Name(), flat.Len(), f.NumRows())
	}

	order := make([]int, 0, f.NumRows())
	offsets := make([]int32, 1, len(rows)+1)
	valid := make([]bool, len(rows))
	for i, idx := range rows {
		order = append(order, idx...)
		offsets = append(offsets, int32(len(order)))
		valid[i] = true
	}

	values, err := take(ctx, f.mem, flat, order)
	if err != nil {
		return nil, err
	}
	defer values.Release()

	return NewList(values, offsets, valid), nil
}
