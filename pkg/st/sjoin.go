package st

import (
	"context"
	"sort"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/frame"
	"geoexpr/pkg/native"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/rtree"
	"github.com/twpayne/go-geos"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// ErrUnknownPredicate is returned for join predicates SpatialJoin does not know.
var ErrUnknownPredicate = goerrors.NewKind("unknown join predicate: %s")

// Join output column names.
const (
	LeftIndex  = "left_index"
	RightIndex = "right_index"
)

// joinPredicates test a prepared left geometry against a right one.
var joinPredicates = map[string]func(l *geos.PrepGeom, r *geos.Geom) bool{
	"intersects_bbox":   func(*geos.PrepGeom, *geos.Geom) bool { return true },
	"intersects":        (*geos.PrepGeom).Intersects,
	"within":            (*geos.PrepGeom).Within,
	"contains":          (*geos.PrepGeom).Contains,
	"overlaps":          (*geos.PrepGeom).Overlaps,
	"crosses":           (*geos.PrepGeom).Crosses,
	"touches":           (*geos.PrepGeom).Touches,
	"covers":            (*geos.PrepGeom).Covers,
	"covered_by":        (*geos.PrepGeom).CoveredBy,
	"contains_properly": (*geos.PrepGeom).ContainsProperly,
}

// JoinPredicates lists the predicate names SpatialJoin accepts.
func JoinPredicates() []string {
	names := make([]string, 0, len(joinPredicates))
	for n := range joinPredicates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SpatialJoin pairs the rows of left and right whose geometries, taken
// from the leftOn and rightOn columns, satisfy predicate with the left
// geometry as the subject. The result has two UInt32 columns, left_index
// and right_index, ordered by right row then left row. Null and empty
// geometries never match.
func SpatialJoin(ctx context.Context, left, right *frame.Frame, leftOn, rightOn, predicate string) (*frame.Frame, error) {
	test, ok := joinPredicates[predicate]
	if !ok {
		return nil, ErrUnknownPredicate.New(predicate)
	}

	l, err := joinColumn(left, leftOn)
	if err != nil {
		return nil, err
	}
	r, err := joinColumn(right, rightOn)
	if err != nil {
		l.Release()
		return nil, err
	}

	nl, nr := l.Len(), r.Len()
	li, ri, err := joinIndices(ctx, l, r, test, left.Allocator())
	if err != nil {
		return nil, err
	}
	defer li.Release()
	defer ri.Release()

	log.WithFields(logrus.Fields{
		"left":      nl,
		"right":     nr,
		"predicate": predicate,
		"pairs":     li.Len(),
	}).Debug("spatial join")

	return frame.FromColumns([]string{LeftIndex, RightIndex}, []arrow.Array{li, ri})
}

func joinColumn(f *frame.Frame, name string) (*array.Binary, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if col.DataType().ID() == arrow.NULL {
		return array.MakeArrayOfNull(f.Allocator(), binaryType, col.Len()).(*array.Binary), nil
	}
	bin, err := arity.Geometries(col)
	if err != nil {
		return nil, err
	}
	bin.Retain()
	return bin, nil
}

// joinIndices indexes the envelopes of left in an R-tree, then tests every
// candidate pair with the prepared left geometry. It releases l and r.
func joinIndices(ctx context.Context, l, r *array.Binary, test func(*geos.PrepGeom, *geos.Geom) bool, mem memory.Allocator) (arrow.Array, arrow.Array, error) {
	defer l.Release()
	defer r.Release()

	lb := array.NewUint32Builder(mem)
	defer lb.Release()
	rb := array.NewUint32Builder(mem)
	defer rb.Release()

	err := native.Do(func(e *native.Engine) error {
		var (
			tree     rtree.RTreeG[int]
			prepared = make(map[int]*geos.PrepGeom)
		)
		for i := 0; i < l.Len(); i++ {
			if l.IsNull(i) {
				continue
			}
			g, err := e.Read(l.Value(i))
			if err != nil {
				return err
			}
			if g.IsEmpty() {
				continue
			}
			b := g.Bounds()
			tree.Insert([2]float64{b.MinX, b.MinY}, [2]float64{b.MaxX, b.MaxY}, i)
			prepared[i] = g.Prepare()
		}

		var hits []int
		for j := 0; j < r.Len(); j++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.IsNull(j) {
				continue
			}
			g, err := e.Read(r.Value(j))
			if err != nil {
				return err
			}
			if g.IsEmpty() {
				continue
			}

			b := g.Bounds()
			hits = hits[:0]
			tree.Search([2]float64{b.MinX, b.MinY}, [2]float64{b.MaxX, b.MaxY}, func(_, _ [2]float64, i int) bool {
				hits = append(hits, i)
				return true
			})
			sort.Ints(hits)
			for _, i := range hits {
				if test(prepared[i], g) {
					lb.Append(uint32(i))
					rb.Append(uint32(j))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return lb.NewArray(), rb.NewArray(), nil
}
