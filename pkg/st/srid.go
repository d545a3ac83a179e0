package st

import (
	"context"
	"fmt"
	"sync/atomic"

	"geoexpr/pkg/geom"

	"github.com/apache/arrow-go/v18/arrow"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// ErrNoReprojector is returned by to_srid when rows need transforming and
// no Reprojector was installed.
var ErrNoReprojector = goerrors.NewKind("reprojection from SRID %d to %d needs a reprojector")

// Reprojector transforms a batch of EWKB values between two SRIDs. The
// returned values carry the target SRID.
type Reprojector interface {
	Transform(ctx context.Context, values [][]byte, from, to int32) ([][]byte, error)
}

var reprojector atomic.Pointer[Reprojector]

// SetReprojector installs r for every later to_srid evaluation. A nil r
// removes the current one.
func SetReprojector(r Reprojector) {
	if r == nil {
		reprojector.Store(nil)
		return
	}
	reprojector.Store(&r)
}

// toSRID passes same-SRID and empty rows through and sends the rest to
// the reprojector, one batch per source SRID.
func toSRID(ctx context.Context, in *input) (arrow.Array, error) {
	values := in.geometries()
	target := int32(in.kw.int("srid"))

	out := make([][]byte, values.Len())
	batches := make(map[int32][]int)
	var order []int32

	for i := 0; i < values.Len(); i++ {
		if values.IsNull(i) {
			continue
		}
		v, err := geom.Decode(values.Value(i))
		if err != nil {
			return nil, err
		}
		if err := check(in.op, v, in.kw); err != nil {
			return nil, err
		}

		out[i] = v.Bytes()
		empty, err := v.IsEmpty()
		if err != nil {
			return nil, err
		}
		if v.SRID() == target || empty {
			continue
		}
		if _, ok := batches[v.SRID()]; !ok {
			order = append(order, v.SRID())
		}
		batches[v.SRID()] = append(batches[v.SRID()], i)
	}

	for _, from := range order {
		rows := batches[from]
		r := reprojector.Load()
		if r == nil {
			return nil, ErrNoReprojector.New(from, target)
		}

		batch := make([][]byte, len(rows))
		for j, i := range rows {
			batch[j] = out[i]
		}
		log.WithField("from", from).WithField("to", target).WithField("rows", len(rows)).Debug("reprojecting batch")

		transformed, err := (*r).Transform(ctx, batch, from, target)
		if err != nil {
			return nil, err
		}
		if len(transformed) != len(rows) {
			return nil, fmt.Errorf("reprojector returned %d values for %d rows", len(transformed), len(rows))
		}
		for j, i := range rows {
			out[i] = transformed[j]
		}
	}

	b := binaries(in.mem)
	defer b.Release()
	for i := range out {
		if values.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(out[i])
	}
	return b.NewArray(), nil
}
