package st

import (
	"context"
	"testing"

	"geoexpr/pkg/geom"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shifting moves x by the target SRID and records every batch.
type shifting struct {
	batches []int32
}

func (s *shifting) Transform(_ context.Context, values [][]byte, from, to int32) ([][]byte, error) {
	s.batches = append(s.batches, from)
	out := make([][]byte, len(values))
	for i, b := range values {
		v, err := geom.Decode(b)
		if err != nil {
			return nil, err
		}
		g, err := v.Geometry()
		if err != nil {
			return nil, err
		}
		if out[i], err = geom.EncodeWithSRID(translateBy(g, float64(to), 0, 0), to); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func withSRID(t *testing.T, wkt string, srid int32) []byte {
	t.Helper()
	b, err := geom.SetSRID(mustWKB(t, wkt), srid)
	require.NoError(t, err)
	return b
}

func TestToSRIDWithoutReprojector(t *testing.T) {
	SetReprojector(nil)

	_, err := tryCall(t, "to_srid", Kwargs{"srid": 3857}, withSRID(t, "POINT (1 2)", 4326))
	require.Error(t, err)
	assert.True(t, ErrNoReprojector.Is(err))

	same := withSRID(t, "POINT (1 2)", 3857)
	out := evalCall(t, "to_srid", Kwargs{"srid": 3857}, same, nil, withSRID(t, "POINT EMPTY", 4326))
	assert.Equal(t, same, binaryAt(t, out, 0))
	assert.True(t, out.IsNull(1))
	assert.True(t, out.IsValid(2))
}

func TestToSRIDUnknownSource(t *testing.T) {
	_, err := tryCall(t, "to_srid", Kwargs{"srid": 4326}, mustWKB(t, "POINT (1 2)"))
	require.Error(t, err)
	assert.True(t, ErrUnknownSRID.Is(err))
	assert.Equal(t, "Unknown SRID: 0", err.Error())
}

func TestToSRIDBatchesPerSource(t *testing.T) {
	r := &shifting{}
	SetReprojector(r)
	t.Cleanup(func() { SetReprojector(nil) })

	out := evalCall(t, "to_srid", Kwargs{"srid": 10},
		withSRID(t, "POINT (1 2)", 3857),
		withSRID(t, "POINT (0 0)", 4326),
		withSRID(t, "POINT (5 5)", 10),
		withSRID(t, "POINT (2 2)", 3857),
	).(*array.Binary)

	assert.Equal(t, []int32{3857, 4326}, r.batches)

	want := [][]float64{{11, 2}, {10, 0}, {5, 5}, {12, 2}}
	for i, coords := range want {
		v, g := decoded(t, out.Value(i))
		assert.Equal(t, int32(10), v.SRID())
		assert.Equal(t, coords, g.FlatCoords())
	}
}
