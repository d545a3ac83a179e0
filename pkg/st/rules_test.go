package st

import (
	"testing"

	"geoexpr/pkg/geom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		op   string
		wkt  string
		kw   Kwargs
		kind func(error) bool
	}{
		{"relate", "GEOMETRYCOLLECTION EMPTY", nil, ErrRelateEmptyCollection.Is},
		{"relate", "GEOMETRYCOLLECTION (POINT (0 0))", nil, nil},
		{"relate_pattern", "GEOMETRYCOLLECTION EMPTY", nil, ErrRelatePatternEmpty.Is},
		{"coverage_union", "GEOMETRYCOLLECTION (POINT (0 0), LINESTRING (0 0, 1 1))", nil, ErrMixedDimension.Is},
		{"coverage_union", "POINT (0 0)", nil, ErrNotCollection.Is},
		{"coverage_union", "POINT EMPTY", nil, nil},
		{"coverage_union", "MULTIPOLYGON (((0 0, 1 0, 0 1, 0 0)))", nil, nil},
		{"union", "GEOMETRYCOLLECTION (POINT (0 0))", Kwargs{"grid_size": 1.0}, ErrMixedDimension.Is},
		{"union", "GEOMETRYCOLLECTION (POINT (0 0))", Kwargs{"grid_size": nil}, nil},
		{"union", "GEOMETRYCOLLECTION EMPTY", Kwargs{"grid_size": 1.0}, nil},
		{"shared_paths", "POINT (0 0)", nil, ErrNotLineal.Is},
		{"shared_paths", "MULTILINESTRING ((0 0, 1 1))", nil, nil},
		{"shared_paths", "POLYGON EMPTY", nil, nil},
		{"get_interior_ring", "LINESTRING (0 0, 1 1)", nil, ErrNotPolygon.Is},
		{"offset_curve", "MULTILINESTRING ((0 0, 1 1))", nil, ErrNotLineString.Is},
		{"interpolate", "POINT EMPTY", nil, nil},
		{"get_point", "POINT (1 2)", nil, ErrNotLineString.Is},
		{"to_srid", "POINT (1 2)", Kwargs{"srid": 4326}, ErrUnknownSRID.Is},
		{"to_srid", "POINT (1 2)", Kwargs{"srid": 0}, nil},
		{"to_srid", "POINT EMPTY", Kwargs{"srid": 4326}, nil},
		{"area", "GEOMETRYCOLLECTION EMPTY", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.op+"/"+tt.wkt, func(t *testing.T) {
			v, err := geom.Decode(mustWKB(t, tt.wkt))
			require.NoError(t, err)

			err = check(tt.op, v, tt.kw)
			if tt.kind == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, tt.kind(err), err.Error())
		})
	}
}

func TestRulesNameKnownOperations(t *testing.T) {
	for _, r := range rules {
		for _, op := range r.ops {
			_, ok := Lookup(op)
			assert.True(t, ok, op)
		}
	}
}
