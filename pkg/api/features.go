package api

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/frame"
	"geoexpr/pkg/geom"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cast"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// GeometryColumn is the column holding feature geometries.
const GeometryColumn = "geometry"

type propertyKind int

const (
	kindNone propertyKind = iota
	kindBool
	kindInt
	kindFloat
	kindString
)

func kindOf(v any) propertyKind {
	switch x := v.(type) {
	case nil:
		return kindNone
	case bool:
		return kindBool
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return kindInt
		}
		return kindFloat
	}
	return kindString
}

// widen returns the narrowest kind holding both a and b.
func widen(a, b propertyKind) propertyKind {
	switch {
	case a == kindNone:
		return b
	case b == kindNone || a == b:
		return a
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	}
	return kindString
}

// FeaturesToFrame turns a FeatureCollection into a frame with a geometry
// column followed by one column per property, in name order. Geometries
// are tagged with srid.
func FeaturesToFrame(fc *geojson.FeatureCollection, srid int32, mem memory.Allocator) (*frame.Frame, error) {
	kinds := make(map[string]propertyKind)
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			kinds[k] = widen(kinds[k], kindOf(v))
		}
	}
	if _, ok := kinds[GeometryColumn]; ok {
		return nil, fmt.Errorf("property %q clashes with the geometry column", GeometryColumn)
	}

	keys := make([]string, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := append([]string{GeometryColumn}, keys...)
	cols := make([]arrow.Array, 0, len(names))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	geoms := arity.NewBinary(mem)
	defer geoms.Release()
	for i, f := range fc.Features {
		if f.Geometry == nil {
			geoms.AppendNull()
			continue
		}
		b, err := geom.EncodeWithSRID(f.Geometry, srid)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		geoms.Append(b)
	}
	cols = append(cols, geoms.NewArray())

	for _, k := range keys {
		col, err := propertyColumn(mem, fc.Features, k, kinds[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		cols = append(cols, col)
	}

	return frame.FromColumns(names, cols)
}

func propertyColumn(mem memory.Allocator, features []*geojson.Feature, key string, kind propertyKind) (arrow.Array, error) {
	var b array.Builder
	switch kind {
	case kindBool:
		b = array.NewBooleanBuilder(mem)
	case kindInt:
		b = array.NewInt64Builder(mem)
	case kindFloat:
		b = array.NewFloat64Builder(mem)
	default:
		b = array.NewStringBuilder(mem)
	}
	defer b.Release()

	for _, f := range features {
		v, ok := f.Properties[key]
		if !ok || v == nil {
			b.AppendNull()
			continue
		}
		switch bb := b.(type) {
		case *array.BooleanBuilder:
			bb.Append(v.(bool))
		case *array.Int64Builder:
			bb.Append(cast.ToInt64(v))
		case *array.Float64Builder:
			bb.Append(cast.ToFloat64(v))
		case *array.StringBuilder:
			s, err := propertyString(v)
			if err != nil {
				return nil, err
			}
			bb.Append(s)
		}
	}
	return b.NewArray(), nil
}

// propertyString renders scalars as text and everything else as JSON.
func propertyString(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		return string(b), err
	}
	return cast.ToStringE(v)
}

// FrameToFeatures turns a frame into a FeatureCollection. The first Binary
// column is the feature geometry, the rest become properties.
func FrameToFeatures(f *frame.Frame) (*geojson.FeatureCollection, error) {
	geomIdx := -1
	for i, field := range f.Schema().Fields() {
		if arrow.TypeEqual(field.Type, arrow.BinaryTypes.Binary) {
			geomIdx = i
			break
		}
	}
	if geomIdx < 0 {
		return nil, fmt.Errorf("frame has no geometry column")
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, f.NumRows())}
	for row := range fc.Features {
		feature := &geojson.Feature{Properties: make(map[string]any)}
		for i, field := range f.Schema().Fields() {
			col := f.ColumnAt(i)
			if i == geomIdx {
				g, err := geometryAt(col.(*array.Binary), row)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", row, err)
				}
				feature.Geometry = g
				continue
			}
			v, err := getColumnValue(col, row)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", field.Name, row, err)
			}
			feature.Properties[field.Name] = v
		}
		fc.Features[row] = feature
	}
	return fc, nil
}

// FrameToRows turns a frame into one JSON object per row.
func FrameToRows(f *frame.Frame) ([]map[string]any, error) {
	rows := make([]map[string]any, f.NumRows())
	for row := range rows {
		rows[row] = make(map[string]any, f.NumCols())
		for i, field := range f.Schema().Fields() {
			v, err := getColumnValue(f.ColumnAt(i), row)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", field.Name, row, err)
			}
			rows[row][field.Name] = v
		}
	}
	return rows, nil
}

func geometryAt(col *array.Binary, idx int) (gogeom.T, error) {
	if col.IsNull(idx) {
		return nil, nil
	}
	v, err := geom.Decode(col.Value(idx))
	if err != nil {
		return nil, err
	}
	return v.Geometry()
}

// getColumnValue extracts a JSON-ready value from an Arrow column. Geometry
// values become GeoJSON geometries and NaN becomes null.
func getColumnValue(col arrow.Array, idx int) (any, error) {
	if col.IsNull(idx) {
		return nil, nil
	}
	switch c := col.(type) {
	case *array.Float64:
		if math.IsNaN(c.Value(idx)) {
			return nil, nil
		}
		return c.Value(idx), nil
	case *array.Int64:
		return c.Value(idx), nil
	case *array.Int32:
		return int64(c.Value(idx)), nil
	case *array.Uint32:
		return int64(c.Value(idx)), nil
	case *array.String:
		return c.Value(idx), nil
	case *array.Boolean:
		return c.Value(idx), nil
	case *array.Binary:
		g, err := geometryAt(c, idx)
		if err != nil || g == nil {
			return nil, err
		}
		return geojson.Encode(g)
	case array.ListLike:
		start, end := c.ValueOffsets(idx)
		values := c.ListValues()
		out := make([]any, 0, end-start)
		for j := start; j < end; j++ {
			v, err := getColumnValue(values, int(j))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported column type: %s", col.DataType())
}
