// Package geoparquet writes and reads frames as parquet files carrying the
// GeoParquet "geo" metadata for their WKB columns.
package geoparquet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/frame"
	"geoexpr/pkg/geom"
	"geoexpr/pkg/st"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "geoparquet")

// MetadataKey is the file metadata key holding Metadata as JSON.
const MetadataKey = "geo"

const version = "1.1.0"

// Metadata is the content of the geo key.
type Metadata struct {
	Version       string            `json:"version"`
	PrimaryColumn string            `json:"primary_column"`
	Columns       map[string]Column `json:"columns"`
}

// Column describes one geometry column.
type Column struct {
	Encoding      string    `json:"encoding"`
	GeometryTypes []string  `json:"geometry_types"`
	BBox          []float64 `json:"bbox,omitempty"`
	CRS           *CRS      `json:"crs,omitempty"`
}

// CRS is the identifier part of a PROJJSON object. Only the EPSG code of
// the values' SRID is recorded.
type CRS struct {
	ID struct {
		Authority string `json:"authority"`
		Code      int32  `json:"code"`
	} `json:"id"`
}

func epsg(srid int32) *CRS {
	c := &CRS{}
	c.ID.Authority = "EPSG"
	c.ID.Code = srid
	return c
}

// Write stores f as Snappy-compressed parquet along with its Arrow schema.
// Every Binary column is treated as a geometry column. When all values of
// a column share one SRID it moves from the values into the column's crs.
func Write(ctx context.Context, w io.Writer, f *frame.Frame) error {
	meta := Metadata{Version: version, Columns: make(map[string]Column)}

	cols := make([]arrow.Array, f.NumCols())
	for i, field := range f.Schema().Fields() {
		col := f.ColumnAt(i)
		if !arrow.TypeEqual(field.Type, arrow.BinaryTypes.Binary) {
			col.Retain()
			cols[i] = col
			continue
		}

		c, stripped, err := describe(ctx, f, field.Name)
		if err != nil {
			for _, done := range cols[:i] {
				done.Release()
			}
			return fmt.Errorf("column %q: %w", field.Name, err)
		}
		if meta.PrimaryColumn == "" {
			meta.PrimaryColumn = field.Name
		}
		meta.Columns[field.Name] = c
		cols[i] = stripped
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	md := arrow.Metadata{}
	if meta.PrimaryColumn != "" {
		geo, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		md = arrow.NewMetadata([]string{MetadataKey}, []string{string(geo)})
	}
	schema := arrow.NewSchema(f.Schema().Fields(), &md)

	writer, err := pqarrow.NewFileWriter(
		schema,
		w,
		parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	rec := array.NewRecordBatch(schema, cols, int64(f.NumRows()))
	defer rec.Release()
	if err := writer.WriteBuffered(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return writer.Close()
}

// describe builds the column metadata of a geometry column and returns the
// column to store.
func describe(ctx context.Context, f *frame.Frame, name string) (Column, arrow.Array, error) {
	c := Column{Encoding: "WKB", GeometryTypes: []string{}}

	col, err := f.Column(name)
	if err != nil {
		return c, nil, err
	}
	values := col.(*array.Binary)

	types := make(map[string]struct{})
	srids := make(map[int32]struct{})
	b := arity.NewBinary(memory.NewGoAllocator())
	defer b.Release()

	for i := 0; i < values.Len(); i++ {
		if values.IsNull(i) {
			b.AppendNull()
			continue
		}
		h, err := geom.ReadHeader(values.Value(i))
		if err != nil {
			return c, nil, err
		}
		t := h.Type.String()
		if h.HasZ {
			t += " Z"
		}
		types[t] = struct{}{}
		srids[h.SRID] = struct{}{}

		plain, err := geom.SetSRID(values.Value(i), 0)
		if err != nil {
			return c, nil, err
		}
		b.Append(plain)
	}

	for t := range types {
		c.GeometryTypes = append(c.GeometryTypes, t)
	}
	sort.Strings(c.GeometryTypes)

	// Values keep their own SRIDs unless they all share one.
	if len(srids) > 1 {
		col.Retain()
		return c, col, boundsInto(ctx, f, name, &c)
	}
	for srid := range srids {
		if srid != 0 {
			c.CRS = epsg(srid)
		}
	}

	if err := boundsInto(ctx, f, name, &c); err != nil {
		return c, nil, err
	}
	return c, b.NewArray(), nil
}

func boundsInto(ctx context.Context, f *frame.Frame, name string, c *Column) error {
	bbox, err := totalBounds(ctx, f, name)
	if err != nil {
		return err
	}
	if !math.IsNaN(bbox[0]) {
		c.BBox = bbox[:]
	}
	return nil
}

func totalBounds(ctx context.Context, f *frame.Frame, name string) ([4]float64, error) {
	var out [4]float64
	e, err := st.Agg("total_bounds", frame.Col(name), nil)
	if err != nil {
		return out, err
	}
	res, err := f.Select(ctx, e)
	if err != nil {
		return out, err
	}
	defer res.Release()

	vals := res.ColumnAt(0).(*array.FixedSizeList).ListValues().(*array.Float64)
	copy(out[:], vals.Float64Values())
	return out, nil
}

// WriteFile is Write to a new file at path.
func WriteFile(ctx context.Context, path string, f *frame.Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	if err := Write(ctx, out, f); err != nil {
		out.Close()
		return err
	}
	log.WithFields(logrus.Fields{"path": path, "rows": f.NumRows()}).Debug("wrote parquet file")
	return out.Close()
}

// Read loads a parquet file into a frame. Geometry columns named in the
// geo metadata get their SRID back from the column's crs.
func Read(ctx context.Context, r parquet.ReaderAtSeeker) (*frame.Frame, *Metadata, error) {
	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer pf.Close()

	var meta *Metadata
	if geo := pf.MetaData().KeyValueMetadata().FindValue(MetadataKey); geo != nil {
		meta = &Metadata{}
		if err := json.Unmarshal([]byte(*geo), meta); err != nil {
			return nil, nil, fmt.Errorf("invalid %s metadata: %w", MetadataKey, err)
		}
	}

	mem := memory.NewGoAllocator()
	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: 10000}, mem)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}
	tbl, err := reader.ReadTable(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read table: %w", err)
	}
	defer tbl.Release()

	names := make([]string, tbl.NumCols())
	cols := make([]arrow.Array, tbl.NumCols())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i := range cols {
		field := tbl.Schema().Field(i)
		names[i] = field.Name

		chunks := tbl.Column(i).Data().Chunks()
		var col arrow.Array
		if len(chunks) == 0 {
			col = frame.Empty(mem, field.Type)
		} else if col, err = array.Concatenate(chunks, mem); err != nil {
			return nil, nil, err
		}
		cols[i] = col

		if meta == nil {
			continue
		}
		if c, ok := meta.Columns[field.Name]; ok && c.CRS != nil && c.CRS.ID.Authority == "EPSG" {
			withSRID, err := restoreSRID(mem, col, c.CRS.ID.Code)
			if err != nil {
				return nil, nil, fmt.Errorf("column %q: %w", field.Name, err)
			}
			col.Release()
			cols[i] = withSRID
		}
	}

	f, err := frame.FromColumns(names, cols)
	if err != nil {
		return nil, nil, err
	}
	return f, meta, nil
}

func restoreSRID(mem memory.Allocator, col arrow.Array, srid int32) (arrow.Array, error) {
	values, err := arity.Geometries(col)
	if err != nil {
		return nil, err
	}
	b := arity.NewBinary(mem)
	defer b.Release()
	for i := 0; i < values.Len(); i++ {
		if values.IsNull(i) {
			b.AppendNull()
			continue
		}
		v, err := geom.SetSRID(values.Value(i), srid)
		if err != nil {
			return nil, err
		}
		b.Append(v)
	}
	return b.NewArray(), nil
}

// ReadFile is Read on the file at path.
func ReadFile(ctx context.Context, path string) (*frame.Frame, *Metadata, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer in.Close()
	return Read(ctx, in)
}
