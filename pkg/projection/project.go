// Package projection reprojects geometry values with the DuckDB spatial
// extension. A Reprojector serves the to_srid expression once installed
// with st.SetReprojector.
package projection

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"text/template"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "projection")

var transformQuery = template.Must(template.New("transform").Parse(`
select
	idx,
	ST_AsWKB(ST_Transform(ST_GeomFromWKB(wkb), '{{.From}}', '{{.To}}', true))::BLOB as wkb
from {{.View}}
order by idx
`))

var inputSchema = arrow.NewSchema([]arrow.Field{
	{Name: "idx", Type: arrow.PrimitiveTypes.Int64},
	{Name: "wkb", Type: arrow.BinaryTypes.Binary},
}, nil)

// Options control how the spatial extension is made available.
type Options struct {
	// ExtensionDir overrides DuckDB's extension directory.
	ExtensionDir string
	// Install runs INSTALL spatial before loading it.
	Install bool
}

// Reprojector runs ST_Transform over Arrow views of the values.
type Reprojector struct {
	connector *duckdb.Connector
	db        *sql.DB
}

// New opens an in-memory DuckDB database with spatial loaded.
func New(ctx context.Context, opts Options) (*Reprojector, error) {
	c, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(c)

	var setup []string
	if opts.ExtensionDir != "" {
		setup = append(setup, fmt.Sprintf("SET extension_directory = '%s';", strings.ReplaceAll(opts.ExtensionDir, "'", "''")))
	}
	if opts.Install {
		setup = append(setup, "INSTALL spatial;")
	}
	setup = append(setup, "LOAD spatial;")

	if _, err := db.ExecContext(ctx, strings.Join(setup, " ")); err != nil {
		db.Close()
		c.Close()
		return nil, fmt.Errorf("failed to load spatial extension: %w", err)
	}

	return &Reprojector{connector: c, db: db}, nil
}

// Close releases the database.
func (r *Reprojector) Close() error {
	if err := r.db.Close(); err != nil {
		return err
	}
	return r.connector.Close()
}

// Transform reprojects values from one EPSG code to another. Input order
// is preserved and the results carry the target SRID.
func (r *Reprojector) Transform(ctx context.Context, values [][]byte, from, to int32) ([][]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	conn, err := r.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ar, err := duckdb.NewArrowFromConn(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow from duckdb: %w", err)
	}

	rec, err := inputRecord(values)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	rr, err := array.NewRecordReader(inputSchema, []arrow.RecordBatch{rec})
	if err != nil {
		return nil, err
	}
	defer rr.Release()

	view := "wkb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	release, err := ar.RegisterView(rr, view)
	if err != nil {
		return nil, fmt.Errorf("failed to register view: %w", err)
	}
	defer release()

	var buf bytes.Buffer
	err = transformQuery.Execute(&buf, map[string]string{
		"View": view,
		"From": fmt.Sprintf("EPSG:%d", from),
		"To":   fmt.Sprintf("EPSG:%d", to),
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{"from": from, "to": to, "rows": len(values)}).Debug("transforming")

	reader, err := ar.QueryContext(ctx, buf.String())
	if err != nil {
		return nil, fmt.Errorf("failed to transform from EPSG:%d to EPSG:%d: %w", from, to, err)
	}
	defer reader.Release()

	out := make([][]byte, 0, len(values))
	for reader.Next() {
		col, err := arity.Geometries(reader.RecordBatch().Column(1))
		if err != nil {
			return nil, err
		}
		for i := 0; i < col.Len(); i++ {
			b, err := native.Normalize(col.Value(i))
			if err != nil {
				return nil, err
			}
			if b, err = geom.SetSRID(b, to); err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}

	if len(out) != len(values) {
		return nil, fmt.Errorf("transform returned %d rows for %d values", len(out), len(values))
	}
	return out, nil
}

func inputRecord(values [][]byte) (arrow.RecordBatch, error) {
	b := array.NewRecordBuilder(memory.NewGoAllocator(), inputSchema)
	defer b.Release()

	idx := b.Field(0).(*array.Int64Builder)
	wkb := b.Field(1).(*array.BinaryBuilder)
	for i, v := range values {
		plain, err := geom.SetSRID(v, 0)
		if err != nil {
			return nil, err
		}
		idx.Append(int64(i))
		wkb.Append(plain)
	}
	return b.NewRecordBatch(), nil
}
