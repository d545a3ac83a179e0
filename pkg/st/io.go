package st

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

func wktOptions(kw Kwargs) []wkt.EncodeOption {
	if !kw.Has("rounding_precision") || !kw.bool("trim") {
		return nil
	}
	return []wkt.EncodeOption{wkt.EncodeOptionWithMaxDecimalDigits(kw.int("rounding_precision"))}
}

// wktNumber matches the ordinates go-geom writes, which never use exponents.
var wktNumber = regexp.MustCompile(`-?[0-9]+(\.[0-9]+)?`)

// untrimmed writes every ordinate of s with exactly digits decimals.
func untrimmed(s string, digits int) string {
	return wktNumber.ReplaceAllStringFunc(s, func(n string) string {
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return n
		}
		return strconv.FormatFloat(f, 'f', digits, 64)
	})
}

// old3D drops the Z and ZM tags, leaving the ordinate count to tell.
var old3D = strings.NewReplacer(" Z (", " (", " ZM (", " (", " Z EMPTY", " EMPTY", " ZM EMPTY", " EMPTY")

func toWKT(v *geom.Value, kw Kwargs) (string, error) {
	g, err := v.Geometry()
	if err != nil {
		return "", err
	}
	s, err := wkt.Marshal(reduceDims(g, kw.int("output_dimension")), wktOptions(kw)...)
	if err != nil {
		return "", err
	}
	if !kw.bool("trim") {
		digits := 16
		if kw.Has("rounding_precision") {
			digits = kw.int("rounding_precision")
		}
		s = untrimmed(s, digits)
	}
	if kw.bool("old_3d") {
		s = old3D.Replace(s)
	}
	return s, nil
}

// reduceDims keeps at most dims ordinates per coordinate. Z is kept
// before M.
func reduceDims(g gogeom.T, dims int) gogeom.T {
	switch {
	case dims <= 2:
		return force2D(g)
	case dims == 3 && g.Layout() == gogeom.XYZM:
		if gc, ok := g.(*gogeom.GeometryCollection); ok {
			out := gogeom.NewGeometryCollection()
			for _, m := range gc.Geoms() {
				out.MustPush(reduceDims(m, dims))
			}
			return out.SetSRID(gc.SRID())
		}
		return mapCoords(g, gogeom.XYZ, func(src, dst []float64) {
			copy(dst, src[:3])
		})
	}
	return g
}

func toEWKT(v *geom.Value, kw Kwargs) (string, error) {
	s, err := toWKT(v, kw)
	if err != nil || v.SRID() == 0 {
		return s, err
	}
	return fmt.Sprintf("SRID=%d;%s", v.SRID(), s), nil
}

func toWKB(v *geom.Value, kw Kwargs) ([]byte, error) {
	g, err := v.Geometry()
	if err != nil {
		return nil, err
	}
	g = reduceDims(g, kw.int("output_dimension"))

	var order geom.ByteOrder = binary.LittleEndian
	if kw.int("byte_order") == 0 {
		order = binary.BigEndian
	}

	out, err := geom.EncodeOrder(g, order)
	if err != nil {
		return nil, err
	}
	if kw.bool("include_srid") {
		return geom.SetSRID(out, v.SRID())
	}
	return geom.SetSRID(out, 0)
}

func toGeoJSON(v *geom.Value, kw Kwargs) (string, error) {
	g, err := v.Geometry()
	if err != nil {
		return "", err
	}
	doc, err := geojson.Encode(g)
	if err != nil {
		return "", err
	}

	var b []byte
	if kw.Has("indent") && kw.int("indent") >= 0 {
		b, err = json.MarshalIndent(doc, "", strings.Repeat(" ", kw.int("indent")))
	} else {
		b, err = json.Marshal(doc)
	}
	return string(b), err
}

func fromWKB(v *geom.Value, _ Kwargs) ([]byte, error) {
	return native.Normalize(v.Bytes())
}

// textual evaluates k over a String column.
func textual(k func(s string) ([]byte, error)) evalFunc {
	return func(_ context.Context, in *input) (arrow.Array, error) {
		strs, ok := in.self.(*array.String)
		if !ok {
			return nil, ErrInputType.New(in.op, arrow.BinaryTypes.String, in.self.DataType())
		}

		b := binaries(in.mem)
		defer b.Release()
		for i := 0; i < strs.Len(); i++ {
			if strs.IsNull(i) {
				b.AppendNull()
				continue
			}
			out, err := k(strs.Value(i))
			if err != nil {
				return nil, err
			}
			b.Append(out)
		}
		return b.NewArray(), nil
	}
}

func fromGeoJSON(s string) ([]byte, error) {
	var g gogeom.T
	if err := geojson.Unmarshal([]byte(s), &g); err != nil {
		return nil, err
	}
	return geom.Encode(g)
}
