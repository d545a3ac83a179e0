package st

import (
	"math"

	"geoexpr/pkg/geom"

	gogeom "github.com/twpayne/go-geom"
)

// mapCoords rebuilds g with layout, filling each destination coordinate
// from the matching source coordinate with fn.
func mapCoords(g gogeom.T, layout gogeom.Layout, fn func(src, dst []float64)) gogeom.T {
	if gc, ok := g.(*gogeom.GeometryCollection); ok {
		out := gogeom.NewGeometryCollection()
		for _, m := range gc.Geoms() {
			out.MustPush(mapCoords(m, layout, fn))
		}
		return out.SetSRID(gc.SRID())
	}

	from, to := g.Stride(), layout.Stride()
	flat := g.FlatCoords()
	out := make([]float64, 0, len(flat)/max(from, 1)*to)
	for i := 0; from > 0 && i+from <= len(flat); i += from {
		dst := make([]float64, to)
		fn(flat[i:i+from], dst)
		out = append(out, dst...)
	}
	scale := func(ends []int) []int {
		scaled := make([]int, len(ends))
		for i, e := range ends {
			scaled[i] = e / from * to
		}
		return scaled
	}

	switch g := g.(type) {
	case *gogeom.Point:
		if len(out) == 0 {
			return gogeom.NewPointEmpty(layout).SetSRID(g.SRID())
		}
		return gogeom.NewPointFlat(layout, out).SetSRID(g.SRID())
	case *gogeom.LineString:
		return gogeom.NewLineStringFlat(layout, out).SetSRID(g.SRID())
	case *gogeom.Polygon:
		return gogeom.NewPolygonFlat(layout, out, scale(g.Ends())).SetSRID(g.SRID())
	case *gogeom.MultiPoint:
		var opts []gogeom.NewMultiPointFlatOption
		if ends := g.Ends(); len(ends) > 0 {
			opts = append(opts, gogeom.NewMultiPointFlatOptionWithEnds(scale(ends)))
		}
		return gogeom.NewMultiPointFlat(layout, out, opts...).SetSRID(g.SRID())
	case *gogeom.MultiLineString:
		return gogeom.NewMultiLineStringFlat(layout, out, scale(g.Ends())).SetSRID(g.SRID())
	case *gogeom.MultiPolygon:
		endss := make([][]int, len(g.Endss()))
		for i, ends := range g.Endss() {
			endss[i] = scale(ends)
		}
		return gogeom.NewMultiPolygonFlat(layout, out, endss).SetSRID(g.SRID())
	}
	return g
}

// force2D drops Z and M from every coordinate of g.
func force2D(g gogeom.T) gogeom.T {
	if g.Layout() == gogeom.XY {
		return g
	}
	return mapCoords(g, gogeom.XY, func(src, dst []float64) {
		copy(dst, src[:2])
	})
}

// force3D gives every coordinate a Z, using z where the source has none.
func force3D(g gogeom.T, z float64) gogeom.T {
	zi := g.Layout().ZIndex()
	return mapCoords(g, gogeom.XYZ, func(src, dst []float64) {
		dst[0], dst[1], dst[2] = src[0], src[1], z
		if zi >= 0 && !math.IsNaN(src[zi]) {
			dst[2] = src[zi]
		}
	})
}

func flipXY(g gogeom.T) gogeom.T {
	return mapCoords(g, g.Layout(), func(src, dst []float64) {
		copy(dst, src)
		dst[0], dst[1] = src[1], src[0]
	})
}

func translateBy(g gogeom.T, dx, dy, dz float64) gogeom.T {
	zi := g.Layout().ZIndex()
	return mapCoords(g, g.Layout(), func(src, dst []float64) {
		copy(dst, src)
		dst[0] += dx
		dst[1] += dy
		if zi >= 0 {
			dst[zi] += dz
		}
	})
}

// uniquePoints collects the distinct coordinates of g, in first-seen
// order. Ordinates missing from a member read as NaN.
func uniquePoints(g gogeom.T) gogeom.T {
	var z, m bool
	walk(g, func(leaf gogeom.T) {
		if leaf.Stride() > 0 {
			z = z || leaf.Layout().ZIndex() >= 0
			m = m || leaf.Layout().MIndex() >= 0
		}
	})
	layout := gogeom.XY
	switch {
	case z && m:
		layout = gogeom.XYZM
	case z:
		layout = gogeom.XYZ
	case m:
		layout = gogeom.XYM
	}

	seen := make(map[[4]uint64]struct{})
	var flat []float64
	walk(g, func(leaf gogeom.T) {
		s := leaf.Stride()
		if s == 0 {
			return
		}
		zi, mi := leaf.Layout().ZIndex(), leaf.Layout().MIndex()
		coords := leaf.FlatCoords()
		for i := 0; i+s <= len(coords); i += s {
			c := coords[i : i+s]
			dst := []float64{c[0], c[1]}
			if z {
				dst = append(dst, ordinateAt(c, zi))
			}
			if m {
				dst = append(dst, ordinateAt(c, mi))
			}

			var key [4]uint64
			for j, o := range dst {
				key[j] = math.Float64bits(o)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			flat = append(flat, dst...)
		}
	})

	return gogeom.NewMultiPointFlat(layout, flat).SetSRID(g.SRID())
}

func ordinateAt(c []float64, i int) float64 {
	if i < 0 {
		return math.NaN()
	}
	return c[i]
}

// dropRepeated removes consecutive coordinates closer than tolerance to
// the last kept one. Rings stay closed and keep at least four points.
func dropRepeated(g gogeom.T, tolerance float64) gogeom.T {
	stride := g.Stride()
	line := func(flat []float64, closed bool) []float64 {
		n := len(flat) / stride
		if n < 2 {
			return flat
		}
		out := append([]float64(nil), flat[:stride]...)
		for i := 1; i < n; i++ {
			c := flat[i*stride : (i+1)*stride]
			last := out[len(out)-stride:]
			if math.Hypot(c[0]-last[0], c[1]-last[1]) <= tolerance && i != n-1 {
				continue
			}
			if i == n-1 && len(out) > stride && math.Hypot(c[0]-last[0], c[1]-last[1]) <= tolerance {
				out = out[:len(out)-stride]
			}
			out = append(out, c...)
		}
		if closed && len(out)/stride < 4 {
			return flat
		}
		if !closed && len(out)/stride < 2 {
			return flat
		}
		return out
	}
	rebuild := func(flat []float64, ends []int, closed bool) ([]float64, []int) {
		var out []float64
		newEnds := make([]int, len(ends))
		start := 0
		for i, end := range ends {
			out = append(out, line(flat[start:end], closed)...)
			newEnds[i] = len(out)
			start = end
		}
		return out, newEnds
	}

	switch g := g.(type) {
	case *gogeom.LineString:
		return gogeom.NewLineStringFlat(g.Layout(), line(g.FlatCoords(), false)).SetSRID(g.SRID())
	case *gogeom.Polygon:
		flat, ends := rebuild(g.FlatCoords(), g.Ends(), true)
		return gogeom.NewPolygonFlat(g.Layout(), flat, ends).SetSRID(g.SRID())
	case *gogeom.MultiLineString:
		flat, ends := rebuild(g.FlatCoords(), g.Ends(), false)
		return gogeom.NewMultiLineStringFlat(g.Layout(), flat, ends).SetSRID(g.SRID())
	case *gogeom.MultiPolygon:
		var flat []float64
		endss := make([][]int, len(g.Endss()))
		start := 0
		for i, ends := range g.Endss() {
			local := make([]int, len(ends))
			for j, e := range ends {
				local[j] = e - start
			}
			end := start
			if len(ends) > 0 {
				end = ends[len(ends)-1]
			}
			part, partEnds := rebuild(g.FlatCoords()[start:end], local, true)
			for j := range partEnds {
				partEnds[j] += len(flat)
			}
			flat = append(flat, part...)
			endss[i] = partEnds
			start = end
		}
		return gogeom.NewMultiPolygonFlat(g.Layout(), flat, endss).SetSRID(g.SRID())
	case *gogeom.GeometryCollection:
		out := gogeom.NewGeometryCollection()
		for _, m := range g.Geoms() {
			out.MustPush(dropRepeated(m, tolerance))
		}
		return out.SetSRID(g.SRID())
	}
	return g
}

// reshape decodes v, applies fn and encodes the result with v's SRID.
func reshape(fn func(g gogeom.T, kw Kwargs) gogeom.T) unaryKernel[[]byte] {
	return always(func(v *geom.Value, kw Kwargs) ([]byte, error) {
		g, err := v.Geometry()
		if err != nil {
			return nil, err
		}
		return geom.EncodeWithSRID(fn(g, kw), v.SRID())
	})
}
