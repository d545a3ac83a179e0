package st

import (
	"fmt"
	"math"

	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

// affine holds the linear part of a transform row by row, followed by the
// x, y and z offsets. Coordinates without Z only see the upper 2x2 block.
type affine [12]float64

func (m affine) apply(g gogeom.T) gogeom.T {
	if gc, ok := g.(*gogeom.GeometryCollection); ok {
		out := gogeom.NewGeometryCollection()
		for _, member := range gc.Geoms() {
			out.MustPush(m.apply(member))
		}
		return out.SetSRID(gc.SRID())
	}

	zi := g.Layout().ZIndex()
	return mapCoords(g, g.Layout(), func(src, dst []float64) {
		copy(dst, src)
		x, y := src[0], src[1]
		if zi < 0 {
			dst[0] = m[0]*x + m[1]*y + m[9]
			dst[1] = m[3]*x + m[4]*y + m[10]
			return
		}
		z := src[zi]
		dst[0] = m[0]*x + m[1]*y + m[2]*z + m[9]
		dst[1] = m[3]*x + m[4]*y + m[5]*z + m[10]
		dst[zi] = m[6]*x + m[7]*y + m[8]*z + m[11]
	})
}

// rotation turns by angle degrees counter-clockwise around (x0, y0).
func rotation(angle, x0, y0 float64) affine {
	sin, cos := math.Sincos(angle * math.Pi / 180)
	return affine{
		cos, -sin, 0,
		sin, cos, 0,
		0, 0, 1,
		x0 - x0*cos + y0*sin,
		y0 - x0*sin - y0*cos,
		0,
	}
}

func scaling(x, y, z float64, at [3]float64) affine {
	return affine{
		x, 0, 0,
		0, y, 0,
		0, 0, z,
		at[0] - at[0]*x,
		at[1] - at[1]*y,
		at[2] - at[2]*z,
	}
}

// skewing shears by the given angles in degrees.
func skewing(x, y, z float64, at [3]float64) affine {
	x, y, z = math.Tan(x*math.Pi/180), math.Tan(y*math.Pi/180), math.Tan(z*math.Pi/180)
	return affine{
		1, x, y,
		z, 1, x,
		y, z, 1,
		-at[1]*x - at[2]*y,
		-at[0]*z - at[2]*x,
		-at[0]*y - at[1]*z,
	}
}

// origin picks the fixed point of a transform for one value.
type origin func(v *geom.Value, kw Kwargs) ([3]float64, error)

// centroidOrigin uses the GEOS centroid. It has no Z, so z0 is zero.
func centroidOrigin(v *geom.Value, _ Kwargs) ([3]float64, error) {
	return native.Measure(v.Bytes(), func(g *geos.Geom) [3]float64 {
		c := g.Centroid()
		return [3]float64{c.X(), c.Y(), 0}
	})
}

func centerOrigin(v *geom.Value, _ Kwargs) ([3]float64, error) {
	g, err := v.Geometry()
	if err != nil {
		return [3]float64{}, err
	}
	b := extent(g)
	return [3]float64{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2, 0}, nil
}

func pointOrigin(v *geom.Value, kw Kwargs) ([3]float64, error) {
	at := [3]float64{kw.float("x0"), kw.float("y0"), 0}
	if z, ok := kw.optFloat("z0"); ok {
		at[2] = z
	}
	return at, nil
}

// transformAbout applies the transform built by m around the origin o.
// Empty values come back unchanged.
func transformAbout(o origin, m func(kw Kwargs, at [3]float64) affine) unaryKernel[[]byte] {
	return emptyAs(geom.Unknown, always(func(v *geom.Value, kw Kwargs) ([]byte, error) {
		at, err := o(v, kw)
		if err != nil {
			return nil, err
		}
		g, err := v.Geometry()
		if err != nil {
			return nil, err
		}
		return geom.EncodeWithSRID(m(kw, at).apply(g), v.SRID())
	}))
}

func rotateAbout(kw Kwargs, at [3]float64) affine {
	return rotation(kw.float("angle"), at[0], at[1])
}

func scaleAbout(kw Kwargs, at [3]float64) affine {
	return scaling(kw.float("x"), kw.float("y"), kw.float("z"), at)
}

func skewAbout(kw Kwargs, at [3]float64) affine {
	return skewing(kw.float("x"), kw.float("y"), kw.float("z"), at)
}

var affineTransform2D = reshape(func(g gogeom.T, kw Kwargs) gogeom.T {
	a := kw.floats("matrix")
	return affine{
		a[0], a[1], 0,
		a[2], a[3], 0,
		0, 0, 1,
		a[4], a[5], 0,
	}.apply(g)
})

var affineTransform3D = reshape(func(g gogeom.T, kw Kwargs) gogeom.T {
	var m affine
	copy(m[:], kw.floats("matrix"))
	return m.apply(g)
})

func matrixOf(op string, n int) func(Kwargs) error {
	return func(kw Kwargs) error {
		if len(kw.floats("matrix")) != n {
			return ErrInvalidArgument.New(op, "matrix", fmt.Sprintf("must hold %d values", n))
		}
		return nil
	}
}

var (
	angleParams  = map[string]Param{"angle": ParamFloat}
	factorParams = map[string]Param{"x": ParamFloat, "y": ParamFloat, "z": ParamFloat}
	pivotParams  = map[string]Param{"x0": ParamFloat, "y0": ParamFloat}
	pointParams  = merge(pivotParams, map[string]Param{"z0": ParamOptionalFloat})
)

func merge(ms ...map[string]Param) map[string]Param {
	out := make(map[string]Param)
	for _, m := range ms {
		for k, p := range m {
			out[k] = p
		}
	}
	return out
}

func affineFunctions() []*Function {
	scales := Kwargs{"x": 1.0, "y": 1.0, "z": 1.0}
	skews := Kwargs{"x": 0.0, "y": 0.0, "z": 0.0}
	withZ0 := func(kw Kwargs) Kwargs {
		out := Kwargs{"z0": nil}
		for k, v := range kw {
			out[k] = v
		}
		return out
	}

	return []*Function{
		fn("rotate_around_centroid", binaryType, binaries, transformAbout(centroidOrigin, rotateAbout)).
			with(angleParams, nil),
		fn("rotate_around_center", binaryType, binaries, transformAbout(centerOrigin, rotateAbout)).
			with(angleParams, nil),
		fn("rotate_around_point", binaryType, binaries, transformAbout(pointOrigin, rotateAbout)).
			with(merge(angleParams, pivotParams), nil),
		fn("scale_from_centroid", binaryType, binaries, transformAbout(centroidOrigin, scaleAbout)).
			with(factorParams, scales),
		fn("scale_from_center", binaryType, binaries, transformAbout(centerOrigin, scaleAbout)).
			with(factorParams, scales),
		fn("scale_from_point", binaryType, binaries, transformAbout(pointOrigin, scaleAbout)).
			with(merge(factorParams, pointParams), withZ0(scales)),
		fn("skew_from_centroid", binaryType, binaries, transformAbout(centroidOrigin, skewAbout)).
			with(factorParams, skews),
		fn("skew_from_center", binaryType, binaries, transformAbout(centerOrigin, skewAbout)).
			with(factorParams, skews),
		fn("skew_from_point", binaryType, binaries, transformAbout(pointOrigin, skewAbout)).
			with(merge(factorParams, pointParams), withZ0(skews)),
		fn("affine_transform_2d", binaryType, binaries, affineTransform2D).
			with(map[string]Param{"matrix": ParamFloats}, nil).
			validatedBy(matrixOf("affine_transform_2d", 6)),
		fn("affine_transform_3d", binaryType, binaries, affineTransform3D).
			with(map[string]Param{"matrix": ParamFloats}, nil).
			validatedBy(matrixOf("affine_transform_3d", 12)),
	}
}
