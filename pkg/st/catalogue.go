package st

import (
	"context"

	"geoexpr/pkg/arity"
	"geoexpr/pkg/geom"
	"geoexpr/pkg/native"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func fn[T any](name string, t arrow.DataType, nb newBuilder[T], k unaryKernel[T]) *Function {
	return &Function{Name: name, Type: t, eval: evalUnary(nb, k)}
}

func fn2[T any](name string, t arrow.DataType, nb newBuilder[T], k binaryKernel[T]) *Function {
	return &Function{
		Name:   name,
		Type:   t,
		Params: map[string]Param{"other": ParamGeometry},
		eval:   evalBinary(nb, k),
	}
}

// with declares keyword arguments on top of the ones f already has.
func (f *Function) with(params map[string]Param, defaults Kwargs) *Function {
	merged := make(map[string]Param, len(f.Params)+len(params))
	for k, p := range f.Params {
		merged[k] = p
	}
	for k, p := range params {
		merged[k] = p
	}
	f.Params, f.Defaults = merged, defaults
	return f
}

func (f *Function) validatedBy(v func(Kwargs) error) *Function {
	f.validate = v
	return f
}

var gridSize = map[string]Param{"grid_size": ParamOptionalFloat}

func init() {
	register(
		// Accessors.
		fn("geometry_type", uint32Type, uint32s, always(geometryType)),
		fn("dimensions", int32Type, int32s, always(dimensions)),
		fn("coordinate_dimension", uint32Type, uint32s, always(coordinateDimension)),
		fn("srid", int32Type, int32s, always(srid)),
		fn("set_srid", binaryType, binaries, always(setSRID)).
			with(map[string]Param{"srid": ParamInt}, nil),
		fn("x", float64Type, float64s, getX),
		fn("y", float64Type, float64s, getY),
		fn("z", float64Type, float64s, getZ),
		fn("m", float64Type, float64s, getM),
		fn("exterior_ring", binaryType, binaries, exteriorRing),
		fn("rings", arity.PartsType, parts, always(interiorRings)),
		fn("count_points", uint32Type, uint32s, always(countPoints)),
		fn("count_interior_rings", uint32Type, uint32s, always(countInteriorRings)),
		fn("count_geometries", uint32Type, uint32s, always(countGeometries)),
		fn("count_coordinates", uint32Type, uint32s, always(countCoordinates)),
		fn("get_point", binaryType, binaries, getPoint).
			with(map[string]Param{"index": ParamInt}, nil),
		fn("get_interior_ring", binaryType, binaries, getInteriorRing).
			with(map[string]Param{"index": ParamInt}, nil),
		fn("get_geometry", binaryType, binaries, getGeometry).
			with(map[string]Param{"index": ParamInt}, nil),
		fn("parts", arity.PartsType, parts, always(getParts)),
		fn("precision", float64Type, float64s, always(precision)),
		fn("bounds", arity.BoundsType, bounds, always(getBounds)),
		fn("has_z", boolType, bools, always(hasZ)),
		fn("has_m", boolType, bools, always(hasM)),
		fn("is_ccw", boolType, bools, always(isCCW)),
		fn("is_closed", boolType, bools, always(isClosed)),
		fn("is_empty", boolType, bools, always(isEmptyKernel)),
		coordinatesFunction(),

		// Casts.
		fn("cast", binaryType, binaries, always(castTo)).
			with(map[string]Param{"into": ParamString}, nil).
			validatedBy(validateCast),
		fn("multi", binaryType, binaries, always(multi)),

		// Serialization.
		fn("to_wkt", stringType, strs, always(toWKT)).
			with(wktParams, wktDefaults()).
			validatedBy(validateWKT("to_wkt")),
		fn("to_ewkt", stringType, strs, always(toEWKT)).
			with(wktParams, wktDefaults()).
			validatedBy(validateWKT("to_ewkt")),
		fn("to_wkb", binaryType, binaries, always(toWKB)).
			with(map[string]Param{
				"output_dimension": ParamInt,
				"include_srid":     ParamBool,
				"byte_order":       ParamInt,
			}, Kwargs{"output_dimension": 3, "include_srid": false, "byte_order": 1}).
			validatedBy(validateWKB),
		fn("to_geojson", stringType, strs, always(toGeoJSON)).
			with(map[string]Param{"indent": ParamOptionalInt}, Kwargs{"indent": nil}),
		fn("from_wkb", binaryType, binaries, always(fromWKB)),
		&Function{Name: "from_wkt", Type: binaryType, Input: stringType, eval: textual(native.ParseWKT)},
		&Function{Name: "from_geojson", Type: binaryType, Input: stringType, eval: textual(fromGeoJSON)},

		// Measurement.
		fn("area", float64Type, float64s, area),
		fn("length", float64Type, float64s, length),
		fn("minimum_clearance", float64Type, float64s, minimumClearance),
		fn2("distance", float64Type, float64s, distance),
		fn2("hausdorff_distance", float64Type, float64s, hausdorffDistance).
			with(map[string]Param{"densify": ParamOptionalFloat}, Kwargs{"densify": nil}),
		fn2("frechet_distance", float64Type, float64s, frechetDistance).
			with(map[string]Param{"densify": ParamOptionalFloat}, Kwargs{"densify": nil}),
		fn2("project", float64Type, float64s, project).
			with(map[string]Param{"normalized": ParamBool}, Kwargs{"normalized": false}),
		fn("is_ring", boolType, bools, isRing),
		fn("is_simple", boolType, bools, isSimple),
		fn("is_valid", boolType, bools, isValid),
		fn("is_valid_reason", stringType, strs, isValidReason),

		// Predicates.
		fn2("crosses", boolType, bools, crosses),
		fn2("contains", boolType, bools, contains),
		fn2("contains_properly", boolType, bools, containsProperly),
		fn2("covered_by", boolType, bools, coveredBy),
		fn2("covers", boolType, bools, covers),
		fn2("disjoint", boolType, bools, disjoint),
		fn2("dwithin", boolType, bools, dwithin).
			with(map[string]Param{"distance": ParamFloat}, nil),
		fn2("intersects", boolType, bools, intersects),
		fn2("overlaps", boolType, bools, overlaps),
		fn2("touches", boolType, bools, touches),
		fn2("within", boolType, bools, within),
		fn2("equals", boolType, bools, equals),
		fn2("equals_exact", boolType, bools, equalsExact).
			with(map[string]Param{"tolerance": ParamFloat}, Kwargs{"tolerance": 0.0}),
		fn2("equals_identical", boolType, bools, equalsIdentical),
		fn2("relate", stringType, strs, relate),
		fn2("relate_pattern", boolType, bools, relatePattern).
			with(map[string]Param{"pattern": ParamString}, nil),
		fn("intersects_xy", boolType, bools, intersectsXY).
			with(map[string]Param{"x": ParamFloat, "y": ParamFloat}, nil),
		fn("contains_xy", boolType, bools, containsXY).
			with(map[string]Param{"x": ParamFloat, "y": ParamFloat}, nil),

		// Overlay.
		fn2("difference", binaryType, binaries, difference).with(gridSize, Kwargs{"grid_size": nil}),
		fn2("intersection", binaryType, binaries, intersection).with(gridSize, Kwargs{"grid_size": nil}),
		fn2("symmetric_difference", binaryType, binaries, symmetricDifference).with(gridSize, Kwargs{"grid_size": nil}),
		fn2("union", binaryType, binaries, union).with(gridSize, Kwargs{"grid_size": nil}),
		fn("unary_union", binaryType, binaries, unaryUnion).with(gridSize, Kwargs{"grid_size": nil}),
		fn("coverage_union", binaryType, binaries, emptyAs(geom.Unknown, coverageUnion)),
		fn("disjoint_subset_union", binaryType, binaries, disjointSubsetUnion),

		// Constructive.
		fn("boundary", binaryType, binaries, boundary),
		fn("buffer", binaryType, binaries, buffer).
			with(map[string]Param{
				"distance":    ParamFloat,
				"quad_segs":   ParamInt,
				"cap_style":   ParamString,
				"join_style":  ParamString,
				"mitre_limit": ParamFloat,
			}, Kwargs{"quad_segs": 8, "cap_style": "round", "join_style": "round", "mitre_limit": 5.0}).
			validatedBy(validateBuffer),
		fn("offset_curve", binaryType, binaries, emptyAs(geom.LineString, offsetCurve)).
			with(map[string]Param{
				"distance":    ParamFloat,
				"quad_segs":   ParamInt,
				"join_style":  ParamString,
				"mitre_limit": ParamFloat,
			}, Kwargs{"quad_segs": 8, "join_style": "round", "mitre_limit": 5.0}).
			validatedBy(oneOf("offset_curve", "join_style", joinStyles)),
		fn("centroid", binaryType, binaries, centroid),
		fn("center", binaryType, binaries, center),
		fn("clip_by_rect", binaryType, binaries, clipByRect).
			with(map[string]Param{
				"xmin": ParamFloat,
				"ymin": ParamFloat,
				"xmax": ParamFloat,
				"ymax": ParamFloat,
			}, nil),
		fn("concave_hull", binaryType, binaries, concaveHull).
			with(map[string]Param{"ratio": ParamFloat, "allow_holes": ParamBool},
				Kwargs{"ratio": 0.0, "allow_holes": false}),
		fn("convex_hull", binaryType, binaries, convexHull),
		fn("segmentize", binaryType, binaries, segmentize).
			with(map[string]Param{"max_segment_length": ParamFloat}, nil),
		fn("envelope", binaryType, binaries, envelope),
		fn("extract_unique_points", binaryType, binaries, extractUniquePoints),
		fn("build_area", binaryType, binaries, buildArea),
		fn("make_valid", binaryType, binaries, makeValid),
		fn("normalize", binaryType, binaries, normalize),
		fn("node", binaryType, binaries, node),
		fn("point_on_surface", binaryType, binaries, pointOnSurface),
		fn("remove_repeated_points", binaryType, binaries, removeRepeatedPoints).
			with(map[string]Param{"tolerance": ParamFloat}, Kwargs{"tolerance": 0.0}),
		fn("reverse", binaryType, binaries, reverse),
		fn2("snap", binaryType, binaries, snap).
			with(map[string]Param{"tolerance": ParamFloat}, nil),
		fn("simplify", binaryType, binaries, simplify).
			with(map[string]Param{"tolerance": ParamFloat, "preserve_topology": ParamBool},
				Kwargs{"preserve_topology": true}),
		fn("minimum_rotated_rectangle", binaryType, binaries, minimumRotatedRectangle),
		fn("interpolate", binaryType, binaries, emptyAs(geom.Point, interpolate)).
			with(map[string]Param{"distance": ParamFloat, "normalized": ParamBool},
				Kwargs{"normalized": false}),
		fn("line_merge", binaryType, binaries, lineMerge).
			with(map[string]Param{"directed": ParamBool}, Kwargs{"directed": false}),
		fn2("shared_paths", binaryType, binaries, emptyAs2(geom.GeometryCollection, sharedPaths)),
		fn2("shortest_line", binaryType, binaries, shortestLine),
		fn("set_precision", binaryType, binaries, setPrecision).
			with(map[string]Param{"grid_size": ParamFloat, "mode": ParamString},
				Kwargs{"mode": "valid_output"}).
			validatedBy(oneOf("set_precision", "mode", precisionModes)),
		fn("force_2d", binaryType, binaries, forceTwoD),
		fn("force_3d", binaryType, binaries, forceThreeD).
			with(map[string]Param{"z": ParamFloat}, Kwargs{"z": 0.0}),
		fn("flip_coordinates", binaryType, binaries, flipCoordinates),
		fn("translate", binaryType, binaries, translate).
			with(map[string]Param{"x": ParamFloat, "y": ParamFloat, "z": ParamFloat},
				Kwargs{"x": 0.0, "y": 0.0, "z": 0.0}),

		// Reprojection.
		(&Function{Name: "to_srid", Type: binaryType, eval: toSRID}).
			with(map[string]Param{"srid": ParamInt}, nil),
	)
	register(affineFunctions()...)
	register(constructorFunctions()...)

	registerAgg(
		geometryAgg("voronoi_polygons", voronoiPolygons).
			with(map[string]Param{"tolerance": ParamFloat, "only_edges": ParamBool},
				Kwargs{"tolerance": 0.0, "only_edges": false}),
		geometryAgg("delaunay_triangles", delaunayTriangles).
			with(map[string]Param{"tolerance": ParamFloat, "only_edges": ParamBool},
				Kwargs{"tolerance": 0.0, "only_edges": false}),
		geometryAgg("polygonize", polygonize),
		geometryAgg("intersection_all", intersectionAll),
		geometryAgg("symmetric_difference_all", symmetricDifferenceAll),
		geometryAgg("union_all", unionAll),
		geometryAgg("coverage_union_all", coverageUnionAll),
		geometryAgg("geometrycollection", collectInto(geom.GeometryCollection)),
		geometryAgg("collect", collect),
		&Aggregate{Name: "total_bounds", Type: arity.BoundsType, Identity: nan4, reduce: totalBounds},
		&Aggregate{
			Name:     "multipoint",
			Type:     binaryType,
			Identity: geom.EmptyOf(geom.MultiPoint, 0),
			reduce:   collectInto(geom.MultiPoint),
		},
		&Aggregate{
			Name:     "multilinestring",
			Type:     binaryType,
			Identity: geom.EmptyOf(geom.MultiLineString, 0),
			reduce:   collectInto(geom.MultiLineString),
		},
		&Aggregate{
			Name:     "multipolygon",
			Type:     binaryType,
			Identity: geom.EmptyOf(geom.MultiPolygon, 0),
			reduce:   collectInto(geom.MultiPolygon),
		},
	)
}

// geometryAgg is an aggregate whose identity is an empty collection.
func geometryAgg(name string, reduce reduceFunc) *Aggregate {
	return &Aggregate{Name: name, Type: binaryType, Identity: emptyCollection, reduce: reduce}
}

func (a *Aggregate) with(params map[string]Param, defaults Kwargs) *Aggregate {
	a.Params, a.Defaults = params, defaults
	return a
}

var wktParams = map[string]Param{
	"rounding_precision": ParamOptionalInt,
	"output_dimension":   ParamInt,
	"trim":               ParamBool,
	"old_3d":             ParamBool,
}

func wktDefaults() Kwargs {
	return Kwargs{"rounding_precision": nil, "output_dimension": 3, "trim": true, "old_3d": false}
}

func validateWKT(op string) func(Kwargs) error {
	return func(kw Kwargs) error {
		if d := kw.int("output_dimension"); d < 2 || d > 4 {
			return ErrInvalidArgument.New(op, "output_dimension", "must be 2, 3 or 4")
		}
		return nil
	}
}

func validateWKB(kw Kwargs) error {
	if d := kw.int("output_dimension"); d < 2 || d > 4 {
		return ErrInvalidArgument.New("to_wkb", "output_dimension", "must be 2, 3 or 4")
	}
	if o := kw.int("byte_order"); o < -1 || o > 1 {
		return ErrInvalidArgument.New("to_wkb", "byte_order", "must be -1, 0 or 1")
	}
	return nil
}

// coordinatesFunction declares its output from output_dimension.
func coordinatesFunction() *Function {
	dims := func(kw Kwargs) int { return kw.int("output_dimension") }
	f := &Function{
		Name:     "coordinates",
		Type:     arity.CoordinatesType,
		Params:   map[string]Param{"output_dimension": ParamInt},
		Defaults: Kwargs{"output_dimension": 2},
		typeOf:   func(kw Kwargs) arrow.DataType { return arity.CoordinatesOf(dims(kw)) },
		validate: func(kw Kwargs) error {
			if d := dims(kw); d != 2 && d != 3 {
				return ErrInvalidArgument.New("coordinates", "output_dimension", "must be 2 or 3")
			}
			return nil
		},
	}
	f.eval = func(ctx context.Context, in *input) (arrow.Array, error) {
		nb := func(mem memory.Allocator) arity.Builder[[]float64] {
			return arity.NewCoordinates(mem, dims(in.kw))
		}
		return evalUnary(nb, always(coordinates))(ctx, in)
	}
	return f
}
