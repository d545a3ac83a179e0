package geom

import (
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// Type is the ISO WKB geometry type code carried in a value's header.
type Type uint32

const (
	Unknown Type = iota
	Point
	LineString
	Polygon
	MultiPoint
	MultiLineString
	MultiPolygon
	GeometryCollection
	CircularString
	CompoundCurve
	CurvePolygon
	MultiCurve
	MultiSurface
	Curve
	Surface
	PolyhedralSurface
	TIN
	Triangle
)

var typeNames = [...]string{
	"Unknown",
	"Point",
	"LineString",
	"Polygon",
	"MultiPoint",
	"MultiLineString",
	"MultiPolygon",
	"GeometryCollection",
	"CircularString",
	"CompoundCurve",
	"CurvePolygon",
	"MultiCurve",
	"MultiSurface",
	"Curve",
	"Surface",
	"PolyhedralSurface",
	"TIN",
	"Triangle",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// IsCollection reports whether values of this type are made of sub-geometries.
func (t Type) IsCollection() bool {
	switch t {
	case MultiPoint, MultiLineString, MultiPolygon, GeometryCollection,
		CompoundCurve, MultiCurve, MultiSurface:
		return true
	}
	return false
}

// In reports whether t is one of ts.
func (t Type) In(ts ...Type) bool {
	for _, other := range ts {
		if t == other {
			return true
		}
	}
	return false
}

// TypeFromName resolves a type by its name, case sensitive.
func TypeFromName(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return Unknown, false
}

var (
	// ErrInvalidWKB is returned when a value does not start with a readable WKB header.
	ErrInvalidWKB = goerrors.NewKind("invalid WKB header: %s")
	// ErrUnsupportedType is returned for geometry types the codec cannot decode.
	ErrUnsupportedType = goerrors.NewKind("unsupported geometry type: %s")
	// ErrInvalidMember is returned when a value cannot be placed in a typed collection.
	ErrInvalidMember = goerrors.NewKind("cannot collect %s into %s")
)
