package st

import (
	"github.com/twpayne/go-geos"
)

// overlay picks the fixed-precision variant when grid_size is bound.
func overlay(exact func(x, y *geos.Geom) *geos.Geom, prec func(x, y *geos.Geom, gridSize float64) *geos.Geom) binaryKernel[[]byte] {
	return construct2(func(x, y *geos.Geom, kw Kwargs) *geos.Geom {
		if gridSize, ok := kw.optFloat("grid_size"); ok {
			return prec(x, y, gridSize)
		}
		return exact(x, y)
	})
}

var (
	difference          = overlay((*geos.Geom).Difference, (*geos.Geom).DifferencePrec)
	intersection        = overlay((*geos.Geom).Intersection, (*geos.Geom).IntersectionPrec)
	symmetricDifference = overlay((*geos.Geom).SymDifference, (*geos.Geom).SymDifferencePrec)
	union               = overlay((*geos.Geom).Union, (*geos.Geom).UnionPrec)

	unaryUnion = construct(func(g *geos.Geom, kw Kwargs) *geos.Geom {
		if gridSize, ok := kw.optFloat("grid_size"); ok {
			return g.UnaryUnionPrec(gridSize)
		}
		return g.UnaryUnion()
	})

	coverageUnion = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom {
		return g.CoverageUnion()
	})

	// disjointSubsetUnion unions each group of intersecting members.
	disjointSubsetUnion = construct(func(g *geos.Geom, _ Kwargs) *geos.Geom {
		return g.DisjointSubsetUnion()
	})
)
