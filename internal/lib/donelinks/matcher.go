package donelinks

import (
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
)

// EdgesEqual reports whether two edges join the same endpoints in either direction.
// Comparison is exact; there is no tolerance and no collinearity test.
func EdgesEqual(e1, e2 geo.Edge) bool {
	if e1.A.Equal(e2.A) && e1.B.Equal(e2.B) {
		return true
	}
	if e1.A.Equal(e2.B) && e1.B.Equal(e2.A) {
		return true
	}
	return false
}

// ShapeContainsEdge reports whether edge equals one of the shape's boundary edges,
// including the closing edge of a polygon.
func ShapeContainsEdge(shape geo.Shape, edge geo.Edge) bool {
	pts := shape.Points
	for i := 0; i < len(pts)-1; i++ {
		if EdgesEqual(edge, geo.Edge{A: pts[i], B: pts[i+1]}) {
			return true
		}
	}

	if shape.Closed && len(pts) > 1 {
		if EdgesEqual(edge, geo.Edge{A: pts[len(pts)-1], B: pts[0]}) {
			return true
		}
	}

	return false
}

// FindMatchingShape reports whether any shape contains edge
func FindMatchingShape(shapes []geo.Shape, edge geo.Edge) bool {
	for _, shape := range shapes {
		if ShapeContainsEdge(shape, edge) {
			return true
		}
	}
	return false
}
