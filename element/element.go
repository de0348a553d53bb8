package element

import "fmt"

type Dimensionality uint8

const (
	D0 Dimensionality = iota // points
	D1                       // lines, edges
	D2                       // triangles, quadrilaterals
	D3                       // tetrahedra, hexahedra
)

// ElementGeometry identifies the shape of a cell
type ElementGeometry uint8

const (
	Tet ElementGeometry = iota
	Hex
	Prism
	Pyramid
	Tri
	Rectangle
	Line
)

func (g ElementGeometry) String() string {
	switch g {
	case Tet:
		return "tetrahedron"
	case Hex:
		return "hexahedron"
	case Prism:
		return "prism"
	case Pyramid:
		return "pyramid"
	case Tri:
		return "triangle"
	case Rectangle:
		return "quadrilateral"
	case Line:
		return "interval"
	}
	return fmt.Sprintf("ElementGeometry(%d)", uint8(g))
}

// Dimension returns the topological dimension of the shape
func (g ElementGeometry) Dimension() Dimensionality {
	switch g {
	case Line:
		return D1
	case Tri, Rectangle:
		return D2
	default:
		return D3
	}
}

// IsSimplex reports whether the shape is an interval, triangle or tetrahedron
func (g ElementGeometry) IsSimplex() bool {
	return g == Line || g == Tri || g == Tet
}

// Reference sub-entity -> reference vertex tables, indexed [dim][entity].
// Facet i is the facet opposite vertex i.
var (
	lineTopology = [][][]int{
		{{0}, {1}},
		{{0, 1}},
	}
	triTopology = [][][]int{
		{{0}, {1}, {2}},
		{{1, 2}, {0, 2}, {0, 1}},
		{{0, 1, 2}},
	}
	tetTopology = [][][]int{
		{{0}, {1}, {2}, {3}},
		{{2, 3}, {1, 3}, {1, 2}, {0, 3}, {0, 2}, {0, 1}},
		{{1, 2, 3}, {0, 2, 3}, {0, 1, 3}, {0, 1, 2}},
		{{0, 1, 2, 3}},
	}
)

// ReferenceTopology returns, for every dimension d <= Dimension(), the
// reference vertices of each sub-entity of dimension d.
func ReferenceTopology(g ElementGeometry) ([][][]int, error) {
	switch g {
	case Line:
		return lineTopology, nil
	case Tri:
		return triTopology, nil
	case Tet:
		return tetTopology, nil
	}
	return nil, fmt.Errorf("reference topology of %s cells is not supported", g)
}

// NumSubEntities returns how many entities of dimension dim a cell of shape g has
func NumSubEntities(g ElementGeometry, dim int) int {
	topo, err := ReferenceTopology(g)
	if err != nil || dim < 0 || dim >= len(topo) {
		return 0
	}
	return len(topo[dim])
}
