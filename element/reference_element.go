package element

import (
	"fmt"
	"sort"
)

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name       string          // Full descriptive name (e.g., "Lagrange triangle degree 2")
	ShortName  string          // Abbreviated name (e.g., "P2Tri")
	Type       ElementGeometry // Cell shape
	Order      int             // Polynomial degree
	Np         int             // Dofs per cell (per block)
	NVp        int             // Number of vertex dofs
	NEp        int             // Dofs per edge (interior of the edge)
	NFaces     int             // Number of facets of the cell
	Dimensions Dimensionality  // Topological dimension
}

// DofLayout describes how the dofs of one block are attached to the
// sub-entities of the reference cell.
type DofLayout struct {
	props ElementProperties
	// [dim][entity] -> local dofs located on the entity interior
	entityDofs [][][]int
	// [dim][entity] -> local dofs on the entity closure
	closureDofs [][][]int
}

// NewLagrange builds the dof layout of a continuous Lagrange element of the
// given degree. Dofs are numbered vertex dofs first, then one dof per edge
// for degree 2, following the reference edge ordering.
func NewLagrange(g ElementGeometry, degree int) (*DofLayout, error) {
	topo, err := ReferenceTopology(g)
	if err != nil {
		return nil, err
	}
	if degree < 1 || degree > 2 {
		return nil, fmt.Errorf("Lagrange degree %d is not supported, use 1 or 2", degree)
	}
	tdim := len(topo) - 1

	entityDofs := make([][][]int, tdim+1)
	for d := range entityDofs {
		entityDofs[d] = make([][]int, len(topo[d]))
	}
	np := 0
	for v := range topo[0] {
		entityDofs[0][v] = []int{np}
		np++
	}
	nep := 0
	if degree == 2 {
		nep = 1
		for e := range topo[1] {
			entityDofs[1][e] = []int{np}
			np++
		}
	}

	l := &DofLayout{
		props: ElementProperties{
			Name:       fmt.Sprintf("Lagrange %s degree %d", g, degree),
			ShortName:  fmt.Sprintf("P%d%s", degree, shortShape(g)),
			Type:       g,
			Order:      degree,
			Np:         np,
			NVp:        len(topo[0]),
			NEp:        nep,
			NFaces:     len(topo[tdim-1]),
			Dimensions: g.Dimension(),
		},
		entityDofs: entityDofs,
	}
	l.closureDofs = closure(topo, entityDofs)
	return l, nil
}

func shortShape(g ElementGeometry) string {
	switch g {
	case Line:
		return "Line"
	case Tri:
		return "Tri"
	case Tet:
		return "Tet"
	}
	return g.String()
}

// closure collects, for each entity, the dofs of every sub-entity whose
// vertices are a subset of the entity's vertices.
func closure(topo [][][]int, entityDofs [][][]int) [][][]int {
	out := make([][][]int, len(topo))
	for d := range topo {
		out[d] = make([][]int, len(topo[d]))
		for e, verts := range topo[d] {
			var dofs []int
			for sd := 0; sd <= d; sd++ {
				for se, sverts := range topo[sd] {
					if subset(sverts, verts) {
						dofs = append(dofs, entityDofs[sd][se]...)
					}
				}
			}
			sort.Ints(dofs)
			out[d][e] = dofs
		}
	}
	return out
}

func subset(a, b []int) bool {
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// GetProperties returns element metadata
func (l *DofLayout) GetProperties() ElementProperties { return l.props }

// NumDofs returns the number of dofs per cell per block
func (l *DofLayout) NumDofs() int { return l.props.Np }

// EntityDofs returns the local dofs on the interior of entity e of dimension dim
func (l *DofLayout) EntityDofs(dim, e int) []int { return l.entityDofs[dim][e] }

// EntityClosureDofs returns the local dofs on the closure of entity e of dimension dim
func (l *DofLayout) EntityClosureDofs(dim, e int) []int { return l.closureDofs[dim][e] }
