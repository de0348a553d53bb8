package fem

import (
	"context"

	"github.com/notargets/DGMPC/element"
	"github.com/notargets/DGMPC/indexmap"
	"github.com/notargets/DGMPC/la"
	"github.com/notargets/DGMPC/mesh"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// FunctionSpace is a Lagrange space on a mesh
type FunctionSpace struct {
	mesh    *mesh.Mesh
	element *element.DofLayout
	dofmap  *DofMap
}

// CreateFunctionSpace collectively creates a Lagrange space of the given
// degree with bs components per dof block.
func CreateFunctionSpace(ctx context.Context, m *mesh.Mesh, degree, bs int) (*FunctionSpace, error) {
	layout, err := element.NewLagrange(m.Topology().CellType(), degree)
	if err != nil {
		return nil, err
	}
	dm, err := CreateDofMap(ctx, m, layout, bs)
	if err != nil {
		return nil, errors.WithMessage(err, "creating dof map")
	}
	return &FunctionSpace{mesh: m, element: layout, dofmap: dm}, nil
}

// Mesh returns the mesh of the space.
func (s *FunctionSpace) Mesh() *mesh.Mesh { return s.mesh }

// Element returns the reference dof layout.
func (s *FunctionSpace) Element() *element.DofLayout { return s.element }

// DofMap returns the dof map.
func (s *FunctionSpace) DofMap() *DofMap { return s.dofmap }

// WithIndexMap returns a space whose dof map uses im.
func (s *FunctionSpace) WithIndexMap(im *indexmap.IndexMap) *FunctionSpace {
	return &FunctionSpace{mesh: s.mesh, element: s.element, dofmap: s.dofmap.WithIndexMap(im)}
}

// TabulateDofCoordinates returns the coordinates of every local dof block:
// vertices for degree 1 blocks, edge midpoints for degree 2 edge blocks.
// Blocks outside every local cell, such as ghosts added by Extend, are left
// at the origin.
func TabulateDofCoordinates(V *FunctionSpace) []r3.Vec {
	var (
		dm     = V.dofmap
		im     = dm.IndexMap()
		x      = make([]r3.Vec, im.SizeLocal()+im.NumGhosts())
		coords = V.mesh.Coords()
		c2v    = V.mesh.Topology().Connectivity(V.mesh.Topology().Dim(), 0)
		layout = V.element
	)
	for c := 0; c < dm.NumCells(); c++ {
		var (
			verts = c2v.Links(c)
			dofs  = dm.CellDofs(c)
		)
		for lv, v := range verts {
			x[dofs[layout.EntityDofs(0, lv)[0]]] = coords[v]
		}
		if layout.GetProperties().Order < 2 {
			continue
		}
		ref, _ := element.ReferenceTopology(V.mesh.Topology().CellType())
		for le, ev := range ref[1] {
			mid := r3.Scale(0.5, r3.Add(coords[verts[ev[0]]], coords[verts[ev[1]]]))
			x[dofs[layout.EntityDofs(1, le)[0]]] = mid
		}
	}
	return x
}

// LocateDofsGeometrical returns, in ascending order, the local dof blocks
// whose coordinates satisfy marker.
func LocateDofsGeometrical(V *FunctionSpace, marker func(r3.Vec) bool) []int {
	var out []int
	for b, x := range TabulateDofCoordinates(V) {
		if marker(x) {
			out = append(out, b)
		}
	}
	return out
}

// Function is a finite element function: a ghosted coefficient vector on a space.
type Function struct {
	space *FunctionSpace
	x     *la.Vector
}

// NewFunction creates the zero function on V.
func NewFunction(V *FunctionSpace) *Function {
	return &Function{space: V, x: la.NewVector(V.dofmap.IndexMap(), V.dofmap.IndexMapBS())}
}

// FunctionSpace returns the space of f.
func (f *Function) FunctionSpace() *FunctionSpace { return f.space }

// X returns the coefficient vector.
func (f *Function) X() *la.Vector { return f.x }
