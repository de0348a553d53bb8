package mesh

import (
	"github.com/notargets/DGMPC/element"
	gocfdmesh "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReadMeshFile reads a tetrahedral or triangular mesh file (Gmsh, SU2 and
// the other formats understood by the gocfd readers).
func ReadMeshFile(path string) (*SerialData, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading mesh file %s", path)
	}
	return FromGocfd(msh)
}

// FromGocfd converts a gocfd mesh. All cells must have the same shape.
func FromGocfd(msh *gocfdmesh.Mesh) (*SerialData, error) {
	if msh.NumElements == 0 {
		return nil, errors.New("mesh has no elements")
	}
	var geom element.ElementGeometry
	switch n := len(msh.EtoV[0]); n {
	case 4:
		geom = element.Tet
	case 3:
		geom = element.Tri
	case 2:
		geom = element.Line
	default:
		return nil, errors.Errorf("cells with %d vertices are not supported", n)
	}

	s := &SerialData{
		CellType: geom,
		Coords:   make([]r3.Vec, len(msh.Vertices)),
		Cells:    make([][]int, msh.NumElements),
	}
	for i, v := range msh.Vertices {
		s.Coords[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}
	for k := 0; k < msh.NumElements; k++ {
		verts := msh.EtoV[k]
		if len(verts) != len(msh.EtoV[0]) {
			return nil, errors.Errorf("element %d has %d vertices, mixed meshes are not supported", k, len(verts))
		}
		cell := make([]int, len(verts))
		for i, v := range verts {
			cell[i] = int(v)
		}
		s.Cells[k] = cell
	}
	return s, nil
}
