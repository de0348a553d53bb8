package mesh

import (
	"github.com/notargets/DGMPC/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// SerialData is a complete, undistributed mesh.
type SerialData struct {
	CellType element.ElementGeometry
	Coords   []r3.Vec
	Cells    [][]int
}

// NumCells returns the number of cells
func (s *SerialData) NumCells() int { return len(s.Cells) }

// Local returns the partition of a single-rank run: everything is owned.
func (s *SerialData) Local() LocalData {
	cells := make([][]int, len(s.Cells))
	for k, c := range s.Cells {
		cells[k] = append([]int(nil), c...)
	}
	return LocalData{
		CellType:         s.CellType,
		Cells:            cells,
		NumOwnedCells:    len(cells),
		Coords:           append([]r3.Vec(nil), s.Coords...),
		NumOwnedVertices: len(s.Coords),
	}
}

// UnitInterval divides [0, 1] into n intervals.
func UnitInterval(n int) *SerialData {
	s := &SerialData{CellType: element.Line}
	for i := 0; i <= n; i++ {
		s.Coords = append(s.Coords, r3.Vec{X: float64(i) / float64(n)})
	}
	for i := 0; i < n; i++ {
		s.Cells = append(s.Cells, []int{i, i + 1})
	}
	return s
}

// UnitSquare divides [0, 1]^2 into nx*ny squares, each split into two
// triangles along the diagonal from (0,0) to (1,1).
func UnitSquare(nx, ny int) *SerialData {
	s := &SerialData{CellType: element.Tri}
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			s.Coords = append(s.Coords, r3.Vec{X: float64(i) / float64(nx), Y: float64(j) / float64(ny)})
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v0 := j*(nx+1) + i
			v1, v2, v3 := v0+1, v0+nx+1, v0+nx+2
			s.Cells = append(s.Cells, []int{v0, v1, v3}, []int{v0, v2, v3})
		}
	}
	return s
}

// UnitCube divides [0, 1]^3 into nx*ny*nz cubes of six tetrahedra each.
func UnitCube(nx, ny, nz int) *SerialData {
	s := &SerialData{CellType: element.Tet}
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				s.Coords = append(s.Coords, r3.Vec{
					X: float64(i) / float64(nx),
					Y: float64(j) / float64(ny),
					Z: float64(k) / float64(nz),
				})
			}
		}
	}
	var (
		sxy = (nx + 1) * (ny + 1)
		sx  = nx + 1
	)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				v0 := k*sxy + j*sx + i
				v1 := v0 + 1
				v2 := v0 + sx
				v3 := v1 + sx
				v4, v5, v6, v7 := v0+sxy, v1+sxy, v2+sxy, v3+sxy
				s.Cells = append(s.Cells,
					[]int{v0, v1, v3, v7},
					[]int{v0, v1, v7, v5},
					[]int{v0, v5, v7, v4},
					[]int{v0, v3, v2, v7},
					[]int{v0, v6, v4, v7},
					[]int{v0, v2, v6, v7},
				)
			}
		}
	}
	return s
}
