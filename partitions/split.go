package partitions

import (
	"fmt"
	"sort"

	"github.com/notargets/DGMPC/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// GhostMode selects which remote cells a rank holds ghost copies of
type GhostMode int

const (
	GhostNone         GhostMode = iota // Only owned cells
	GhostSharedVertex                  // Plus every cell sharing a vertex with an owned cell
)

// Split distributes a serial mesh into one LocalData per partition.
//
// Cells are numbered globally rank by rank, keeping the serial order inside
// a rank. A vertex is owned by the lowest rank owning one of its cells and
// vertices are numbered the same way as cells. Locally, owned entities come
// first and ghosts follow sorted by global index.
func Split(serial *mesh.SerialData, layout *PartitionLayout, mode GhostMode) ([]mesh.LocalData, error) {
	if layout.TotalElements != serial.NumCells() {
		return nil, fmt.Errorf("layout has %d elements, mesh has %d cells",
			layout.TotalElements, serial.NumCells())
	}
	var (
		nr          = layout.NumPartitions
		nv          = len(serial.Coords)
		cellGlobal  = make([]int64, serial.NumCells())
		vertOwner   = make([]int, nv)
		vertGlobal  = make([]int64, nv)
		vertToCells = make([][]int, nv)
	)

	var next int64
	for _, p := range layout.Partitions {
		for _, k := range p.Elements {
			cellGlobal[k] = next
			next++
		}
	}

	for v := range vertOwner {
		vertOwner[v] = nr
	}
	for k, cell := range serial.Cells {
		for _, v := range cell {
			if layout.EToP[k] < vertOwner[v] {
				vertOwner[v] = layout.EToP[k]
			}
			vertToCells[v] = append(vertToCells[v], k)
		}
	}
	ownedVerts := make([][]int, nr)
	for v, o := range vertOwner {
		if o == nr {
			// Orphan vertices go to rank 0
			o = 0
			vertOwner[v] = 0
		}
		ownedVerts[o] = append(ownedVerts[o], v)
	}
	next = 0
	for r := 0; r < nr; r++ {
		for _, v := range ownedVerts[r] {
			vertGlobal[v] = next
			next++
		}
	}

	parts := make([]mesh.LocalData, nr)
	for r, p := range layout.Partitions {
		// Ghost cells
		var ghostCells []int
		if mode == GhostSharedVertex {
			seen := make(map[int]bool)
			for _, k := range p.Elements {
				for _, v := range serial.Cells[k] {
					for _, n := range vertToCells[v] {
						if layout.EToP[n] != r && !seen[n] {
							seen[n] = true
							ghostCells = append(ghostCells, n)
						}
					}
				}
			}
			sort.Slice(ghostCells, func(i, j int) bool {
				return cellGlobal[ghostCells[i]] < cellGlobal[ghostCells[j]]
			})
		}
		cells := append(append([]int(nil), p.Elements...), ghostCells...)

		// Local vertices: owned in global order, then ghosts in global order
		var (
			inLocal = make(map[int]bool)
			ghostV  []int
		)
		for _, k := range cells {
			for _, v := range serial.Cells[k] {
				if !inLocal[v] {
					inLocal[v] = true
					if vertOwner[v] != r {
						ghostV = append(ghostV, v)
					}
				}
			}
		}
		sort.Slice(ghostV, func(i, j int) bool { return vertGlobal[ghostV[i]] < vertGlobal[ghostV[j]] })
		localVerts := append(append([]int(nil), ownedVerts[r]...), ghostV...)
		localIndex := make(map[int]int, len(localVerts))
		for l, v := range localVerts {
			localIndex[v] = l
		}

		d := mesh.LocalData{
			CellType:         serial.CellType,
			Cells:            make([][]int, len(cells)),
			NumOwnedCells:    p.NumElements,
			Coords:           make([]r3.Vec, len(localVerts)),
			NumOwnedVertices: len(ownedVerts[r]),
		}
		for i, k := range cells {
			c := make([]int, len(serial.Cells[k]))
			for j, v := range serial.Cells[k] {
				c[j] = localIndex[v]
			}
			d.Cells[i] = c
		}
		for _, k := range ghostCells {
			d.CellGhosts = append(d.CellGhosts, cellGlobal[k])
			d.CellGhostOwners = append(d.CellGhostOwners, layout.EToP[k])
		}
		for l, v := range localVerts {
			d.Coords[l] = serial.Coords[v]
		}
		for _, v := range ghostV {
			d.VertexGhosts = append(d.VertexGhosts, vertGlobal[v])
			d.VertexGhostOwners = append(d.VertexGhostOwners, vertOwner[v])
		}
		parts[r] = d
	}

	if err := ValidateOwnership(parts); err != nil {
		return nil, fmt.Errorf("split produced inconsistent ownership: %w", err)
	}
	return parts, nil
}

// ValidateOwnership verifies that if rank A ghosts an index owned by rank B,
// the index lies in B's contiguous owned range, for both vertices and cells.
func ValidateOwnership(parts []mesh.LocalData) error {
	check := func(kind string, owned func(d mesh.LocalData) int,
		ghosts func(d mesh.LocalData) ([]int64, []int)) error {

		offsets := make([]int64, len(parts)+1)
		for r, d := range parts {
			offsets[r+1] = offsets[r] + int64(owned(d))
		}
		for r, d := range parts {
			gs, os := ghosts(d)
			if len(gs) != len(os) {
				return fmt.Errorf("rank %d: %d %s ghosts but %d owners", r, len(gs), kind, len(os))
			}
			for i, g := range gs {
				o := os[i]
				if o < 0 || o >= len(parts) || o == r {
					return fmt.Errorf("rank %d: %s ghost %d has invalid owner %d", r, kind, g, o)
				}
				if g < offsets[o] || g >= offsets[o+1] {
					return fmt.Errorf("rank %d expects %s %d on rank %d, which owns [%d, %d)",
						r, kind, g, o, offsets[o], offsets[o+1])
				}
			}
		}
		return nil
	}
	if err := check("vertex",
		func(d mesh.LocalData) int { return d.NumOwnedVertices },
		func(d mesh.LocalData) ([]int64, []int) { return d.VertexGhosts, d.VertexGhostOwners }); err != nil {
		return err
	}
	return check("cell",
		func(d mesh.LocalData) int { return d.NumOwnedCells },
		func(d mesh.LocalData) ([]int64, []int) { return d.CellGhosts, d.CellGhostOwners })
}
