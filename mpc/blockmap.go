package mpc

import (
	"slices"

	"github.com/notargets/DGMPC/fem"
	"github.com/notargets/DGMPC/graph"
	"github.com/pkg/errors"
)

// CreateBlockToFacetMap maps every local block of V (owned and ghost) to the
// given entities whose closure contains it. Each entity must have exactly
// one incident cell. Repeated entities are listed repeatedly.
func CreateBlockToFacetMap(V *fem.FunctionSpace, dim int, entities []int) (*graph.AdjacencyList, error) {
	var (
		m    = V.Mesh()
		top  = m.Topology()
		tdim = top.Dim()
	)
	if err := top.CreateConnectivity(dim, tdim); err != nil {
		return nil, err
	}
	if err := top.CreateConnectivity(tdim, dim); err != nil {
		return nil, err
	}
	var (
		eToC    = top.Connectivity(dim, tdim)
		cToE    = top.Connectivity(tdim, dim)
		dofmap  = V.DofMap()
		layout  = dofmap.ElementDofLayout()
		imap    = dofmap.IndexMap()
		numDofs = imap.SizeLocal() + imap.NumGhosts()

		numFacetsPerDof = make([]int, numDofs)
		localIndices    = make([]int, len(entities))
		cells           = make([]int, len(entities))
	)

	// Count how many entities each block relates to
	for i, e := range entities {
		if e < 0 || e >= eToC.NumNodes() {
			return nil, errors.Errorf("entity %d out of range", e)
		}
		cell := eToC.Links(e)
		if len(cell) != 1 {
			return nil, errors.Errorf("entity %d has %d incident cells, expected exactly one", e, len(cell))
		}
		cells[i] = cell[0]

		local := slices.Index(cToE.Links(cell[0]), e)
		if local < 0 {
			return nil, errors.Errorf("entity %d not found in the entities of cell %d", e, cell[0])
		}
		localIndices[i] = local
		cellBlocks := dofmap.CellDofs(cell[0])
		for _, j := range layout.EntityClosureDofs(dim, local) {
			numFacetsPerDof[cellBlocks[j]]++
		}
	}

	offsets := make([]int, numDofs+1)
	for i, n := range numFacetsPerDof {
		offsets[i+1] = offsets[i] + n
	}
	// Reuse the counts as write cursors
	for i := range numFacetsPerDof {
		numFacetsPerDof[i] = 0
	}

	data := make([]int, offsets[numDofs])
	for i, e := range entities {
		cellBlocks := dofmap.CellDofs(cells[i])
		for _, j := range layout.EntityClosureDofs(dim, localIndices[i]) {
			dof := cellBlocks[j]
			data[offsets[dof]+numFacetsPerDof[dof]] = e
			numFacetsPerDof[dof]++
		}
	}
	return graph.NewAdjacencyList(data, offsets), nil
}

// CreateBlockToCellMap returns, for each block, the first local cell (owned
// or ghost) whose dofs contain it.
func CreateBlockToCellMap(V *fem.FunctionSpace, blocks []int) ([]int, error) {
	var (
		dofmap    = V.DofMap()
		imap      = dofmap.IndexMap()
		numDofs   = imap.SizeLocal() + imap.NumGhosts()
		firstCell = make([]int, numDofs)
	)
	// Only the first cell per block is needed, so a single pass suffices
	for i := range firstCell {
		firstCell[i] = -1
	}
	for c := 0; c < dofmap.NumCells(); c++ {
		for _, dof := range dofmap.CellDofs(c) {
			if firstCell[dof] < 0 {
				firstCell[dof] = c
			}
		}
	}
	cells := make([]int, 0, len(blocks))
	for _, b := range blocks {
		if b < 0 || b >= numDofs {
			return nil, errors.Errorf("block %d out of range [0, %d)", b, numDofs)
		}
		if firstCell[b] < 0 {
			return nil, errors.Errorf("block %d is not in any local cell", b)
		}
		cells = append(cells, firstCell[b])
	}
	return cells, nil
}
