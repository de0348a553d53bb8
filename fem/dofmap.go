// Package fem ties a mesh to a Lagrange element: degree-of-freedom maps,
// function spaces, forms and functions.
package fem

import (
	"context"

	"github.com/notargets/DGMPC/element"
	"github.com/notargets/DGMPC/graph"
	"github.com/notargets/DGMPC/indexmap"
	"github.com/notargets/DGMPC/mesh"
	"github.com/pkg/errors"
)

// DofMap maps each local cell to its dof blocks. Each block holds bs scalar
// dofs; scalar dof d lives in block d/bs.
type DofMap struct {
	layout   *element.DofLayout
	cellDofs *graph.AdjacencyList
	indexMap *indexmap.IndexMap
	bs       int
}

// CreateDofMap collectively builds the dof map of a Lagrange layout. Degree
// 1 blocks are the mesh vertices. Degree 2 adds one block per edge and is
// only available on a single rank, where edges need no global numbering.
func CreateDofMap(ctx context.Context, m *mesh.Mesh, layout *element.DofLayout, bs int) (*DofMap, error) {
	if bs < 1 {
		return nil, errors.Errorf("invalid block size %d", bs)
	}
	var (
		top  = m.Topology()
		tdim = top.Dim()
	)
	switch layout.GetProperties().Order {
	case 1:
		return &DofMap{
			layout:   layout,
			cellDofs: top.Connectivity(tdim, 0),
			indexMap: top.IndexMap(0),
			bs:       bs,
		}, nil
	case 2:
		if m.Comm().Size() != 1 {
			return nil, errors.New("degree 2 dof maps are only supported on a single rank")
		}
		if err := top.CreateEntities(1); err != nil {
			return nil, err
		}
		var (
			nv      = top.NumEntities(0)
			ne      = top.NumEntities(1)
			c2v     = top.Connectivity(tdim, 0)
			c2e     = top.Connectivity(tdim, 1)
			perCell = layout.NumDofs()
			dofs    = make([]int, 0, c2v.NumNodes()*perCell)
			offsets = make([]int, c2v.NumNodes()+1)
		)
		for c := 0; c < c2v.NumNodes(); c++ {
			dofs = append(dofs, c2v.Links(c)...)
			for _, e := range c2e.Links(c) {
				dofs = append(dofs, nv+e)
			}
			offsets[c+1] = len(dofs)
		}
		im, err := indexmap.New(ctx, m.Comm(), nv+ne, nil, nil)
		if err != nil {
			return nil, err
		}
		return &DofMap{
			layout:   layout,
			cellDofs: graph.NewAdjacencyList(dofs, offsets),
			indexMap: im,
			bs:       bs,
		}, nil
	}
	return nil, errors.Errorf("no dof map for degree %d", layout.GetProperties().Order)
}

// CellDofs returns the dof blocks of local cell c in layout order.
func (d *DofMap) CellDofs(c int) []int { return d.cellDofs.Links(c) }

// NumCells returns the number of local cells covered by the map.
func (d *DofMap) NumCells() int { return d.cellDofs.NumNodes() }

// ElementDofLayout returns the reference layout of the dofs of one block.
func (d *DofMap) ElementDofLayout() *element.DofLayout { return d.layout }

// IndexMap returns the block index map.
func (d *DofMap) IndexMap() *indexmap.IndexMap { return d.indexMap }

// IndexMapBS returns the number of scalar dofs per block.
func (d *DofMap) IndexMapBS() int { return d.bs }

// WithIndexMap returns a copy of the dof map using im, which must keep the
// local numbering of the current map (as IndexMap.Extend does).
func (d *DofMap) WithIndexMap(im *indexmap.IndexMap) *DofMap {
	cp := *d
	cp.indexMap = im
	return &cp
}
