package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/DGMPC/element"
	"github.com/notargets/DGMPC/graph"
	"github.com/notargets/DGMPC/indexmap"
	"github.com/pkg/errors"
)

// Topology holds the entities of each dimension and the connectivity
// between them. Vertices and cells are distributed; entities of
// intermediate dimension are numbered locally in order of first appearance
// when walking the cells.
type Topology struct {
	dim       int
	cellType  element.ElementGeometry
	indexMaps []*indexmap.IndexMap
	counts    []int // entities per dimension, -1 until created
	conn      [][]*graph.AdjacencyList
}

// Dim returns the topological dimension.
func (t *Topology) Dim() int { return t.dim }

// CellType returns the shape of the cells.
func (t *Topology) CellType() element.ElementGeometry { return t.cellType }

// IndexMap returns the index map of the entities of dimension dim, or nil
// for dimensions that are only numbered locally.
func (t *Topology) IndexMap(dim int) *indexmap.IndexMap { return t.indexMaps[dim] }

// NumEntities returns the number of local entities of dimension dim, or -1
// if they have not been created.
func (t *Topology) NumEntities(dim int) int { return t.counts[dim] }

// Connectivity returns the dim0 -> dim1 connectivity, or nil if it has not
// been created.
func (t *Topology) Connectivity(d0, d1 int) *graph.AdjacencyList {
	if d0 < 0 || d1 < 0 || d0 > t.dim || d1 > t.dim {
		return nil
	}
	return t.conn[d0][d1]
}

// CreateEntities numbers the entities of dimension dim and builds the
// cell -> entity and entity -> vertex connectivities. Cell -> entity links
// follow the reference sub-entity ordering.
func (t *Topology) CreateEntities(dim int) error {
	if dim < 0 || dim > t.dim {
		return errors.Errorf("entity dimension %d out of range for a %dD mesh", dim, t.dim)
	}
	if t.counts[dim] >= 0 {
		return nil
	}
	ref, err := element.ReferenceTopology(t.cellType)
	if err != nil {
		return err
	}
	var (
		cells      = t.conn[t.dim][0]
		numCells   = cells.NumNodes()
		perCell    = len(ref[dim])
		cellToEnt  = make([]int, numCells*perCell)
		entVerts   [][]int
		numbering  = make(map[string]int)
		cellOffset = make([]int, numCells+1)
	)
	for c := 0; c < numCells; c++ {
		verts := cells.Links(c)
		for le, local := range ref[dim] {
			ev := make([]int, len(local))
			for i, lv := range local {
				ev[i] = verts[lv]
			}
			sort.Ints(ev)
			key := fmt.Sprint(ev)
			e, ok := numbering[key]
			if !ok {
				e = len(entVerts)
				numbering[key] = e
				entVerts = append(entVerts, ev)
			}
			cellToEnt[c*perCell+le] = e
		}
		cellOffset[c+1] = cellOffset[c] + perCell
	}
	t.counts[dim] = len(entVerts)
	t.conn[t.dim][dim] = graph.NewAdjacencyList(cellToEnt, cellOffset)
	t.conn[dim][0] = graph.FromLists(entVerts)
	return nil
}

// CreateConnectivity builds the d0 -> d1 connectivity, creating entities as
// needed. Supported pairs are those involving cells or vertices.
func (t *Topology) CreateConnectivity(d0, d1 int) error {
	if d0 < 0 || d1 < 0 || d0 > t.dim || d1 > t.dim {
		return errors.Errorf("connectivity %d -> %d out of range for a %dD mesh", d0, d1, t.dim)
	}
	if t.conn[d0][d1] != nil {
		return nil
	}
	for _, d := range []int{d0, d1} {
		if err := t.CreateEntities(d); err != nil {
			return err
		}
	}
	if t.conn[d0][d1] != nil {
		return nil
	}
	switch {
	case d0 == d1:
		n := t.counts[d0]
		ids := make([]int, n)
		offsets := make([]int, n+1)
		for i := range ids {
			ids[i] = i
			offsets[i+1] = i + 1
		}
		t.conn[d0][d1] = graph.NewAdjacencyList(ids, offsets)
	case d0 == t.dim || d1 == 0:
		// created with the entities
	case d1 == t.dim || d0 == 0:
		t.conn[d0][d1] = t.conn[d1][d0].Transpose(t.counts[d0])
	default:
		return errors.Errorf("connectivity %d -> %d is not supported", d0, d1)
	}
	return nil
}
