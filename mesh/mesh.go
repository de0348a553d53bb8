// Package mesh holds one rank's partition of a distributed simplex mesh:
// vertex coordinates, cell connectivity, the index maps describing which
// vertices and cells are owned, and lazily built entity connectivity.
package mesh

import (
	"context"

	"github.com/notargets/DGMPC/comm"
	"github.com/notargets/DGMPC/element"
	"github.com/notargets/DGMPC/graph"
	"github.com/notargets/DGMPC/indexmap"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// LocalData is the input for one rank's partition. Owned vertices and cells
// come first and ghosts follow, in the order of the ghost arrays.
type LocalData struct {
	CellType element.ElementGeometry
	Cells    [][]int // local vertex indices per cell

	NumOwnedCells   int
	CellGhosts      []int64 // global cell index of each ghost cell
	CellGhostOwners []int

	Coords            []r3.Vec
	NumOwnedVertices  int
	VertexGhosts      []int64 // global vertex index of each ghost vertex
	VertexGhostOwners []int
}

// Mesh is one rank's view of a distributed mesh.
type Mesh struct {
	comm     *comm.Comm
	topology *Topology
	coords   []r3.Vec
}

// New collectively creates the vertex and cell index maps of every rank's
// partition and wraps them in a Mesh.
func New(ctx context.Context, c *comm.Comm, data LocalData) (*Mesh, error) {
	var nv = element.NumSubEntities(data.CellType, 0)
	if nv == 0 {
		return nil, errors.Errorf("unsupported cell type %s", data.CellType)
	}
	var (
		numCells = data.NumOwnedCells + len(data.CellGhosts)
		numVerts = data.NumOwnedVertices + len(data.VertexGhosts)
	)
	if numCells != len(data.Cells) {
		return nil, errors.Errorf("%d cells given, %d owned and %d ghosts declared",
			len(data.Cells), data.NumOwnedCells, len(data.CellGhosts))
	}
	if numVerts != len(data.Coords) {
		return nil, errors.Errorf("%d vertex coordinates given, %d owned and %d ghosts declared",
			len(data.Coords), data.NumOwnedVertices, len(data.VertexGhosts))
	}
	for k, cell := range data.Cells {
		if len(cell) != nv {
			return nil, errors.Errorf("cell %d has %d vertices, a %s has %d", k, len(cell), data.CellType, nv)
		}
		for _, v := range cell {
			if v < 0 || v >= numVerts {
				return nil, errors.Errorf("cell %d references vertex %d, mesh has %d", k, v, numVerts)
			}
		}
	}

	vmap, err := indexmap.New(ctx, c, data.NumOwnedVertices, data.VertexGhosts, data.VertexGhostOwners)
	if err != nil {
		return nil, errors.WithMessage(err, "creating vertex index map")
	}
	cmap, err := indexmap.New(ctx, c, data.NumOwnedCells, data.CellGhosts, data.CellGhostOwners)
	if err != nil {
		return nil, errors.WithMessage(err, "creating cell index map")
	}

	tdim := int(data.CellType.Dimension())
	t := &Topology{
		dim:       tdim,
		cellType:  data.CellType,
		indexMaps: make([]*indexmap.IndexMap, tdim+1),
		counts:    make([]int, tdim+1),
		conn:      make([][]*graph.AdjacencyList, tdim+1),
	}
	for d := range t.conn {
		t.conn[d] = make([]*graph.AdjacencyList, tdim+1)
		t.counts[d] = -1
	}
	t.indexMaps[0], t.counts[0] = vmap, numVerts
	t.indexMaps[tdim], t.counts[tdim] = cmap, numCells
	t.conn[tdim][0] = graph.FromLists(data.Cells)

	log.WithFields(log.Fields{
		"rank":     c.Rank(),
		"cellType": data.CellType,
		"cells":    numCells,
		"vertices": numVerts,
	}).Debug("created mesh")

	return &Mesh{
		comm:     c,
		topology: t,
		coords:   append([]r3.Vec(nil), data.Coords...),
	}, nil
}

// Comm returns the communicator the mesh is distributed over.
func (m *Mesh) Comm() *comm.Comm { return m.comm }

// Topology returns the mesh topology.
func (m *Mesh) Topology() *Topology { return m.topology }

// Coords returns the local vertex coordinates.
func (m *Mesh) Coords() []r3.Vec { return m.coords }

// NumCells returns the number of local cells, ghosts included.
func (m *Mesh) NumCells() int { return m.topology.counts[m.topology.dim] }

// NumOwnedCells returns the number of cells owned by the caller.
func (m *Mesh) NumOwnedCells() int { return m.topology.IndexMap(m.topology.dim).SizeLocal() }

// EntityVertices returns the local vertices of entity e of dimension dim.
// Entities of dimension dim must have been created.
func (m *Mesh) EntityVertices(dim, e int) []int {
	if dim == 0 {
		return []int{e}
	}
	return m.topology.conn[dim][0].Links(e)
}
