package mesh

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/notargets/DGMPC/comm"
	"github.com/notargets/DGMPC/element"
	gocfdmesh "github.com/notargets/gocfd/DG3D/mesh"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func serialMesh(t *testing.T, s *SerialData, fn func(m *Mesh)) {
	t.Helper()
	err := comm.Run(context.Background(), 1, func(ctx context.Context, c *comm.Comm) error {
		m, err := New(ctx, c, s.Local())
		if err != nil {
			return err
		}
		fn(m)
		return nil
	})
	require.NoError(t, err)
}

func TestUnitSquareTopology(t *testing.T) {
	serialMesh(t, UnitSquare(2, 1), func(m *Mesh) {
		top := m.Topology()
		assert.Equal(t, 2, top.Dim())
		assert.Equal(t, element.Tri, top.CellType())
		assert.Equal(t, 4, m.NumCells())
		assert.Equal(t, 4, m.NumOwnedCells())
		assert.Equal(t, 6, top.NumEntities(0))
		assert.Equal(t, -1, top.NumEntities(1))

		require.NoError(t, top.CreateConnectivity(1, 2))
		assert.Equal(t, 9, top.NumEntities(1))
		f2c := top.Connectivity(1, 2)
		exterior := 0
		for f := 0; f < f2c.NumNodes(); f++ {
			n := f2c.NumLinks(f)
			assert.True(t, n == 1 || n == 2)
			if n == 1 {
				exterior++
			}
		}
		assert.Equal(t, 6, exterior)

		// Cell -> facet links follow the reference ordering: facet i avoids vertex i
		c2f := top.Connectivity(2, 1)
		c2v := top.Connectivity(2, 0)
		for c := 0; c < m.NumCells(); c++ {
			for i, f := range c2f.Links(c) {
				assert.NotContains(t, m.EntityVertices(1, f), c2v.Links(c)[i])
			}
		}
	})
}

func TestUnitCubeEntities(t *testing.T) {
	serialMesh(t, UnitCube(1, 1, 1), func(m *Mesh) {
		top := m.Topology()
		require.NoError(t, top.CreateEntities(2))
		require.NoError(t, top.CreateEntities(1))
		assert.Equal(t, 6, m.NumCells())
		assert.Equal(t, 18, top.NumEntities(2))
		assert.Equal(t, 19, top.NumEntities(1))

		// Rebuilding is a no-op
		before := top.Connectivity(3, 2)
		require.NoError(t, top.CreateEntities(2))
		assert.Same(t, before, top.Connectivity(3, 2))

		require.NoError(t, top.CreateConnectivity(0, 3))
		assert.Equal(t, 6, top.Connectivity(0, 3).NumLinks(0))
		assert.Error(t, top.CreateConnectivity(1, 2))
		assert.Error(t, top.CreateEntities(4))
	})
}

func TestLocateAndNormals(t *testing.T) {
	serialMesh(t, UnitSquare(2, 2), func(m *Mesh) {
		left, err := LocateEntities(m, 1, func(x r3.Vec) bool { return math.Abs(x.X) < 1e-12 })
		require.NoError(t, err)
		assert.Len(t, left, 2)

		normals, err := CellNormals(m, 1, left)
		require.NoError(t, err)
		for _, n := range normals {
			assert.InDelta(t, 1, math.Abs(n.X), 1e-12)
			assert.InDelta(t, 0, n.Y, 1e-12)
		}

		_, err = CellNormals(m, 0, []int{0})
		assert.Error(t, err)
	})

	serialMesh(t, UnitCube(1, 1, 1), func(m *Mesh) {
		bottom, err := LocateEntities(m, 2, func(x r3.Vec) bool { return math.Abs(x.Z) < 1e-12 })
		require.NoError(t, err)
		assert.Len(t, bottom, 2)
		normals, err := CellNormals(m, 2, bottom)
		require.NoError(t, err)
		for _, n := range normals {
			assert.InDelta(t, 1, math.Abs(n.Z), 1e-12)
		}
	})
}

func TestDegenerateNormal(t *testing.T) {
	s := &SerialData{
		CellType: element.Tri,
		Coords:   []r3.Vec{{}, {}, {X: 1}},
		Cells:    [][]int{{0, 1, 2}},
	}
	serialMesh(t, s, func(m *Mesh) {
		require.NoError(t, m.Topology().CreateEntities(1))
		// Facet 2 joins the two coincident vertices
		f := m.Topology().Connectivity(2, 1).Links(0)[2]
		normals, err := CellNormals(m, 1, []int{f})
		require.NoError(t, err)
		assert.Equal(t, r3.Vec{}, normals[0])
	})
}

func TestMeshTags(t *testing.T) {
	serialMesh(t, UnitInterval(4), func(m *Mesh) {
		tags, err := NewMeshTags(m, 0, []int{4, 0, 2}, []int{7, 3, 7})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 4}, tags.Indices())
		assert.Equal(t, []int{3, 7, 7}, tags.Values())
		assert.Equal(t, []int{2, 4}, tags.Find(7))
		assert.Empty(t, tags.Find(1))
		assert.Same(t, m, tags.Mesh())

		_, err = NewMeshTags(m, 0, []int{1}, nil)
		assert.Error(t, err)
	})
}

func TestNewRejectsBadData(t *testing.T) {
	bad := UnitInterval(2).Local()
	bad.Cells[0] = []int{0, 9}
	err := comm.Run(context.Background(), 1, func(ctx context.Context, c *comm.Comm) error {
		_, err := New(ctx, c, bad)
		return err
	})
	assert.Error(t, err)
}

func TestReadMeshFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.msh")
	_, err := ReadMeshFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.NotEqual(t, err, errors.Cause(err))
}

func TestFromGocfd(t *testing.T) {
	msh := &gocfdmesh.Mesh{
		Vertices:    [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		EtoV:        [][]int{{0, 1, 2}, {1, 3, 2}},
		NumElements: 2,
	}
	s, err := FromGocfd(msh)
	require.NoError(t, err)
	assert.Equal(t, element.Tri, s.CellType)
	assert.Equal(t, [][]int{{0, 1, 2}, {1, 3, 2}}, s.Cells)
	assert.Equal(t, r3.Vec{X: 1, Y: 1}, s.Coords[3])

	var tests = []struct {
		name string
		msh  *gocfdmesh.Mesh
	}{
		{"empty", &gocfdmesh.Mesh{}},
		{"mixed", &gocfdmesh.Mesh{
			Vertices:    msh.Vertices,
			EtoV:        [][]int{{0, 1, 2}, {0, 1, 2, 3}},
			NumElements: 2,
		}},
		{"unsupported", &gocfdmesh.Mesh{
			Vertices:    msh.Vertices,
			EtoV:        [][]int{{0, 1, 2, 3, 0}},
			NumElements: 1,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromGocfd(tt.msh)
			assert.Error(t, err)
		})
	}
}

// Two triangles on two ranks, each holding the other's cell as a ghost.
// Rank 1 numbers its owned vertex first, so its local order of the facet
// on x = 1 is the reverse of the global one.
func TestFacetNormalIsRankIndependent(t *testing.T) {
	p := []r3.Vec{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	parts := []LocalData{
		{
			CellType:          element.Tri,
			Cells:             [][]int{{0, 1, 2}, {1, 3, 2}},
			NumOwnedCells:     1,
			CellGhosts:        []int64{1},
			CellGhostOwners:   []int{1},
			Coords:            []r3.Vec{p[0], p[1], p[2], p[3]},
			NumOwnedVertices:  3,
			VertexGhosts:      []int64{3},
			VertexGhostOwners: []int{1},
		},
		{
			CellType:          element.Tri,
			Cells:             [][]int{{2, 0, 3}, {1, 2, 3}},
			NumOwnedCells:     1,
			CellGhosts:        []int64{0},
			CellGhostOwners:   []int{0},
			Coords:            []r3.Vec{p[3], p[0], p[1], p[2]},
			NumOwnedVertices:  1,
			VertexGhosts:      []int64{0, 1, 2},
			VertexGhostOwners: []int{0, 0, 0},
		},
	}
	normals := make([]r3.Vec, len(parts))
	err := comm.Run(context.Background(), len(parts), func(ctx context.Context, c *comm.Comm) error {
		m, err := New(ctx, c, parts[c.Rank()])
		if err != nil {
			return err
		}
		right, err := LocateEntities(m, 1, func(x r3.Vec) bool { return math.Abs(x.X-1) < 1e-12 })
		if err != nil {
			return err
		}
		if !assert.Len(t, right, 1) {
			return nil
		}
		n, err := CellNormals(m, 1, right)
		if err != nil {
			return err
		}
		normals[c.Rank()] = n[0]
		return nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 1, math.Abs(normals[0].X), 1e-12)
	assert.Equal(t, normals[0], normals[1])
}
