package mesh

import (
	"sort"

	"github.com/notargets/DGMPC/indexmap"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// CellNormals returns a unit normal for each of the given facets. Interval
// facets of a 2D mesh use the in-plane normal, triangle facets of a 3D mesh
// the normal of the triangle plane. The orientation follows the global
// vertex numbering, so a facet has the same normal on every rank holding
// it, but it is not consistent between facets. Degenerate facets get a zero
// normal.
func CellNormals(m *Mesh, dim int, entities []int) ([]r3.Vec, error) {
	if dim != m.topology.dim-1 {
		return nil, errors.Errorf("normals are defined for facets (dimension %d), not dimension %d",
			m.topology.dim-1, dim)
	}
	if err := m.topology.CreateEntities(dim); err != nil {
		return nil, err
	}
	var (
		x       = m.coords
		vmap    = m.topology.IndexMap(0)
		normals = make([]r3.Vec, len(entities))
	)
	for i, e := range entities {
		if e < 0 || e >= m.topology.counts[dim] {
			return nil, errors.Errorf("entity %d out of range", e)
		}
		v := globallyOrdered(vmap, m.EntityVertices(dim, e))
		var n r3.Vec
		switch dim {
		case 1:
			t := r3.Sub(x[v[1]], x[v[0]])
			n = r3.Vec{X: -t.Y, Y: t.X}
		case 2:
			n = r3.Cross(r3.Sub(x[v[1]], x[v[0]]), r3.Sub(x[v[2]], x[v[0]]))
		default:
			return nil, errors.Errorf("normals of %d-dimensional entities are not supported", dim)
		}
		if r3.Norm(n) > 0 {
			n = r3.Unit(n)
		}
		normals[i] = n
	}
	return normals, nil
}

// globallyOrdered returns a copy of the local vertices verts sorted by
// global index.
func globallyOrdered(vmap *indexmap.IndexMap, verts []int) []int {
	var (
		global = vmap.LocalToGlobal(verts)
		order  = make([]int, len(verts))
	)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return global[order[a]] < global[order[b]] })
	out := make([]int, len(verts))
	for i, o := range order {
		out[i] = verts[o]
	}
	return out
}

// LocateEntities returns, in ascending order, the local entities of
// dimension dim whose vertices all satisfy marker.
func LocateEntities(m *Mesh, dim int, marker func(r3.Vec) bool) ([]int, error) {
	if err := m.topology.CreateEntities(dim); err != nil {
		return nil, err
	}
	var (
		x      = m.coords
		inside = make([]bool, len(x))
		out    []int
	)
	for i, p := range x {
		inside[i] = marker(p)
	}
	for e := 0; e < m.topology.counts[dim]; e++ {
		all := true
		for _, v := range m.EntityVertices(dim, e) {
			if !inside[v] {
				all = false
				break
			}
		}
		if all {
			out = append(out, e)
		}
	}
	return out, nil
}

// MeshTags marks a subset of the entities of one dimension with integer values.
type MeshTags struct {
	mesh    *Mesh
	dim     int
	indices []int
	values  []int
}

// NewMeshTags creates tags sorted by entity index.
func NewMeshTags(m *Mesh, dim int, indices, values []int) (*MeshTags, error) {
	if len(indices) != len(values) {
		return nil, errors.Errorf("%d tagged entities but %d values", len(indices), len(values))
	}
	order := make([]int, len(indices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return indices[order[a]] < indices[order[b]] })

	t := &MeshTags{mesh: m, dim: dim, indices: make([]int, len(indices)), values: make([]int, len(values))}
	for i, o := range order {
		t.indices[i] = indices[o]
		t.values[i] = values[o]
	}
	return t, nil
}

// Mesh returns the tagged mesh.
func (t *MeshTags) Mesh() *Mesh { return t.mesh }

// Dim returns the dimension of the tagged entities.
func (t *MeshTags) Dim() int { return t.dim }

// Indices returns the tagged entities in ascending order.
func (t *MeshTags) Indices() []int { return t.indices }

// Values returns the tag of each entity in Indices.
func (t *MeshTags) Values() []int { return t.values }

// Find returns the entities tagged with value.
func (t *MeshTags) Find(value int) []int {
	var out []int
	for i, v := range t.values {
		if v == value {
			out = append(out, t.indices[i])
		}
	}
	return out
}
