package mpc

import (
	"context"
	"math"

	"github.com/notargets/DGMPC/fem"
	"github.com/notargets/DGMPC/mesh"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// normalTolerance is the smallest accumulated normal length that is
// normalised. Shorter normals are left as they are.
const normalTolerance = 1e-10

// CreateNormalApproximation collectively approximates a unit normal at every
// block of V on the given facets. Each block sums the normals of its facets,
// flipped to agree with the first one; contributions from ghost copies are
// added on the owner before normalising.
func CreateNormalApproximation(ctx context.Context, V *fem.FunctionSpace, dim int,
	entities []int) (*fem.Function, error) {

	bs := V.DofMap().IndexMapBS()
	if bs > 3 {
		return nil, errors.Errorf("normal approximation needs a block size of at most 3, got %d", bs)
	}
	blockToEntities, err := CreateBlockToFacetMap(V, dim, entities)
	if err != nil {
		return nil, err
	}

	var (
		nh = fem.NewFunction(V)
		x  = nh.X().Array()
	)
	for i := 0; i < blockToEntities.NumNodes(); i++ {
		ents := blockToEntities.Links(i)
		if len(ents) == 0 {
			continue
		}
		normals, err := mesh.CellNormals(V.Mesh(), dim, ents)
		if err != nil {
			return nil, err
		}
		normal := normals[0]
		for _, ni := range normals[1:] {
			normal = r3.Add(normal, r3.Scale(math.Copysign(1, r3.Dot(normals[0], ni)), ni))
		}
		copy(x[i*bs:(i+1)*bs], []float64{normal.X, normal.Y, normal.Z}[:bs])
	}

	if err = nh.X().ScatterReverseAdd(ctx); err != nil {
		return nil, errors.WithMessage(err, "accumulating normals")
	}
	for i := 0; i < V.DofMap().IndexMap().SizeLocal(); i++ {
		n := x[i*bs : (i+1)*bs]
		if norm := floats.Norm(n, 2); norm > normalTolerance {
			floats.Scale(1/norm, n)
		}
	}
	if err = nh.X().ScatterForward(ctx); err != nil {
		return nil, errors.WithMessage(err, "distributing normals")
	}
	return nh, nil
}
