// Package mpc builds multi-point constraints on top of a distributed
// function space: the communicators that move master data between ranks, the
// slave -> master constraint graph and the sparsity pattern and matrix of a
// constrained bilinear form.
package mpc

import (
	"context"
	"slices"

	"github.com/notargets/DGMPC/comm"
	"github.com/notargets/DGMPC/fem"
	"github.com/notargets/DGMPC/graph"
	"github.com/notargets/DGMPC/mesh"
	"github.com/notargets/DGMPC/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// OwnershipView is the read-only ownership information of a block index
// map that communicator construction needs. *indexmap.IndexMap satisfies it.
type OwnershipView interface {
	Comm() *comm.Comm
	SizeLocal() int
	NumGhosts() int
	// Owners returns the owning rank of each ghost block
	Owners() []int
	// DestRanks returns the ranks holding a ghost copy of owned block i
	DestRanks(i int) []int
}

// NeighborhoodEdges derives the slave -> master edges of rank from the
// per-rank flags. sources are the other ranks owning slaves when rank owns
// masters; dests are the other ranks owning masters when rank owns slaves.
// Both lists are ascending and never contain rank itself.
func NeighborhoodEdges(rank int, hasSlaves, hasMasters []bool) (sources, dests []int) {
	if hasMasters[rank] {
		for i, s := range hasSlaves {
			if i != rank && s {
				sources = append(sources, i)
			}
		}
	}
	if hasSlaves[rank] {
		for i, m := range hasMasters {
			if i != rank && m {
				dests = append(dests, i)
			}
		}
	}
	return sources, dests
}

// CreateNeighborhoodComms collectively creates the slave -> master (index 0)
// and master -> slave (index 1) communicators. A rank owns masters when any
// of its tagged entities carries masterMarker.
func CreateNeighborhoodComms(ctx context.Context, tags *mesh.MeshTags, hasSlave bool,
	masterMarker int) ([2]*comm.DistGraph, error) {

	hasMaster := slices.Contains(tags.Values(), masterMarker)
	return CreateNeighborhoodCommsFromOwnership(ctx, tags.Mesh().Comm(), hasSlave, hasMaster)
}

// CreateNeighborhoodCommsFromOwnership is CreateNeighborhoodComms for callers
// that already know whether they own slaves and masters.
func CreateNeighborhoodCommsFromOwnership(ctx context.Context, c *comm.Comm,
	hasSlave, hasMaster bool) ([2]*comm.DistGraph, error) {

	var comms [2]*comm.DistGraph
	var (
		size        = c.Size()
		slaveFlags  = make([]bool, size)
		masterFlags = make([]bool, size)
	)
	for i := range slaveFlags {
		slaveFlags[i], masterFlags[i] = hasSlave, hasMaster
	}
	procsWithMasters, err := comm.AllToAll(ctx, c, masterFlags)
	if err != nil {
		return comms, errors.WithMessage(err, "exchanging master ownership")
	}
	procsWithSlaves, err := comm.AllToAll(ctx, c, slaveFlags)
	if err != nil {
		return comms, errors.WithMessage(err, "exchanging slave ownership")
	}

	sources, dests := NeighborhoodEdges(c.Rank(), procsWithSlaves, procsWithMasters)
	var (
		sourceWeights = unitWeights(len(sources))
		destWeights   = unitWeights(len(dests))
	)
	if comms[0], err = c.DistGraphCreateAdjacent(ctx, sources, sourceWeights, dests, destWeights); err != nil {
		return comms, errors.WithMessage(err, "creating slave to master communicator")
	}
	if comms[1], err = c.DistGraphCreateAdjacent(ctx, dests, destWeights, sources, sourceWeights); err != nil {
		return comms, errors.WithMessage(err, "creating master to slave communicator")
	}
	metrics.NeighborhoodCommsTotal.Add(2)

	log.WithFields(log.Fields{
		"rank":    c.Rank(),
		"sources": sources,
		"dests":   dests,
	}).Debug("created neighborhood communicators")
	return comms, nil
}

// CreateOwnerToGhostComm collectively creates a communicator from the owners
// of ghostBlocks to the caller and from the caller to every rank ghosting
// one of localBlocks.
func CreateOwnerToGhostComm(ctx context.Context, localBlocks, ghostBlocks []int,
	view OwnershipView) (*comm.DistGraph, error) {

	var (
		sizeLocal = view.SizeLocal()
		owners    = view.Owners()
		src       = make(map[int]struct{})
		dst       = make(map[int]struct{})
	)
	for _, b := range localBlocks {
		if b < 0 || b >= sizeLocal {
			return nil, errors.Errorf("block %d is not owned", b)
		}
		for _, r := range view.DestRanks(b) {
			dst[r] = struct{}{}
		}
	}
	for _, b := range ghostBlocks {
		if b < sizeLocal || b >= sizeLocal+view.NumGhosts() {
			return nil, errors.Errorf("block %d is not a ghost", b)
		}
		src[owners[b-sizeLocal]] = struct{}{}
	}
	sources, dests := sortedKeys(src), sortedKeys(dst)
	g, err := view.Comm().DistGraphCreateAdjacent(ctx,
		sources, unitWeights(len(sources)), dests, unitWeights(len(dests)))
	if err != nil {
		return nil, errors.WithMessage(err, "creating owner to ghost communicator")
	}
	return g, nil
}

// ComputeSharedIndices maps every owned block of V to the ranks ghosting it.
func ComputeSharedIndices(V *fem.FunctionSpace) *graph.AdjacencyList {
	return V.DofMap().IndexMap().IndexToDestRanks()
}

func sortedKeys(set map[int]struct{}) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func unitWeights(n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
