package comm

import (
	"context"
	"slices"

	"github.com/pkg/errors"
)

// DistGraph is a communicator with a fixed, explicit set of source and
// destination neighbours. The topology cannot be changed; a new graph must
// be created collectively when the neighbour sets change.
type DistGraph struct {
	*Comm
	sources, dests             []int
	sourceWeights, destWeights []int
}

// Message is a payload received from a neighbour, tagged by its source rank.
type Message[T any] struct {
	Source int
	Data   []T
}

// DistGraphCreateAdjacent creates a neighbourhood communicator in which the
// caller receives from sources and sends to dests. It is collective over c:
// every rank must call it, in the same order relative to other collectives.
// Edge declarations are cross-checked, so rank i listing j as a destination
// while j does not list i as a source is reported as an error on j.
// Weights are advisory and only stored.
func (c *Comm) DistGraphCreateAdjacent(ctx context.Context, sources, sourceWeights,
	dests, destWeights []int) (*DistGraph, error) {

	if len(sourceWeights) != len(sources) || len(destWeights) != len(dests) {
		return nil, errors.Errorf("edge weights do not match edges: %d/%d sources, %d/%d destinations",
			len(sourceWeights), len(sources), len(destWeights), len(dests))
	}
	if err := checkRanks(sources, c.Size()); err != nil {
		return nil, errors.WithMessage(err, "sources")
	}
	if err := checkRanks(dests, c.Size()); err != nil {
		return nil, errors.WithMessage(err, "destinations")
	}

	// Exchange edge declarations so both ends agree on the topology
	isDest := make([]uint8, c.Size())
	for _, d := range dests {
		isDest[d] = 1
	}
	declared, err := AllToAll(ctx, c, isDest)
	if err != nil {
		return nil, errors.WithMessage(err, "exchanging graph edges")
	}
	isSource := make([]uint8, c.Size())
	for _, s := range sources {
		isSource[s] = 1
	}
	for r := range declared {
		if declared[r] != isSource[r] {
			return nil, errors.Errorf("inconsistent graph topology: rank %d declares %d as destination=%t, rank %d declares it as source=%t",
				r, c.rank, declared[r] == 1, c.rank, isSource[r] == 1)
		}
	}

	return &DistGraph{
		Comm:          &Comm{world: c.world, id: c.derive("graph"), rank: c.rank},
		sources:       slices.Clone(sources),
		dests:         slices.Clone(dests),
		sourceWeights: slices.Clone(sourceWeights),
		destWeights:   slices.Clone(destWeights),
	}, nil
}

func checkRanks(ranks []int, size int) error {
	seen := make(map[int]bool, len(ranks))
	for _, r := range ranks {
		if r < 0 || r >= size {
			return errors.Errorf("rank %d out of range [0, %d)", r, size)
		}
		if seen[r] {
			return errors.Errorf("duplicate edge to rank %d", r)
		}
		seen[r] = true
	}
	return nil
}

// Sources returns the ranks the caller receives from.
func (g *DistGraph) Sources() []int { return g.sources }

// Destinations returns the ranks the caller sends to.
func (g *DistGraph) Destinations() []int { return g.dests }

// SourceWeights returns the advisory weights of the incoming edges.
func (g *DistGraph) SourceWeights() []int { return g.sourceWeights }

// DestinationWeights returns the advisory weights of the outgoing edges.
func (g *DistGraph) DestinationWeights() []int { return g.destWeights }

// NeighborAllToAll sends send[k] to Destinations()[k] and receives one
// message from each source. Messages are returned in Sources() order and
// carry their source rank; callers must key on Message.Source rather than
// position. Each send[k] is copied but its elements are not.
func NeighborAllToAll[T any](ctx context.Context, g *DistGraph, send [][]T) ([]Message[T], error) {
	if len(send) != len(g.dests) {
		return nil, errors.Errorf("neighbor alltoall: %d send buffers for %d destinations",
			len(send), len(g.dests))
	}
	tag := g.next()
	for k, dst := range g.dests {
		g.send(tag, dst, slices.Clone(send[k]))
	}
	recv := make([]Message[T], len(g.sources))
	for k, src := range g.sources {
		v, err := g.recv(ctx, tag, src)
		if err != nil {
			return nil, err
		}
		recv[k] = Message[T]{Source: src, Data: v.([]T)}
	}
	return recv, nil
}
