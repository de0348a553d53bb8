// Package indexmap describes how a distributed index set is split across
// ranks: each rank owns a contiguous range of global indices and may hold
// ghost copies of indices owned elsewhere.
package indexmap

import (
	"context"

	"github.com/notargets/DGMPC/comm"
	"github.com/notargets/DGMPC/graph"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// IndexMap maps local indices [0, SizeLocal()+NumGhosts()) of one rank to
// global indices. Owned indices come first, followed by ghosts in the order
// they were given. An IndexMap is immutable; Extend builds a new one.
type IndexMap struct {
	comm       *comm.Comm
	localRange [2]int64
	sizeGlobal int64

	ghosts      []int64
	owners      []int
	ghostLookup map[int64]int // global -> local for ghosts

	// owned local index -> ranks that ghost it, sorted
	shared *graph.AdjacencyList

	ownerToGhost *comm.DistGraph
	ghostToOwner *comm.DistGraph
	sc           scatterer
}

// New collectively creates an IndexMap. Every rank passes the number of
// indices it owns together with the global index and owning rank of each of
// its ghosts.
func New(ctx context.Context, c *comm.Comm, sizeLocal int, ghosts []int64, owners []int) (*IndexMap, error) {
	if sizeLocal < 0 {
		return nil, errors.Errorf("negative local size %d", sizeLocal)
	}
	if len(ghosts) != len(owners) {
		return nil, errors.Errorf("%d ghosts but %d ghost owners", len(ghosts), len(owners))
	}

	sizes, err := comm.AllGather(ctx, c, int64(sizeLocal))
	if err != nil {
		return nil, errors.WithMessage(err, "gathering local sizes")
	}
	var (
		offsets = make([]int64, c.Size()+1)
		rank    = c.Rank()
	)
	for r, s := range sizes {
		offsets[r+1] = offsets[r] + s
	}

	m := &IndexMap{
		comm:        c,
		localRange:  [2]int64{offsets[rank], offsets[rank+1]},
		sizeGlobal:  offsets[c.Size()],
		ghosts:      append([]int64(nil), ghosts...),
		owners:      append([]int(nil), owners...),
		ghostLookup: make(map[int64]int, len(ghosts)),
	}

	// Validate ghosts against the owners' ranges and bucket requests by owner
	var requests = make([][]int64, c.Size())
	for i, g := range ghosts {
		o := owners[i]
		switch {
		case o < 0 || o >= c.Size():
			return nil, errors.Errorf("ghost %d: owner %d out of range", g, o)
		case o == rank:
			return nil, errors.Errorf("ghost %d is owned by the calling rank %d", g, rank)
		case g < offsets[o] || g >= offsets[o+1]:
			return nil, errors.Errorf("ghost %d is not in the range [%d, %d) of owner %d",
				g, offsets[o], offsets[o+1], o)
		}
		if _, ok := m.ghostLookup[g]; ok {
			return nil, errors.Errorf("duplicate ghost %d", g)
		}
		m.ghostLookup[g] = sizeLocal + i
		requests[o] = append(requests[o], g)
	}

	// Tell owners which of their indices we ghost
	received, err := comm.AllToAllV(ctx, c, requests)
	if err != nil {
		return nil, errors.WithMessage(err, "exchanging ghost requests")
	}

	// Count, prefix-sum and fill the owned index -> dest ranks adjacency.
	// Sources are visited in ascending rank, so each row comes out sorted.
	var counts = make([]int, sizeLocal)
	for _, globals := range received {
		for _, g := range globals {
			counts[g-m.localRange[0]]++
		}
	}
	var sharedOffsets = make([]int, sizeLocal+1)
	for i, n := range counts {
		sharedOffsets[i+1] = sharedOffsets[i] + n
		counts[i] = 0
	}
	var sharedData = make([]int, sharedOffsets[sizeLocal])
	for src, globals := range received {
		for _, g := range globals {
			l := int(g - m.localRange[0])
			sharedData[sharedOffsets[l]+counts[l]] = src
			counts[l]++
		}
	}
	m.shared = graph.NewAdjacencyList(sharedData, sharedOffsets)

	// Pick owned values for each requesting rank, place received values into
	// ghost slots for each owner. Both sides keep the request order.
	var ghostSources, ghostDests []int
	m.sc = scatterer{pick: make(map[int][]int), place: make(map[int][]int)}
	for src, globals := range received {
		if len(globals) == 0 {
			continue
		}
		ghostDests = append(ghostDests, src)
		pick := make([]int, len(globals))
		for k, g := range globals {
			pick[k] = int(g - m.localRange[0])
		}
		m.sc.pick[src] = pick
	}
	for o, globals := range requests {
		if len(globals) == 0 {
			continue
		}
		ghostSources = append(ghostSources, o)
		place := make([]int, len(globals))
		for k, g := range globals {
			place[k] = m.ghostLookup[g]
		}
		m.sc.place[o] = place
	}

	if m.ownerToGhost, err = c.DistGraphCreateAdjacent(ctx,
		ghostSources, unitWeights(len(ghostSources)),
		ghostDests, unitWeights(len(ghostDests))); err != nil {
		return nil, errors.WithMessage(err, "creating owner to ghost communicator")
	}
	if m.ghostToOwner, err = c.DistGraphCreateAdjacent(ctx,
		ghostDests, unitWeights(len(ghostDests)),
		ghostSources, unitWeights(len(ghostSources))); err != nil {
		return nil, errors.WithMessage(err, "creating ghost to owner communicator")
	}

	log.WithFields(log.Fields{
		"rank":      rank,
		"sizeLocal": sizeLocal,
		"numGhosts": len(ghosts),
		"neighbors": len(ghostSources) + len(ghostDests),
	}).Debug("created index map")
	return m, nil
}

func unitWeights(n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// Extend collectively creates a new map with the same owned range and the
// given ghosts appended after the existing ones. Indices that are owned by
// the caller, already ghosted, or repeated are skipped.
func (m *IndexMap) Extend(ctx context.Context, ghosts []int64, owners []int) (*IndexMap, error) {
	if len(ghosts) != len(owners) {
		return nil, errors.Errorf("%d ghosts but %d ghost owners", len(ghosts), len(owners))
	}
	var (
		allGhosts = append([]int64(nil), m.ghosts...)
		allOwners = append([]int(nil), m.owners...)
		seen      = make(map[int64]bool, len(ghosts))
	)
	for i, g := range ghosts {
		if m.isOwned(g) || seen[g] {
			continue
		}
		if _, ok := m.ghostLookup[g]; ok {
			continue
		}
		seen[g] = true
		allGhosts = append(allGhosts, g)
		allOwners = append(allOwners, owners[i])
	}
	return New(ctx, m.comm, m.SizeLocal(), allGhosts, allOwners)
}

func (m *IndexMap) isOwned(g int64) bool {
	return g >= m.localRange[0] && g < m.localRange[1]
}

// Comm returns the communicator the map was created on.
func (m *IndexMap) Comm() *comm.Comm { return m.comm }

// SizeLocal returns the number of owned indices.
func (m *IndexMap) SizeLocal() int { return int(m.localRange[1] - m.localRange[0]) }

// NumGhosts returns the number of ghost indices.
func (m *IndexMap) NumGhosts() int { return len(m.ghosts) }

// SizeGlobal returns the number of indices over all ranks.
func (m *IndexMap) SizeGlobal() int64 { return m.sizeGlobal }

// LocalRange returns the half-open global range owned by the caller.
func (m *IndexMap) LocalRange() [2]int64 { return m.localRange }

// Ghosts returns the global indices of the ghosts.
func (m *IndexMap) Ghosts() []int64 { return m.ghosts }

// Owners returns the owning rank of each ghost.
func (m *IndexMap) Owners() []int { return m.owners }

// Owner returns the rank owning local index i.
func (m *IndexMap) Owner(i int) int {
	if i < m.SizeLocal() {
		return m.comm.Rank()
	}
	return m.owners[i-m.SizeLocal()]
}

// IndexToDestRanks maps each owned index to the sorted ranks that ghost it.
func (m *IndexMap) IndexToDestRanks() *graph.AdjacencyList { return m.shared }

// DestRanks returns the ranks holding a ghost copy of owned index i.
func (m *IndexMap) DestRanks(i int) []int { return m.shared.Links(i) }

// LocalToGlobal converts local indices to global indices.
func (m *IndexMap) LocalToGlobal(local []int) []int64 {
	var (
		out  = make([]int64, len(local))
		size = m.SizeLocal()
	)
	for k, l := range local {
		if l < size {
			out[k] = m.localRange[0] + int64(l)
		} else {
			out[k] = m.ghosts[l-size]
		}
	}
	return out
}

// GlobalToLocal returns the local index of global index g, or false if g is
// neither owned nor ghosted by the caller.
func (m *IndexMap) GlobalToLocal(g int64) (int, bool) {
	if m.isOwned(g) {
		return int(g - m.localRange[0]), true
	}
	l, ok := m.ghostLookup[g]
	return l, ok
}

// OwnerToGhostComm returns the neighbourhood communicator in which owners
// send to the ranks ghosting their indices.
func (m *IndexMap) OwnerToGhostComm() *comm.DistGraph { return m.ownerToGhost }

// GhostToOwnerComm is the reverse of OwnerToGhostComm.
func (m *IndexMap) GhostToOwnerComm() *comm.DistGraph { return m.ghostToOwner }

// OwnedGhostedIndices returns, in ascending order, the owned indices that
// some other rank ghosts.
func (m *IndexMap) OwnedGhostedIndices() []int {
	var out []int
	for i := 0; i < m.SizeLocal(); i++ {
		if m.shared.NumLinks(i) > 0 {
			out = append(out, i)
		}
	}
	return out
}
