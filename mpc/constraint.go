package mpc

import (
	"context"
	"slices"
	"sort"

	"github.com/notargets/DGMPC/comm"
	"github.com/notargets/DGMPC/fem"
	"github.com/notargets/DGMPC/graph"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConstraintData defines the slaves owned by the calling rank. Slave i is
// expressed through Masters[Offsets[i]:Offsets[i+1]] with the matching
// Coefficients and Owners. Slaves are local scalar dofs of owned blocks;
// masters are global scalar dofs (global block * bs + component).
type ConstraintData struct {
	Slaves       []int
	Offsets      []int
	Masters      []int64
	Coefficients []float64
	Owners       []int // rank owning each master
}

// MultiPointConstraint is the local view of a distributed set of
// constraints u_s = sum_k c_k u_{m_k}. It holds the owned slaves followed by
// the ghost slaves (copies of slaves owned elsewhere), the masters of each
// slave in definition order, and the slaves touched by every local cell.
// It is immutable; a changed constraint set requires a new one.
type MultiPointConstraint struct {
	V *fem.FunctionSpace

	slaves       []int
	numOwned     int
	masters      *graph.AdjacencyList // slave position -> local scalar masters
	coefficients []float64
	owners       []int
	cellToSlaves *graph.AdjacencyList // local cell -> slave positions
}

// slaveRecord carries one owned slave to the ranks ghosting it.
type slaveRecord struct {
	Slave        int64 // global scalar dof
	Masters      []int64
	Coefficients []float64
	Owners       []int
}

// clone returns a copy of r sharing no memory with it.
func (r slaveRecord) clone() slaveRecord {
	return slaveRecord{
		Slave:        r.Slave,
		Masters:      slices.Clone(r.Masters),
		Coefficients: slices.Clone(r.Coefficients),
		Owners:       slices.Clone(r.Owners),
	}
}

// New collectively builds the constraint from every rank's owned slaves.
// Each owned slave is sent to the ranks ghosting its block, and masters the
// local index map does not hold are appended to it as ghosts, so the
// returned constraint's function space may have more ghosts than V.
func New(ctx context.Context, V *fem.FunctionSpace, data ConstraintData) (*MultiPointConstraint, error) {
	var (
		dofmap = V.DofMap()
		imap   = dofmap.IndexMap()
		bs     = dofmap.IndexMapBS()
		c      = imap.Comm()
	)
	if err := validate(data, imap.SizeLocal()*bs); err != nil {
		return nil, err
	}

	// Find the ghost blocks that are slaves on their owner
	owned := make(map[int]bool)
	for _, s := range data.Slaves {
		owned[s/bs] = true
	}
	og := imap.OwnerToGhostComm()
	send := make([][]int64, len(og.Destinations()))
	for k, dst := range og.Destinations() {
		for _, b := range imap.PickIndices(dst) {
			if owned[b] {
				send[k] = append(send[k], imap.LocalToGlobal([]int{b})[0])
			}
		}
	}
	msgs, err := comm.NeighborAllToAll(ctx, og, send)
	if err != nil {
		return nil, errors.WithMessage(err, "sharing slave blocks")
	}
	var ghostBlocks []int
	for _, msg := range msgs {
		for _, g := range msg.Data {
			l, ok := imap.GlobalToLocal(g)
			if !ok {
				return nil, errors.Errorf("rank %d sent slave block %d, which is not ghosted", msg.Source, g)
			}
			ghostBlocks = append(ghostBlocks, l)
		}
	}
	sort.Ints(ghostBlocks)

	var localBlocks []int
	for b := range owned {
		if len(imap.DestRanks(b)) > 0 {
			localBlocks = append(localBlocks, b)
		}
	}
	sort.Ints(localBlocks)

	// Ship the slave definitions to the ranks ghosting them
	slaveComm, err := CreateOwnerToGhostComm(ctx, localBlocks, ghostBlocks, imap)
	if err != nil {
		return nil, err
	}
	var (
		dests   = slaveComm.Destinations()
		destPos = make(map[int]int, len(dests))
		records = make([][]slaveRecord, len(dests))
	)
	for k, r := range dests {
		destPos[r] = k
	}
	for i, s := range data.Slaves {
		rec := slaveRecord{
			Slave:        imap.LocalToGlobal([]int{s / bs})[0]*int64(bs) + int64(s%bs),
			Masters:      data.Masters[data.Offsets[i]:data.Offsets[i+1]],
			Coefficients: data.Coefficients[data.Offsets[i]:data.Offsets[i+1]],
			Owners:       data.Owners[data.Offsets[i]:data.Offsets[i+1]],
		}
		for _, r := range imap.DestRanks(s / bs) {
			// Every destination gets its own copy
			records[destPos[r]] = append(records[destPos[r]], rec.clone())
		}
	}
	recvd, err := comm.NeighborAllToAll(ctx, slaveComm, records)
	if err != nil {
		return nil, errors.WithMessage(err, "sending slaves to ghosts")
	}

	// Owned slaves first, then ghost slaves ordered by local dof
	var (
		slaves     = append([]int(nil), data.Slaves...)
		mastersG   = append([]int64(nil), data.Masters...)
		coeffs     = append([]float64(nil), data.Coefficients...)
		owners     = append([]int(nil), data.Owners...)
		offsets    = append([]int(nil), data.Offsets...)
		ghostSlave []struct {
			local int
			rec   slaveRecord
		}
	)
	for _, msg := range recvd {
		for _, rec := range msg.Data {
			b, ok := imap.GlobalToLocal(rec.Slave / int64(bs))
			if !ok || b < imap.SizeLocal() {
				return nil, errors.Errorf("rank %d sent slave %d, which is not a local ghost", msg.Source, rec.Slave)
			}
			ghostSlave = append(ghostSlave, struct {
				local int
				rec   slaveRecord
			}{b*bs + int(rec.Slave%int64(bs)), rec})
		}
	}
	sort.Slice(ghostSlave, func(i, j int) bool { return ghostSlave[i].local < ghostSlave[j].local })
	for _, gs := range ghostSlave {
		slaves = append(slaves, gs.local)
		mastersG = append(mastersG, gs.rec.Masters...)
		coeffs = append(coeffs, gs.rec.Coefficients...)
		owners = append(owners, gs.rec.Owners...)
		offsets = append(offsets, len(mastersG))
	}

	// Add unknown master blocks as ghosts. Extend is collective, so every
	// rank calls it even with nothing to add.
	var newGhosts []int64
	var newOwners []int
	for i, mg := range mastersG {
		if _, ok := imap.GlobalToLocal(mg / int64(bs)); !ok {
			newGhosts = append(newGhosts, mg/int64(bs))
			newOwners = append(newOwners, owners[i])
		}
	}
	extended, err := imap.Extend(ctx, newGhosts, newOwners)
	if err != nil {
		return nil, errors.WithMessage(err, "adding master ghosts")
	}
	masters := make([]int, len(mastersG))
	for i, mg := range mastersG {
		b, ok := extended.GlobalToLocal(mg / int64(bs))
		if !ok {
			return nil, errors.Errorf("master %d missing after index map extension", mg)
		}
		masters[i] = b*bs + int(mg%int64(bs))
	}

	mpc := &MultiPointConstraint{
		V:            V.WithIndexMap(extended),
		slaves:       slaves,
		numOwned:     len(data.Slaves),
		masters:      graph.NewAdjacencyList(masters, offsets),
		coefficients: coeffs,
		owners:       owners,
	}
	mpc.cellToSlaves = cellToSlaves(dofmap, slaves, bs)

	log.WithFields(log.Fields{
		"rank":        c.Rank(),
		"ownedSlaves": mpc.numOwned,
		"ghostSlaves": len(slaves) - mpc.numOwned,
		"newGhosts":   extended.NumGhosts() - imap.NumGhosts(),
	}).Debug("created multi-point constraint")
	return mpc, nil
}

func validate(data ConstraintData, numOwnedDofs int) error {
	if len(data.Offsets) != len(data.Slaves)+1 || data.Offsets[0] != 0 {
		return errors.Errorf("constraint offsets must start at 0 and have %d entries, got %d",
			len(data.Slaves)+1, len(data.Offsets))
	}
	n := data.Offsets[len(data.Slaves)]
	if len(data.Masters) != n || len(data.Coefficients) != n || len(data.Owners) != n {
		return errors.Errorf("constraint offsets end at %d: %d masters, %d coefficients, %d owners",
			n, len(data.Masters), len(data.Coefficients), len(data.Owners))
	}
	seen := make(map[int]bool, len(data.Slaves))
	for i, s := range data.Slaves {
		if s < 0 || s >= numOwnedDofs {
			return errors.Errorf("slave %d is not an owned dof", s)
		}
		if seen[s] {
			return errors.Errorf("slave %d is constrained twice", s)
		}
		seen[s] = true
		if data.Offsets[i+1] < data.Offsets[i] {
			return errors.Errorf("constraint offsets decrease at slave %d", i)
		}
	}
	return nil
}

// cellToSlaves builds the local cell -> slave position adjacency in two
// passes: count, prefix-sum, fill.
func cellToSlaves(dofmap *fem.DofMap, slaves []int, bs int) *graph.AdjacencyList {
	blockSlaves := make(map[int][]int)
	for pos, s := range slaves {
		blockSlaves[s/bs] = append(blockSlaves[s/bs], pos)
	}
	var (
		numCells = dofmap.NumCells()
		counts   = make([]int, numCells)
	)
	for c := 0; c < numCells; c++ {
		for _, b := range dofmap.CellDofs(c) {
			counts[c] += len(blockSlaves[b])
		}
	}
	offsets := make([]int, numCells+1)
	for c, n := range counts {
		offsets[c+1] = offsets[c] + n
	}
	data := make([]int, offsets[numCells])
	for c := 0; c < numCells; c++ {
		k := offsets[c]
		for _, b := range dofmap.CellDofs(c) {
			k += copy(data[k:], blockSlaves[b])
		}
	}
	return graph.NewAdjacencyList(data, offsets)
}

// FunctionSpace returns the constrained space, whose index map includes
// the master ghosts.
func (mpc *MultiPointConstraint) FunctionSpace() *fem.FunctionSpace { return mpc.V }

// Slaves returns the local scalar slave dofs, owned slaves first.
func (mpc *MultiPointConstraint) Slaves() []int { return mpc.slaves }

// NumOwnedSlaves returns how many of Slaves are owned by the caller.
func (mpc *MultiPointConstraint) NumOwnedSlaves() int { return mpc.numOwned }

// Masters maps each slave position to its local scalar master dofs, in
// definition order. Masters are never deduplicated.
func (mpc *MultiPointConstraint) Masters() *graph.AdjacencyList { return mpc.masters }

// Coefficients returns the coefficient of every entry of Masters().Array().
func (mpc *MultiPointConstraint) Coefficients() []float64 { return mpc.coefficients }

// Owners returns the owning rank of every entry of Masters().Array().
func (mpc *MultiPointConstraint) Owners() []int { return mpc.owners }

// CellToSlaves maps every local cell, ghosts included, to the positions in
// Slaves() of the slaves among its dofs.
func (mpc *MultiPointConstraint) CellToSlaves() *graph.AdjacencyList { return mpc.cellToSlaves }
