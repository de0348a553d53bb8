package mpc

import (
	"time"

	"github.com/notargets/DGMPC/fem"
	"github.com/notargets/DGMPC/indexmap"
	"github.com/notargets/DGMPC/la"
	"github.com/notargets/DGMPC/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Strategy selects how master couplings are inserted into a pattern.
type Strategy uint8

const (
	// Square inserts row and column master couplings in one traversal of a
	// single constraint.
	Square Strategy = iota
	// Rectangular traverses the row constraint and then the column
	// constraint, inserting one direction each time.
	Rectangular
)

func (s Strategy) String() string {
	switch s {
	case Square:
		return "square"
	case Rectangular:
		return "rectangular"
	default:
		return "unknown"
	}
}

// StrategyFor returns Square when both constraints are the same object.
func StrategyFor(mpc0, mpc1 *MultiPointConstraint) Strategy {
	if mpc0 == mpc1 {
		return Square
	}
	return Rectangular
}

// CreateSparsityPattern returns the unassembled pattern of the bilinear form
// a with rows constrained by mpc0 and columns by mpc1. It holds the standard
// cell couplings and every coupling the masters inherit from their slaves.
func CreateSparsityPattern(a *fem.Form, mpc0, mpc1 *MultiPointConstraint) (*la.SparsityPattern, error) {
	if a.Rank() != 2 {
		return nil, errors.Errorf("cannot create a sparsity pattern for a form of rank %d", a.Rank())
	}
	if mpc0.V.Mesh() != a.Mesh() || mpc1.V.Mesh() != a.Mesh() {
		return nil, errors.New("constraints and form are defined on different meshes")
	}
	defer func(start time.Time) {
		metrics.CreateSparsityPatternSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())

	var (
		dm0      = mpc0.V.DofMap()
		dm1      = mpc1.V.DofMap()
		strategy = StrategyFor(mpc0, mpc1)
	)
	p := la.NewSparsityPattern(a.Mesh().Comm(),
		[2]*indexmap.IndexMap{dm0.IndexMap(), dm1.IndexMap()},
		[2]int{dm0.IndexMapBS(), dm1.IndexMapBS()})

	if err := fem.BuildStandardPattern(p, a); err != nil {
		return nil, err
	}
	n, err := populatePattern(p, a, mpc0, mpc1, strategy)
	if err != nil {
		return nil, err
	}
	metrics.PatternMasterInsertsTotal.WithLabelValues(strategy.String()).Add(float64(n))

	log.WithFields(log.Fields{
		"rank":     a.Mesh().Comm().Rank(),
		"strategy": strategy,
		"inserts":  n,
	}).Debug("created constrained sparsity pattern")
	return p, nil
}

// populatePattern adds the master couplings of the cells of a and returns
// the number of master block insertions.
func populatePattern(p *la.SparsityPattern, a *fem.Form, mpc0, mpc1 *MultiPointConstraint,
	strategy Strategy) (int, error) {

	var (
		spaces  = a.FunctionSpaces()
		dm0     = spaces[0].DofMap()
		dm1     = spaces[1].DofMap()
		inserts int
	)
	insert := func(rows, cols []int) error {
		inserts++
		return p.Insert(rows, cols)
	}

	switch strategy {
	case Square:
		for _, c := range a.Cells() {
			masters := cellMasterBlocks(mpc0, c)
			if len(masters) == 0 {
				continue
			}
			var (
				rowDofs = dm0.CellDofs(c)
				colDofs = dm1.CellDofs(c)
			)
			for j, mj := range masters {
				row := []int{mj}
				if err := insert(row, colDofs); err != nil {
					return inserts, err
				}
				if err := insert(rowDofs, row); err != nil {
					return inserts, err
				}
				for _, mk := range masters[j:] {
					if err := insert(row, []int{mk}); err != nil {
						return inserts, err
					}
					if err := insert([]int{mk}, row); err != nil {
						return inserts, err
					}
				}
			}
		}

	case Rectangular:
		// Row masters against the trial dofs and column masters of the cell
		for _, c := range a.Cells() {
			masters0 := cellMasterBlocks(mpc0, c)
			if len(masters0) == 0 {
				continue
			}
			var (
				colDofs  = dm1.CellDofs(c)
				masters1 = cellMasterBlocks(mpc1, c)
			)
			for _, m0 := range masters0 {
				if err := insert([]int{m0}, colDofs); err != nil {
					return inserts, err
				}
				if len(masters1) > 0 {
					if err := insert([]int{m0}, masters1); err != nil {
						return inserts, err
					}
				}
			}
		}
		// Test dofs against the column masters
		for _, c := range a.Cells() {
			masters1 := cellMasterBlocks(mpc1, c)
			if len(masters1) == 0 {
				continue
			}
			rowDofs := dm0.CellDofs(c)
			for _, m1 := range masters1 {
				if err := insert(rowDofs, []int{m1}); err != nil {
					return inserts, err
				}
			}
		}

	default:
		return 0, errors.Errorf("unknown pattern strategy %d", strategy)
	}
	return inserts, nil
}

// cellMasterBlocks flattens the masters of every slave of cell c into local
// block indices. Repeats are kept.
func cellMasterBlocks(mpc *MultiPointConstraint, c int) []int {
	var (
		bs      = mpc.V.DofMap().IndexMapBS()
		masters = mpc.masters
		blocks  []int
	)
	for _, pos := range mpc.cellToSlaves.Links(c) {
		for _, m := range masters.Links(pos) {
			blocks = append(blocks, m/bs)
		}
	}
	return blocks
}
