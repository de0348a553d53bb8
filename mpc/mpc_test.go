package mpc

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/notargets/DGMPC/comm"
	"github.com/notargets/DGMPC/element"
	"github.com/notargets/DGMPC/fem"
	"github.com/notargets/DGMPC/indexmap"
	"github.com/notargets/DGMPC/la"
	"github.com/notargets/DGMPC/mesh"
	"github.com/notargets/DGMPC/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// Three disjoint triangles. Cell 0 holds the slaves, cells 1 and 2 hold
// one master each.
func threeTriangles() *mesh.SerialData {
	s := &mesh.SerialData{CellType: element.Tri}
	for k := 0; k < 3; k++ {
		x0 := 2 * float64(k)
		s.Coords = append(s.Coords, r3.Vec{X: x0}, r3.Vec{X: x0 + 1}, r3.Vec{X: x0, Y: 1})
		s.Cells = append(s.Cells, []int{3 * k, 3*k + 1, 3*k + 2})
	}
	return s
}

func runSerial(t *testing.T, s *mesh.SerialData, fn func(ctx context.Context, m *mesh.Mesh) error) {
	t.Helper()
	err := comm.Run(context.Background(), 1, func(ctx context.Context, c *comm.Comm) error {
		m, err := mesh.New(ctx, c, s.Local())
		if err != nil {
			return err
		}
		return fn(ctx, m)
	})
	require.NoError(t, err)
}

func splitMesh(t *testing.T, s *mesh.SerialData, ranks int) []mesh.LocalData {
	t.Helper()
	layout, err := (&partitions.PartitionBuilder{NumElements: s.NumCells(), NumPartitions: ranks}).BuildPartitions()
	require.NoError(t, err)
	parts, err := partitions.Split(s, layout, partitions.GhostNone)
	require.NoError(t, err)
	return parts
}

// constrain builds slave -> single master constraints with unit
// coefficients on a serial space.
func constrain(ctx context.Context, V *fem.FunctionSpace, slaves []int, masters []int64) (*MultiPointConstraint, error) {
	data := ConstraintData{Slaves: slaves, Offsets: []int{0}}
	for i := range slaves {
		data.Masters = append(data.Masters, masters[i])
		data.Coefficients = append(data.Coefficients, 1)
		data.Owners = append(data.Owners, 0)
		data.Offsets = append(data.Offsets, i+1)
	}
	return New(ctx, V, data)
}

type entry [2]int64

// requiredEntries lists, in global blocks, what substituting every slave by
// its masters adds to the cell couplings of a.
func requiredEntries(a *fem.Form, mpc0, mpc1 *MultiPointConstraint) map[entry]bool {
	replace := func(mpc *MultiPointConstraint, b int) []int64 {
		var (
			im  = mpc.V.DofMap().IndexMap()
			bs  = mpc.V.DofMap().IndexMapBS()
			out = []int64{im.LocalToGlobal([]int{b})[0]}
		)
		for pos, s := range mpc.Slaves() {
			if s/bs != b {
				continue
			}
			for _, m := range mpc.Masters().Links(pos) {
				out = append(out, im.LocalToGlobal([]int{m / bs})[0])
			}
		}
		return out
	}
	var (
		spaces = a.FunctionSpaces()
		req    = make(map[entry]bool)
	)
	for _, c := range a.Cells() {
		for _, i := range spaces[0].DofMap().CellDofs(c) {
			for _, j := range spaces[1].DofMap().CellDofs(c) {
				for _, r := range replace(mpc0, i) {
					for _, s := range replace(mpc1, j) {
						req[entry{r, s}] = true
					}
				}
			}
		}
	}
	return req
}

// patternEntries lists the entries of an assembled pattern in global blocks.
func patternEntries(p *la.SparsityPattern) map[entry]bool {
	var (
		im  = p.IndexMap(0)
		out = make(map[entry]bool)
	)
	for r := 0; r < p.Graph().NumNodes(); r++ {
		row := im.LocalToGlobal([]int{r})[0]
		for _, c := range p.Columns(r) {
			out[entry{row, p.ColumnGlobal(c)}] = true
		}
	}
	return out
}

func TestSingleCellTwoSlaves(t *testing.T) {
	runSerial(t, threeTriangles(), func(ctx context.Context, m *mesh.Mesh) error {
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 1)
		if err != nil {
			return err
		}
		mpc, err := constrain(ctx, V, []int{0, 1}, []int64{3, 6})
		if err != nil {
			return err
		}
		assert.Equal(t, []int{0, 1}, mpc.Slaves())
		assert.Equal(t, 2, mpc.NumOwnedSlaves())
		assert.Equal(t, []int{3}, mpc.Masters().Links(0))
		assert.Equal(t, []int{6}, mpc.Masters().Links(1))
		assert.Equal(t, []float64{1, 1}, mpc.Coefficients())
		assert.Equal(t, []int{0, 0}, mpc.Owners())
		assert.Equal(t, []int{0, 1}, mpc.CellToSlaves().Links(0))
		assert.Empty(t, mpc.CellToSlaves().Links(1))
		assert.Equal(t, 0, mpc.FunctionSpace().DofMap().IndexMap().NumGhosts())

		a, err := fem.NewForm(V, V)
		if err != nil {
			return err
		}
		p, err := CreateSparsityPattern(a, mpc, mpc)
		if err != nil {
			return err
		}
		if err = p.Assemble(ctx); err != nil {
			return err
		}
		// Masters see every dof of the slave cell and each other
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, p.Columns(3))
		assert.Equal(t, []int{0, 1, 2, 3, 6, 7, 8}, p.Columns(6))
		assert.Equal(t, []int{0, 1, 2, 3, 6}, p.Columns(0))
		assert.Equal(t, []int{3, 4, 5}, p.Columns(4))
		assert.Equal(t, 41, p.NumNonzeros())

		got := patternEntries(p)
		for e := range requiredEntries(a, mpc, mpc) {
			assert.True(t, got[e], "missing entry %v", e)
		}
		return nil
	})
}

func TestRectangularPattern(t *testing.T) {
	runSerial(t, threeTriangles(), func(ctx context.Context, m *mesh.Mesh) error {
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 1)
		if err != nil {
			return err
		}
		rows, err := constrain(ctx, V, []int{0}, []int64{3})
		if err != nil {
			return err
		}
		cols, err := constrain(ctx, V, []int{1}, []int64{6})
		if err != nil {
			return err
		}
		assert.Equal(t, Rectangular, StrategyFor(rows, cols))

		a, err := fem.NewForm(V, V)
		if err != nil {
			return err
		}
		p, err := CreateSparsityPattern(a, rows, cols)
		if err != nil {
			return err
		}
		if err = p.Assemble(ctx); err != nil {
			return err
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, p.Columns(3))
		assert.Equal(t, []int{0, 1, 2, 6}, p.Columns(0))
		// Column constraints add nothing to the master row
		assert.Equal(t, []int{6, 7, 8}, p.Columns(6))

		got := patternEntries(p)
		for e := range requiredEntries(a, rows, cols) {
			assert.True(t, got[e], "missing entry %v", e)
		}
		return nil
	})
}

func TestSquareMatchesRectangularTraversal(t *testing.T) {
	runSerial(t, mesh.UnitSquare(2, 2), func(ctx context.Context, m *mesh.Mesh) error {
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 1)
		if err != nil {
			return err
		}
		// Right edge onto left edge, plus a two-master slave in the middle
		data := ConstraintData{
			Slaves:       []int{2, 5, 8, 4},
			Offsets:      []int{0, 1, 2, 3, 5},
			Masters:      []int64{0, 3, 6, 1, 7},
			Coefficients: []float64{1, 1, 1, 0.5, 0.5},
			Owners:       []int{0, 0, 0, 0, 0},
		}
		mpc, err := New(ctx, V, data)
		if err != nil {
			return err
		}
		assert.Equal(t, []int{1, 7}, mpc.Masters().Links(3))

		a, err := fem.NewForm(V, V)
		if err != nil {
			return err
		}
		// Both strategies on the same object must insert the same entries
		var (
			im       = mpc.FunctionSpace().DofMap().IndexMap()
			patterns [2]*la.SparsityPattern
		)
		for k, strategy := range []Strategy{Square, Rectangular} {
			p := la.NewSparsityPattern(m.Comm(), [2]*indexmap.IndexMap{im, im}, [2]int{1, 1})
			if err = fem.BuildStandardPattern(p, a); err != nil {
				return err
			}
			if _, err = populatePattern(p, a, mpc, mpc, strategy); err != nil {
				return err
			}
			if err = p.Assemble(ctx); err != nil {
				return err
			}
			patterns[k] = p
		}
		assert.Equal(t, patterns[0].Graph().Offsets(), patterns[1].Graph().Offsets())
		assert.Equal(t, patterns[0].Graph().Array(), patterns[1].Graph().Array())

		got := patternEntries(patterns[0])
		for e := range requiredEntries(a, mpc, mpc) {
			assert.True(t, got[e], "missing entry %v", e)
		}
		return nil
	})
}

func TestPatternPreconditions(t *testing.T) {
	runSerial(t, threeTriangles(), func(ctx context.Context, m *mesh.Mesh) error {
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 1)
		if err != nil {
			return err
		}
		mpc, err := constrain(ctx, V, []int{0}, []int64{3})
		if err != nil {
			return err
		}
		L, err := fem.NewForm(V)
		if err != nil {
			return err
		}
		_, err = CreateSparsityPattern(L, mpc, mpc)
		assert.Error(t, err)
		_, err = CreateMatrix(ctx, L, mpc, la.AIJ)
		assert.Error(t, err)

		// Inconsistent constraint data
		_, err = New(ctx, V, ConstraintData{Slaves: []int{0}, Offsets: []int{0}})
		assert.Error(t, err)
		_, err = New(ctx, V, ConstraintData{Slaves: []int{9}, Offsets: []int{0, 0}})
		assert.Error(t, err)
		_, err = New(ctx, V, ConstraintData{Slaves: []int{0, 0}, Offsets: []int{0, 0, 0}})
		assert.Error(t, err)
		_, err = New(ctx, V, ConstraintData{
			Slaves: []int{0}, Offsets: []int{0, 1}, Masters: []int64{3}, Coefficients: []float64{1},
		})
		assert.Error(t, err)
		return nil
	})
}

func TestCreateMatrix(t *testing.T) {
	runSerial(t, threeTriangles(), func(ctx context.Context, m *mesh.Mesh) error {
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 1)
		if err != nil {
			return err
		}
		mpc, err := constrain(ctx, V, []int{0, 1}, []int64{3, 6})
		if err != nil {
			return err
		}
		a, err := fem.NewForm(V, V)
		if err != nil {
			return err
		}
		A, err := CreateMatrix(ctx, a, mpc, la.AIJ)
		if err != nil {
			return err
		}
		rows, cols := A.Dims()
		assert.Equal(t, 9, rows)
		assert.Equal(t, 9, cols)
		assert.Equal(t, 41, A.NNZ())
		assert.True(t, A.Has(3, 6))
		assert.True(t, A.Has(6, 3))
		assert.False(t, A.Has(4, 0))

		B, err := CreateRectangularMatrix(ctx, a, mpc, mpc, la.BAIJ)
		if err != nil {
			return err
		}
		assert.Equal(t, la.BAIJ, B.Type())
		assert.Equal(t, 41, B.NNZ())
		return nil
	})
}

func TestBlockedConstraintMatrix(t *testing.T) {
	runSerial(t, threeTriangles(), func(ctx context.Context, m *mesh.Mesh) error {
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 2)
		if err != nil {
			return err
		}
		// Both components of block 0: x onto block 3, y onto block 6
		mpc, err := constrain(ctx, V, []int{0, 1}, []int64{6, 13})
		if err != nil {
			return err
		}
		assert.Equal(t, []int{6}, mpc.Masters().Links(0))
		assert.Equal(t, []int{13}, mpc.Masters().Links(1))
		assert.Equal(t, []int{0, 1}, mpc.CellToSlaves().Links(0))

		a, err := fem.NewForm(V, V)
		if err != nil {
			return err
		}
		A, err := CreateMatrix(ctx, a, mpc, la.BAIJ)
		if err != nil {
			return err
		}
		rows, cols := A.Dims()
		assert.Equal(t, 18, rows)
		assert.Equal(t, 18, cols)
		assert.Equal(t, 41*4, A.NNZ())
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, A.Pattern().Columns(3))
		return nil
	})
}

// Rank 0 owns the left square, rank 1 the right one. Slaves on x = 1 are
// tied to the masters on x = 0 at the same height, which rank 1 does not
// hold until the constraint extends its index map.
func TestPeriodicMatrixTwoRanks(t *testing.T) {
	const ranks = 2
	var (
		serial   = mesh.UnitSquare(2, 1)
		parts    = splitMesh(t, serial, ranks)
		required = make([]map[entry]bool, ranks)
		actual   = make([]map[entry]bool, ranks)
	)
	type point struct {
		Y      float64
		Global int64
	}
	err := comm.Run(context.Background(), ranks, func(ctx context.Context, c *comm.Comm) error {
		m, err := mesh.New(ctx, c, parts[c.Rank()])
		if err != nil {
			return err
		}
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 1)
		if err != nil {
			return err
		}
		var (
			im    = V.DofMap().IndexMap()
			x     = fem.TabulateDofCoordinates(V)
			local []point
		)
		for b := 0; b < im.SizeLocal(); b++ {
			if x[b].X < 1e-12 {
				local = append(local, point{Y: x[b].Y, Global: im.LocalToGlobal([]int{b})[0]})
			}
		}
		all, err := comm.AllGather(ctx, c, local)
		if err != nil {
			return err
		}
		data := ConstraintData{Offsets: []int{0}}
		for b := 0; b < im.SizeLocal(); b++ {
			if math.Abs(x[b].X-1) > 1e-12 {
				continue
			}
			for owner, pts := range all {
				for _, p := range pts {
					if math.Abs(p.Y-x[b].Y) < 1e-12 {
						data.Slaves = append(data.Slaves, b)
						data.Masters = append(data.Masters, p.Global)
						data.Coefficients = append(data.Coefficients, 1)
						data.Owners = append(data.Owners, owner)
						data.Offsets = append(data.Offsets, len(data.Masters))
					}
				}
			}
		}
		mpc, err := New(ctx, V, data)
		if err != nil {
			return err
		}
		if c.Rank() == 1 {
			assert.Equal(t, 2, mpc.NumOwnedSlaves())
			assert.Equal(t, im.NumGhosts()+2, mpc.FunctionSpace().DofMap().IndexMap().NumGhosts())
		} else {
			assert.Empty(t, mpc.Slaves())
		}

		a, err := fem.NewForm(V, V)
		if err != nil {
			return err
		}
		A, err := CreateMatrix(ctx, a, mpc, la.AIJ)
		if err != nil {
			return err
		}
		required[c.Rank()] = requiredEntries(a, mpc, mpc)
		actual[c.Rank()] = patternEntries(A.Pattern())
		return nil
	})
	require.NoError(t, err)

	got := make(map[entry]bool)
	for _, a := range actual {
		for e := range a {
			got[e] = true
		}
	}
	var missing []entry
	for _, req := range required {
		for e := range req {
			if !got[e] {
				missing = append(missing, e)
			}
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i][0] < missing[j][0] })
	assert.Empty(t, missing)

	// The master at the origin couples to the slave cell on rank 1
	assert.True(t, got[entry{0, 4}])
	assert.True(t, got[entry{4, 0}])
}

// Slaves on x = 0.5 are owned by rank 0 and ghosted by rank 1, which must
// receive them with their masters.
func TestGhostSlavesReachGhostingRanks(t *testing.T) {
	parts := splitMesh(t, mesh.UnitSquare(2, 1), 2)
	err := comm.Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
		m, err := mesh.New(ctx, c, parts[c.Rank()])
		if err != nil {
			return err
		}
		V, err := fem.CreateFunctionSpace(ctx, m, 1, 1)
		if err != nil {
			return err
		}
		var (
			im   = V.DofMap().IndexMap()
			x    = fem.TabulateDofCoordinates(V)
			data = ConstraintData{Offsets: []int{0}}
		)
		if c.Rank() == 0 {
			// Owned globals: (0,0)=0, (0.5,0)=1, (0,1)=2, (0.5,1)=3
			for b := 0; b < im.SizeLocal(); b++ {
				if math.Abs(x[b].X-0.5) < 1e-12 {
					data.Slaves = append(data.Slaves, b)
					data.Masters = append(data.Masters, 2*int64(math.Round(x[b].Y)))
					data.Coefficients = append(data.Coefficients, 2)
					data.Owners = append(data.Owners, 0)
					data.Offsets = append(data.Offsets, len(data.Masters))
				}
			}
			shared := ComputeSharedIndices(V)
			for _, s := range data.Slaves {
				assert.Equal(t, []int{1}, shared.Links(s))
			}
		}
		mpc, err := New(ctx, V, data)
		if err != nil {
			return err
		}
		ext := mpc.FunctionSpace().DofMap().IndexMap()
		switch c.Rank() {
		case 0:
			assert.Equal(t, 2, mpc.NumOwnedSlaves())
			assert.Len(t, mpc.Slaves(), 2)
		case 1:
			assert.Equal(t, 0, mpc.NumOwnedSlaves())
			if !assert.Len(t, mpc.Slaves(), 2) {
				return nil
			}
			for pos, s := range mpc.Slaves() {
				assert.GreaterOrEqual(t, s, im.SizeLocal())
				slaveY := x[s].Y
				masters := ext.LocalToGlobal(mpc.Masters().Links(pos))
				assert.Equal(t, []int64{2 * int64(math.Round(slaveY))}, masters)
			}
			assert.Equal(t, []float64{2, 2}, mpc.Coefficients())
			assert.Equal(t, []int{0, 0}, mpc.Owners())
			assert.Equal(t, im.NumGhosts()+2, ext.NumGhosts())
			// One slave in the first cell, both in the second
			assert.Equal(t, 3, len(mpc.CellToSlaves().Array()))
		}

		a, err := fem.NewForm(V, V)
		if err != nil {
			return err
		}
		_, err = CreateMatrix(ctx, a, mpc, la.AIJ)
		return err
	})
	require.NoError(t, err)
}

func TestSlaveRecordCopiesAreIndependent(t *testing.T) {
	var (
		masters = []int64{4, 7}
		rec     = slaveRecord{Slave: 3, Masters: masters[:1], Coefficients: []float64{0.5}, Owners: []int{1}}
		a, b    = rec.clone(), rec.clone()
	)
	a.Masters[0] = -1
	a.Coefficients[0] = -1
	a.Owners[0] = -1
	a.Masters = append(a.Masters, 9)

	assert.Equal(t, rec, b)
	assert.Equal(t, []int64{4, 7}, masters)
	assert.Equal(t, int64(3), a.Slave)
}
