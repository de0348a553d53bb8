package indexmap

import (
	"context"
	"testing"

	"github.com/notargets/DGMPC/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each of three ranks owns two indices: rank r owns {2r, 2r+1}.
var ringGhosts = [][]int64{{2}, {4, 0}, {0}}
var ringOwners = [][]int{{1}, {2, 0}, {0}}

func newRing(ctx context.Context, c *comm.Comm) (*IndexMap, error) {
	return New(ctx, c, 2, ringGhosts[c.Rank()], ringOwners[c.Rank()])
}

func TestIndexMapOwnership(t *testing.T) {
	err := comm.Run(context.Background(), 3, func(ctx context.Context, c *comm.Comm) error {
		m, err := newRing(ctx, c)
		if err != nil {
			return err
		}
		r := c.Rank()
		assert.Equal(t, 2, m.SizeLocal())
		assert.Equal(t, int64(6), m.SizeGlobal())
		assert.Equal(t, [2]int64{int64(2 * r), int64(2*r + 2)}, m.LocalRange())
		assert.Equal(t, len(ringGhosts[r]), m.NumGhosts())
		assert.Equal(t, r, m.Owner(0))
		assert.Equal(t, ringOwners[r][0], m.Owner(2))

		switch r {
		case 0:
			assert.Equal(t, []int{1, 2}, m.DestRanks(0))
			assert.Empty(t, m.DestRanks(1))
			assert.Equal(t, []int{0}, m.OwnedGhostedIndices())
		case 1:
			assert.Equal(t, []int{0}, m.DestRanks(0))
		case 2:
			assert.Equal(t, []int{1}, m.DestRanks(0))
		}

		globals := m.LocalToGlobal([]int{0, 1, 2})
		assert.Equal(t, []int64{int64(2 * r), int64(2*r + 1), ringGhosts[r][0]}, globals)
		for l, g := range globals {
			back, ok := m.GlobalToLocal(g)
			assert.True(t, ok)
			assert.Equal(t, l, back)
		}
		_, ok := m.GlobalToLocal(5 - int64(r))
		if r == 0 {
			assert.False(t, ok)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestIndexMapScatter(t *testing.T) {
	err := comm.Run(context.Background(), 3, func(ctx context.Context, c *comm.Comm) error {
		m, err := newRing(ctx, c)
		if err != nil {
			return err
		}
		const bs = 2
		n := m.SizeLocal() + m.NumGhosts()
		x := make([]float64, n*bs)
		globals := m.LocalToGlobal([]int{0, 1, 2, 3}[:n])
		for l := 0; l < m.SizeLocal(); l++ {
			x[l*bs] = float64(globals[l])
			x[l*bs+1] = -float64(globals[l])
		}
		for l := m.SizeLocal(); l < n; l++ {
			x[l*bs], x[l*bs+1] = 99, 99
		}
		if err = m.ScatterForward(ctx, x, bs); err != nil {
			return err
		}
		for l := m.SizeLocal(); l < n; l++ {
			assert.Equal(t, float64(globals[l]), x[l*bs])
			assert.Equal(t, -float64(globals[l]), x[l*bs+1])
		}

		// Every ghost contributes one to its owner
		y := make([]float64, n)
		for l := m.SizeLocal(); l < n; l++ {
			y[l] = 1
		}
		if err = m.ScatterReverseAdd(ctx, y, 1); err != nil {
			return err
		}
		for l := 0; l < m.SizeLocal(); l++ {
			assert.Equal(t, float64(len(m.DestRanks(l))), y[l], "rank %d index %d", c.Rank(), l)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestIndexMapExtend(t *testing.T) {
	err := comm.Run(context.Background(), 3, func(ctx context.Context, c *comm.Comm) error {
		m, err := newRing(ctx, c)
		if err != nil {
			return err
		}
		var ghosts []int64
		var owners []int
		if c.Rank() == 0 {
			// 5 is new, 2 is already a ghost, 1 is owned
			ghosts, owners = []int64{5, 2, 1, 5}, []int{2, 1, 0, 2}
		}
		ext, err := m.Extend(ctx, ghosts, owners)
		if err != nil {
			return err
		}
		assert.Equal(t, m.SizeLocal(), ext.SizeLocal())
		switch c.Rank() {
		case 0:
			assert.Equal(t, []int64{2, 5}, ext.Ghosts())
			assert.Equal(t, []int{1, 2}, ext.Owners())
		case 2:
			assert.Equal(t, []int{0}, ext.DestRanks(1))
		}
		// The original map is untouched
		assert.Equal(t, ringGhosts[c.Rank()], m.Ghosts())
		return nil
	})
	require.NoError(t, err)
}

func TestIndexMapInvalidGhosts(t *testing.T) {
	cases := []struct {
		name   string
		ghosts []int64
		owners []int
	}{
		{"owner out of range", []int64{2}, []int{7}},
		{"ghost outside owner range", []int64{3}, []int{1}},
		{"length mismatch", []int64{2}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := comm.Run(context.Background(), 2, func(ctx context.Context, c *comm.Comm) error {
				if c.Rank() == 0 {
					_, err := New(ctx, c, 2, tc.ghosts, tc.owners)
					return err
				}
				_, err := New(ctx, c, 1, nil, nil)
				return err
			})
			assert.Error(t, err)
		})
	}
}

func TestIndexMapBadArray(t *testing.T) {
	err := comm.Run(context.Background(), 1, func(ctx context.Context, c *comm.Comm) error {
		m, err := New(ctx, c, 3, nil, nil)
		if err != nil {
			return err
		}
		return m.ScatterForward(ctx, make([]float64, 2), 1)
	})
	assert.Error(t, err)
}
