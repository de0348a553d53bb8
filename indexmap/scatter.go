package indexmap

import (
	"context"

	"github.com/notargets/DGMPC/comm"
	"github.com/pkg/errors"
)

// scatterer holds the pick and place indices of a ghost exchange.
// pick[r] lists the owned indices sent to rank r, in the order r requested
// them; place[r] lists the local ghost slots filled from owner r, in the same
// order.
type scatterer struct {
	pick  map[int][]int
	place map[int][]int
}

// PickIndices returns the owned local indices sent to rank r.
func (m *IndexMap) PickIndices(r int) []int { return m.sc.pick[r] }

// PlaceIndices returns the ghost local indices received from rank r.
func (m *IndexMap) PlaceIndices(r int) []int { return m.sc.place[r] }

// ScatterForward copies owned values into the ghost slots of every rank
// ghosting them. x holds bs values per local index.
func (m *IndexMap) ScatterForward(ctx context.Context, x []float64, bs int) error {
	if err := m.checkArray(x, bs); err != nil {
		return err
	}
	g := m.ownerToGhost
	send := make([][]float64, len(g.Destinations()))
	for k, dst := range g.Destinations() {
		send[k] = gather(x, m.sc.pick[dst], bs)
	}
	msgs, err := comm.NeighborAllToAll(ctx, g, send)
	if err != nil {
		return errors.WithMessage(err, "scatter forward")
	}
	for _, msg := range msgs {
		place := m.sc.place[msg.Source]
		if len(msg.Data) != len(place)*bs {
			return errors.Errorf("scatter forward: rank %d sent %d values, expected %d",
				msg.Source, len(msg.Data), len(place)*bs)
		}
		for k, l := range place {
			copy(x[l*bs:(l+1)*bs], msg.Data[k*bs:(k+1)*bs])
		}
	}
	return nil
}

// ScatterReverseAdd adds the ghost values of every rank into the owned
// values they shadow. Ghost values are left unchanged.
func (m *IndexMap) ScatterReverseAdd(ctx context.Context, x []float64, bs int) error {
	if err := m.checkArray(x, bs); err != nil {
		return err
	}
	g := m.ghostToOwner
	send := make([][]float64, len(g.Destinations()))
	for k, dst := range g.Destinations() {
		send[k] = gather(x, m.sc.place[dst], bs)
	}
	msgs, err := comm.NeighborAllToAll(ctx, g, send)
	if err != nil {
		return errors.WithMessage(err, "scatter reverse")
	}
	for _, msg := range msgs {
		pick := m.sc.pick[msg.Source]
		if len(msg.Data) != len(pick)*bs {
			return errors.Errorf("scatter reverse: rank %d sent %d values, expected %d",
				msg.Source, len(msg.Data), len(pick)*bs)
		}
		for k, l := range pick {
			for j := 0; j < bs; j++ {
				x[l*bs+j] += msg.Data[k*bs+j]
			}
		}
	}
	return nil
}

func (m *IndexMap) checkArray(x []float64, bs int) error {
	if bs < 1 {
		return errors.Errorf("invalid block size %d", bs)
	}
	if want := (m.SizeLocal() + m.NumGhosts()) * bs; len(x) != want {
		return errors.Errorf("array has %d values, index map needs %d", len(x), want)
	}
	return nil
}

func gather(x []float64, indices []int, bs int) []float64 {
	buf := make([]float64, 0, len(indices)*bs)
	for _, l := range indices {
		buf = append(buf, x[l*bs:(l+1)*bs]...)
	}
	return buf
}
