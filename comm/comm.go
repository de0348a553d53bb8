package comm

import (
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Comm is one rank's handle on a communicator. A Comm is used by exactly one
// goroutine and is not safe for concurrent use.
type Comm struct {
	world    *World
	id       string
	rank     int
	seq      uint64 // collectives issued on this communicator
	children int    // communicators derived from this one
}

// Rank returns the rank of the caller in the communicator.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the communicator.
func (c *Comm) Size() int { return c.world.size }

// ID identifies the communicator; it is identical on every rank.
func (c *Comm) ID() string { return c.id }

// next reserves the tag of the next collective.
func (c *Comm) next() uint64 {
	c.seq++
	return c.seq
}

// derive returns the identifier of a new child communicator. Children are
// numbered in creation order, so all ranks agree as long as they create
// communicators in the same order.
func (c *Comm) derive(kind string) string {
	c.children++
	return fmt.Sprintf("%s/%s%d", c.id, kind, c.children)
}

func (c *Comm) send(tag uint64, dst int, v any) {
	k := mailKey{comm: c.id, seq: tag, src: c.rank, dst: dst}
	c.world.box(k) <- v
}

func (c *Comm) recv(ctx context.Context, tag uint64, src int) (any, error) {
	k := mailKey{comm: c.id, seq: tag, src: src, dst: c.rank}
	ch := c.world.box(k)
	select {
	case v := <-ch:
		c.world.drop(k)
		return v, nil
	case <-ctx.Done():
		return nil, errors.WithMessagef(ctx.Err(), "rank %d waiting on rank %d (%s#%d)",
			c.rank, src, c.id, tag)
	}
}

// Barrier blocks until every rank has entered it.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := AllGather(ctx, c, struct{}{})
	return err
}

// AllToAll sends send[j] to rank j and returns recv with recv[i] from rank i.
// Values are passed as they are, without copying.
func AllToAll[T any](ctx context.Context, c *Comm, send []T) ([]T, error) {
	if len(send) != c.Size() {
		return nil, errors.Errorf("alltoall: send has %d entries, communicator has %d ranks",
			len(send), c.Size())
	}
	tag := c.next()
	for dst := 0; dst < c.Size(); dst++ {
		c.send(tag, dst, send[dst])
	}
	recv := make([]T, c.Size())
	for src := 0; src < c.Size(); src++ {
		v, err := c.recv(ctx, tag, src)
		if err != nil {
			return nil, err
		}
		recv[src] = v.(T)
	}
	return recv, nil
}

// AllToAllV sends the variable-length send[j] to rank j. recv[i] holds the
// data received from rank i. Each send[j] is copied but its elements are not.
func AllToAllV[T any](ctx context.Context, c *Comm, send [][]T) ([][]T, error) {
	if len(send) != c.Size() {
		return nil, errors.Errorf("alltoallv: send has %d entries, communicator has %d ranks",
			len(send), c.Size())
	}
	tag := c.next()
	for dst := 0; dst < c.Size(); dst++ {
		c.send(tag, dst, slices.Clone(send[dst]))
	}
	recv := make([][]T, c.Size())
	for src := 0; src < c.Size(); src++ {
		v, err := c.recv(ctx, tag, src)
		if err != nil {
			return nil, err
		}
		recv[src] = v.([]T)
	}
	return recv, nil
}

// AllGather returns the value contributed by every rank, indexed by rank.
func AllGather[T any](ctx context.Context, c *Comm, v T) ([]T, error) {
	send := make([]T, c.Size())
	for i := range send {
		send[i] = v
	}
	return AllToAll(ctx, c, send)
}
