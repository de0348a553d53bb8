// Package comm provides a message-passing world of ranks with MPI-like
// collective and neighbourhood-collective semantics. Each rank runs on its
// own goroutine. Variable-length buffers are copied one level deep on send;
// anything a payload references beyond that is shared with the receivers,
// so senders must not mutate sent payloads.
package comm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// mailKey addresses exactly one message: every collective consumes a fresh
// sequence number on its communicator, so (comm, seq, src, dst) is unique.
type mailKey struct {
	comm     string
	seq      uint64
	src, dst int
}

// World owns the mailboxes shared by all ranks of a run.
type World struct {
	size  int
	mu    sync.Mutex
	boxes map[mailKey]chan any
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) *World {
	return &World{size: size, boxes: make(map[mailKey]chan any)}
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

// Comm returns the world communicator of rank.
func (w *World) Comm(rank int) *Comm {
	return &Comm{world: w, id: "world", rank: rank}
}

func (w *World) box(k mailKey) chan any {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.boxes[k]
	if !ok {
		ch = make(chan any, 1)
		w.boxes[k] = ch
	}
	return ch
}

func (w *World) drop(k mailKey) {
	w.mu.Lock()
	delete(w.boxes, k)
	w.mu.Unlock()
}

// Run executes fn once per rank of a new world of the given size and waits
// for all of them. The first rank to fail cancels the context of the others,
// which releases any rank blocked in a collective.
func Run(ctx context.Context, size int, fn func(ctx context.Context, c *Comm) error) error {
	if size < 1 {
		return errors.Errorf("invalid world size %d", size)
	}
	var (
		world  = NewWorld(size)
		eg, gc = errgroup.WithContext(ctx)
	)
	for r := 0; r < size; r++ {
		var c = world.Comm(r)
		eg.Go(func() error {
			if err := fn(gc, c); err != nil {
				log.WithFields(log.Fields{"rank": c.Rank(), "err": err}).Debug("rank failed")
				return errors.WithMessagef(err, "rank %d", c.Rank())
			}
			return nil
		})
	}
	return eg.Wait()
}
