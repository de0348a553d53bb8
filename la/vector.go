package la

import (
	"context"

	"github.com/notargets/DGMPC/indexmap"
)

// Vector is a distributed vector with ghost entries. Values of local block i
// are Array()[i*bs : (i+1)*bs].
type Vector struct {
	imap *indexmap.IndexMap
	bs   int
	x    []float64
}

// NewVector creates a zero vector over the owned and ghost blocks of imap.
func NewVector(imap *indexmap.IndexMap, bs int) *Vector {
	return &Vector{
		imap: imap,
		bs:   bs,
		x:    make([]float64, (imap.SizeLocal()+imap.NumGhosts())*bs),
	}
}

// IndexMap returns the block index map.
func (v *Vector) IndexMap() *indexmap.IndexMap { return v.imap }

// BlockSize returns the number of values per block.
func (v *Vector) BlockSize() int { return v.bs }

// Array returns the owned and ghost values.
func (v *Vector) Array() []float64 { return v.x }

// Owned returns the owned values.
func (v *Vector) Owned() []float64 { return v.x[:v.imap.SizeLocal()*v.bs] }

// ScatterForward overwrites ghost values with the owners' values.
func (v *Vector) ScatterForward(ctx context.Context) error {
	return v.imap.ScatterForward(ctx, v.x, v.bs)
}

// ScatterReverseAdd accumulates ghost values into their owners.
func (v *Vector) ScatterReverseAdd(ctx context.Context) error {
	return v.imap.ScatterReverseAdd(ctx, v.x, v.bs)
}
