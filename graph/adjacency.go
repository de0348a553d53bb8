package graph

import (
	"fmt"
	"strings"
)

// AdjacencyList is a compressed (CSR) node -> links relation.
// Node n links to Array()[Offsets()[n]:Offsets()[n+1]].
// It is never mutated after construction.
type AdjacencyList struct {
	array   []int
	offsets []int
}

// NewAdjacencyList wraps array and offsets without copying.
// len(offsets) must be NumNodes()+1 and offsets[len-1] == len(array).
func NewAdjacencyList(array, offsets []int) *AdjacencyList {
	if len(offsets) == 0 {
		offsets = []int{0}
	}
	if offsets[len(offsets)-1] != len(array) {
		panic(fmt.Sprintf("adjacency offsets end at %d, array has %d entries",
			offsets[len(offsets)-1], len(array)))
	}
	return &AdjacencyList{array: array, offsets: offsets}
}

// FromLists packs a slice of per-node lists.
func FromLists(lists [][]int) *AdjacencyList {
	offsets := make([]int, len(lists)+1)
	for i, l := range lists {
		offsets[i+1] = offsets[i] + len(l)
	}
	array := make([]int, offsets[len(lists)])
	for i, l := range lists {
		copy(array[offsets[i]:], l)
	}
	return &AdjacencyList{array: array, offsets: offsets}
}

// NumNodes returns the number of nodes
func (a *AdjacencyList) NumNodes() int { return len(a.offsets) - 1 }

// Links returns the links of node n. The slice aliases internal storage.
func (a *AdjacencyList) Links(n int) []int {
	return a.array[a.offsets[n]:a.offsets[n+1]:a.offsets[n+1]]
}

// NumLinks returns the number of links of node n
func (a *AdjacencyList) NumLinks(n int) int { return a.offsets[n+1] - a.offsets[n] }

// Array returns the flattened links
func (a *AdjacencyList) Array() []int { return a.array }

// Offsets returns the per-node offsets into Array
func (a *AdjacencyList) Offsets() []int { return a.offsets }

// Equal reports whether both lists have identical offsets and data
func (a *AdjacencyList) Equal(b *AdjacencyList) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.offsets) != len(b.offsets) || len(a.array) != len(b.array) {
		return false
	}
	for i := range a.offsets {
		if a.offsets[i] != b.offsets[i] {
			return false
		}
	}
	for i := range a.array {
		if a.array[i] != b.array[i] {
			return false
		}
	}
	return true
}

// Transpose inverts the relation: target t links to every node n with t in
// Links(n), in increasing n. numTargets bounds the link values.
func (a *AdjacencyList) Transpose(numTargets int) *AdjacencyList {
	// Count incidences per target
	counts := make([]int, numTargets)
	for _, t := range a.array {
		counts[t]++
	}
	offsets := make([]int, numTargets+1)
	for t := 0; t < numTargets; t++ {
		offsets[t+1] = offsets[t] + counts[t]
	}
	// Reuse counts as the write cursor
	for t := range counts {
		counts[t] = 0
	}
	array := make([]int, offsets[numTargets])
	for n := 0; n < a.NumNodes(); n++ {
		for _, t := range a.Links(n) {
			array[offsets[t]+counts[t]] = n
			counts[t]++
		}
	}
	return &AdjacencyList{array: array, offsets: offsets}
}

func (a *AdjacencyList) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<AdjacencyList> with %d nodes\n", a.NumNodes()))
	for n := 0; n < a.NumNodes(); n++ {
		sb.WriteString(fmt.Sprintf("  %d: %v\n", n, a.Links(n)))
	}
	return sb.String()
}
