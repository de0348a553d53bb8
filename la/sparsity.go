// Package la provides the distributed sparsity pattern, matrix and vector
// containers that assembly writes into.
package la

import (
	"context"
	"sort"
	"time"

	"github.com/notargets/DGMPC/comm"
	"github.com/notargets/DGMPC/graph"
	"github.com/notargets/DGMPC/indexmap"
	"github.com/notargets/DGMPC/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SparsityPattern collects the nonzero block positions of a distributed
// matrix. Rows are indexed by the local blocks (owned and ghost) of the row
// index map, columns by the local blocks of the column index map. Assemble
// ships ghost rows to their owners; afterwards only owned rows remain and
// columns may include ghosts the column index map did not know about.
type SparsityPattern struct {
	comm *comm.Comm
	maps [2]*indexmap.IndexMap
	bs   [2]int

	cache [][]int // per local row, unsorted, while inserting

	assembled       bool
	graph           *graph.AdjacencyList
	colGhosts       []int64
	colGhostOwners  []int
	colGhostIndices map[int64]int
}

// NewSparsityPattern creates an empty pattern over the given row and column
// index maps and block sizes.
func NewSparsityPattern(c *comm.Comm, maps [2]*indexmap.IndexMap, bs [2]int) *SparsityPattern {
	return &SparsityPattern{
		comm:  c,
		maps:  maps,
		bs:    bs,
		cache: make([][]int, maps[0].SizeLocal()+maps[0].NumGhosts()),
	}
}

// Insert adds every (row, col) pair of rows x cols. Indices are local blocks.
func (p *SparsityPattern) Insert(rows, cols []int) error {
	if p.assembled {
		return errors.New("cannot insert into an assembled sparsity pattern")
	}
	var numCols = p.maps[1].SizeLocal() + p.maps[1].NumGhosts()
	for _, c := range cols {
		if c < 0 || c >= numCols {
			return errors.Errorf("column block %d out of range [0, %d)", c, numCols)
		}
	}
	for _, r := range rows {
		if r < 0 || r >= len(p.cache) {
			return errors.Errorf("row block %d out of range [0, %d)", r, len(p.cache))
		}
		p.cache[r] = append(p.cache[r], cols...)
	}
	return nil
}

// Assemble collectively moves ghost rows to their owners and compresses the
// owned rows. Columns of received rows unknown to the column index map are
// appended as new column ghosts.
func (p *SparsityPattern) Assemble(ctx context.Context) error {
	if p.assembled {
		return errors.New("sparsity pattern is already assembled")
	}
	defer func(start time.Time) {
		metrics.PatternAssembleSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())

	var (
		rowMap    = p.maps[0]
		colMap    = p.maps[1]
		sizeLocal = rowMap.SizeLocal()
		g         = rowMap.GhostToOwnerComm()
		dest      = make(map[int]int, len(g.Destinations()))
		send      = make([][]int64, len(g.Destinations()))
	)
	for k, r := range g.Destinations() {
		dest[r] = k
	}
	// Ghost row wire format: global row, column count, then (global column,
	// owner) per column
	for i := sizeLocal; i < len(p.cache); i++ {
		cols := p.cache[i]
		if len(cols) == 0 {
			continue
		}
		k := dest[rowMap.Owner(i)]
		row := rowMap.LocalToGlobal([]int{i})[0]
		buf := append(send[k], row, int64(len(cols)))
		globals := colMap.LocalToGlobal(cols)
		for j, c := range cols {
			buf = append(buf, globals[j], int64(colMap.Owner(c)))
		}
		send[k] = buf
	}

	msgs, err := comm.NeighborAllToAll(ctx, g, send)
	if err != nil {
		return errors.WithMessage(err, "sending ghost rows")
	}

	p.colGhostIndices = make(map[int64]int)
	var (
		numCols = colMap.SizeLocal() + colMap.NumGhosts()
		rank    = p.comm.Rank()
		rows    = p.cache[:sizeLocal]
	)
	for _, msg := range msgs {
		data := msg.Data
		for pos := 0; pos < len(data); {
			if pos+2 > len(data) {
				return errors.Errorf("truncated ghost row from rank %d", msg.Source)
			}
			row, n := data[pos], int(data[pos+1])
			pos += 2
			if pos+2*n > len(data) {
				return errors.Errorf("truncated ghost row %d from rank %d", row, msg.Source)
			}
			lr, ok := rowMap.GlobalToLocal(row)
			if !ok || lr >= sizeLocal {
				return errors.Errorf("rank %d sent row %d, which rank %d does not own",
					msg.Source, row, rank)
			}
			for j := 0; j < n; j++ {
				col, owner := data[pos+2*j], int(data[pos+2*j+1])
				lc, ok := colMap.GlobalToLocal(col)
				if !ok {
					if lc, ok = p.colGhostIndices[col]; !ok {
						lc = numCols + len(p.colGhosts)
						p.colGhostIndices[col] = lc
						p.colGhosts = append(p.colGhosts, col)
						p.colGhostOwners = append(p.colGhostOwners, owner)
					}
				}
				rows[lr] = append(rows[lr], lc)
			}
			pos += 2 * n
		}
	}

	// Sort and deduplicate each owned row
	var offsets = make([]int, sizeLocal+1)
	for i, cols := range rows {
		sort.Ints(cols)
		cols = compact(cols)
		rows[i] = cols
		offsets[i+1] = offsets[i] + len(cols)
	}
	var data = make([]int, offsets[sizeLocal])
	for i, cols := range rows {
		copy(data[offsets[i]:], cols)
	}
	p.graph = graph.NewAdjacencyList(data, offsets)
	p.cache = nil
	p.assembled = true

	log.WithFields(log.Fields{
		"rank":      rank,
		"rows":      sizeLocal,
		"nnz":       len(data),
		"newGhosts": len(p.colGhosts),
	}).Debug("assembled sparsity pattern")
	return nil
}

func compact(s []int) []int {
	if len(s) == 0 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Assembled reports whether Assemble has completed.
func (p *SparsityPattern) Assembled() bool { return p.assembled }

// Columns returns the sorted column blocks of local row r. Before assembly
// it includes duplicates and covers ghost rows; afterwards only owned rows
// exist.
func (p *SparsityPattern) Columns(r int) []int {
	if p.assembled {
		return p.graph.Links(r)
	}
	return p.cache[r]
}

// Graph returns the owned row -> column block adjacency of an assembled pattern.
func (p *SparsityPattern) Graph() *graph.AdjacencyList { return p.graph }

// NumNonzeros returns the number of nonzero blocks of an assembled pattern.
func (p *SparsityPattern) NumNonzeros() int {
	if p.graph == nil {
		return 0
	}
	return len(p.graph.Array())
}

// ColumnGhosts returns the global indices of column blocks appended during assembly.
func (p *SparsityPattern) ColumnGhosts() []int64 { return p.colGhosts }

// ColumnGhostOwners returns the owner of each column ghost appended during assembly.
func (p *SparsityPattern) ColumnGhostOwners() []int { return p.colGhostOwners }

// NumColumns returns the number of local column blocks, including column
// ghosts appended during assembly.
func (p *SparsityPattern) NumColumns() int {
	return p.maps[1].SizeLocal() + p.maps[1].NumGhosts() + len(p.colGhosts)
}

// ColumnGlobal returns the global index of local column block c.
func (p *SparsityPattern) ColumnGlobal(c int) int64 {
	n := p.maps[1].SizeLocal() + p.maps[1].NumGhosts()
	if c >= n {
		return p.colGhosts[c-n]
	}
	return p.maps[1].LocalToGlobal([]int{c})[0]
}

// IndexMap returns the row (dim 0) or column (dim 1) index map.
func (p *SparsityPattern) IndexMap(dim int) *indexmap.IndexMap { return p.maps[dim] }

// BlockSize returns the row (dim 0) or column (dim 1) block size.
func (p *SparsityPattern) BlockSize(dim int) int { return p.bs[dim] }

// Comm returns the communicator of the pattern.
func (p *SparsityPattern) Comm() *comm.Comm { return p.comm }
