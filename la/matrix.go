package la

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MatrixType selects the storage layout of a Matrix
type MatrixType int

const (
	AIJ  MatrixType = iota // scalar compressed rows
	BAIJ                   // compressed rows of dense bs0 x bs1 blocks
)

func (t MatrixType) String() string {
	switch t {
	case AIJ:
		return "aij"
	case BAIJ:
		return "baij"
	}
	return fmt.Sprintf("MatrixType(%d)", int(t))
}

// Matrix is the locally owned row slab of a distributed matrix. Rows are the
// owned scalar rows, columns the local scalar columns of the pattern
// (owned, ghosts, then column ghosts appended during pattern assembly).
// Only entries in the pattern can be set.
type Matrix struct {
	typ     MatrixType
	pattern *SparsityPattern
	bs      [2]int
	rows    int
	cols    int

	// AIJ: scalar CSR; values alias csr's data
	csr *sparse.CSR

	// CSR layout of the stored values. For BAIJ these index blocks.
	indptr, indices []int
	values          []float64
}

// NewMatrix allocates a zero matrix with the nonzero structure of an
// assembled pattern.
func NewMatrix(p *SparsityPattern, typ MatrixType) (*Matrix, error) {
	if !p.Assembled() {
		return nil, errors.New("matrix requires an assembled sparsity pattern")
	}
	var (
		g        = p.Graph()
		bs0, bs1 = p.BlockSize(0), p.BlockSize(1)
		m        = &Matrix{
			typ:     typ,
			pattern: p,
			bs:      [2]int{bs0, bs1},
			rows:    g.NumNodes() * bs0,
			cols:    p.NumColumns() * bs1,
		}
	)
	switch typ {
	case AIJ:
		m.indptr = make([]int, m.rows+1)
		m.indices = make([]int, 0, len(g.Array())*bs0*bs1)
		for br := 0; br < g.NumNodes(); br++ {
			for i := 0; i < bs0; i++ {
				for _, bc := range g.Links(br) {
					for j := 0; j < bs1; j++ {
						m.indices = append(m.indices, bc*bs1+j)
					}
				}
				m.indptr[br*bs0+i+1] = len(m.indices)
			}
		}
		m.values = make([]float64, len(m.indices))
		m.csr = sparse.NewCSR(m.rows, m.cols, m.indptr, m.indices, m.values)
	case BAIJ:
		m.indptr = append([]int(nil), g.Offsets()...)
		m.indices = append([]int(nil), g.Array()...)
		m.values = make([]float64, len(m.indices)*bs0*bs1)
	default:
		return nil, errors.Errorf("unknown matrix type %s", typ)
	}
	return m, nil
}

// Type returns the storage layout.
func (m *Matrix) Type() MatrixType { return m.typ }

// Pattern returns the sparsity pattern the matrix was allocated from.
func (m *Matrix) Pattern() *SparsityPattern { return m.pattern }

// Dims returns the number of local scalar rows and columns.
func (m *Matrix) Dims() (int, int) { return m.rows, m.cols }

// NNZ returns the number of stored scalar entries.
func (m *Matrix) NNZ() int { return len(m.values) }

// position returns the index into values of entry (i, j), or -1.
func (m *Matrix) position(i, j int) int {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return -1
	}
	var row, col = i, j
	if m.typ == BAIJ {
		row, col = i/m.bs[0], j/m.bs[1]
	}
	lo, hi := m.indptr[row], m.indptr[row+1]
	k := lo + sort.SearchInts(m.indices[lo:hi], col)
	if k == hi || m.indices[k] != col {
		return -1
	}
	if m.typ == BAIJ {
		return k*m.bs[0]*m.bs[1] + (i%m.bs[0])*m.bs[1] + j%m.bs[1]
	}
	return k
}

// At returns entry (i, j); entries outside the pattern are zero.
func (m *Matrix) At(i, j int) float64 {
	if k := m.position(i, j); k >= 0 {
		return m.values[k]
	}
	return 0
}

// Has reports whether (i, j) is in the nonzero structure.
func (m *Matrix) Has(i, j int) bool { return m.position(i, j) >= 0 }

// Add adds v to entry (i, j), which must be in the pattern.
func (m *Matrix) Add(i, j int, v float64) error {
	k := m.position(i, j)
	if k < 0 {
		return errors.Errorf("entry (%d, %d) is not in the sparsity pattern", i, j)
	}
	m.values[k] += v
	return nil
}

// Block returns the dense bs0 x bs1 block (br, bc) of a BAIJ matrix, or nil
// when the block is not stored. The view shares memory with m.
func (m *Matrix) Block(br, bc int) *mat.Dense {
	if m.typ != BAIJ {
		return nil
	}
	k := m.position(br*m.bs[0], bc*m.bs[1])
	if k < 0 {
		return nil
	}
	return mat.NewDense(m.bs[0], m.bs[1], m.values[k:k+m.bs[0]*m.bs[1]])
}

// CSR returns the matrix in scalar compressed row form. For AIJ storage the
// result shares memory with m.
func (m *Matrix) CSR() *sparse.CSR {
	if m.typ == AIJ {
		return m.csr
	}
	var (
		bs0, bs1 = m.bs[0], m.bs[1]
		indptr   = make([]int, m.rows+1)
		indices  = make([]int, 0, len(m.values))
		values   = make([]float64, 0, len(m.values))
	)
	for br := 0; br+1 < len(m.indptr); br++ {
		for i := 0; i < bs0; i++ {
			for k := m.indptr[br]; k < m.indptr[br+1]; k++ {
				for j := 0; j < bs1; j++ {
					indices = append(indices, m.indices[k]*bs1+j)
					values = append(values, m.values[k*bs0*bs1+i*bs1+j])
				}
			}
			indptr[br*bs0+i+1] = len(indices)
		}
	}
	return sparse.NewCSR(m.rows, m.cols, indptr, indices, values)
}
