package fem

import (
	"github.com/notargets/DGMPC/la"
	"github.com/notargets/DGMPC/mesh"
	"github.com/pkg/errors"
)

// Form is a variational form reduced to what pattern construction needs:
// its arguments and the cells it integrates over.
type Form struct {
	mesh   *mesh.Mesh
	spaces []*FunctionSpace
	cells  []int
}

// NewForm creates a form with one argument per space (two for a bilinear
// form) integrating over the owned cells.
func NewForm(spaces ...*FunctionSpace) (*Form, error) {
	if len(spaces) == 0 {
		return nil, errors.New("form needs at least one argument space")
	}
	m := spaces[0].Mesh()
	for i, V := range spaces[1:] {
		if V.Mesh() != m {
			return nil, errors.Errorf("argument %d is defined on a different mesh", i+1)
		}
	}
	cells := make([]int, m.NumOwnedCells())
	for c := range cells {
		cells[c] = c
	}
	return &Form{mesh: m, spaces: spaces, cells: cells}, nil
}

// WithCells returns a copy of a integrating over the given local cells.
func (a *Form) WithCells(cells []int) *Form {
	return &Form{mesh: a.mesh, spaces: a.spaces, cells: append([]int(nil), cells...)}
}

// Rank returns the number of arguments.
func (a *Form) Rank() int { return len(a.spaces) }

// Mesh returns the integration mesh.
func (a *Form) Mesh() *mesh.Mesh { return a.mesh }

// FunctionSpaces returns the argument spaces, test space first.
func (a *Form) FunctionSpaces() []*FunctionSpace { return a.spaces }

// Cells returns the cells of the integration domain.
func (a *Form) Cells() []int { return a.cells }

// BuildStandardPattern inserts the cell couplings of a bilinear form, as if
// no constraints were applied.
func BuildStandardPattern(p *la.SparsityPattern, a *Form) error {
	if a.Rank() != 2 {
		return errors.Errorf("cannot build a sparsity pattern for a form of rank %d", a.Rank())
	}
	dm0, dm1 := a.spaces[0].DofMap(), a.spaces[1].DofMap()
	for _, c := range a.cells {
		if err := p.Insert(dm0.CellDofs(c), dm1.CellDofs(c)); err != nil {
			return errors.WithMessagef(err, "cell %d", c)
		}
	}
	return nil
}
