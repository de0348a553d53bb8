package mpc

import (
	"context"
	"time"

	"github.com/notargets/DGMPC/fem"
	"github.com/notargets/DGMPC/la"
	"github.com/notargets/DGMPC/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CreateMatrix collectively creates the matrix of the bilinear form a with
// rows and columns constrained by mpc. All ranks must call it in the same
// order relative to other collectives.
func CreateMatrix(ctx context.Context, a *fem.Form, mpc *MultiPointConstraint, typ la.MatrixType) (*la.Matrix, error) {
	return createMatrix(ctx, a, mpc, mpc, typ)
}

// CreateRectangularMatrix is CreateMatrix with rows constrained by mpc0 and
// columns by mpc1.
func CreateRectangularMatrix(ctx context.Context, a *fem.Form, mpc0, mpc1 *MultiPointConstraint,
	typ la.MatrixType) (*la.Matrix, error) {

	if mpc0 == mpc1 {
		return CreateMatrix(ctx, a, mpc0, typ)
	}
	return createMatrix(ctx, a, mpc0, mpc1, typ)
}

func createMatrix(ctx context.Context, a *fem.Form, mpc0, mpc1 *MultiPointConstraint,
	typ la.MatrixType) (*la.Matrix, error) {

	defer func(start time.Time) {
		metrics.CreateMatrixSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())

	p, err := CreateSparsityPattern(a, mpc0, mpc1)
	if err != nil {
		return nil, err
	}
	if err = p.Assemble(ctx); err != nil {
		return nil, errors.WithMessage(err, "assembling sparsity pattern")
	}
	A, err := la.NewMatrix(p, typ)
	if err != nil {
		return nil, err
	}

	rows, cols := A.Dims()
	log.WithFields(log.Fields{
		"rank": a.Mesh().Comm().Rank(),
		"type": typ,
		"rows": rows,
		"cols": cols,
		"nnz":  A.NNZ(),
	}).Info("created constrained matrix")
	return A, nil
}
