// Package sparsity harvests the global sparsity of a full-space problem and
// derives, per participant, the triplet positions that participant owns.
//
// Ownership is decided by the 0-based row of each triplet: a Jacobian entry
// belongs to the participant whose constraint range holds its row, a Hessian
// entry to the participant whose variable range holds its row. With half-open
// ranges that tile the index space, every triplet has exactly one owner.
package sparsity

import (
	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
)

const component = "sparsity"

// Harvester queries the size and coordinate structure of a full-space problem
// once and memoizes the result. It is not safe for concurrent use.
type Harvester struct {
	problem nlp.Problem

	info      nlp.Info
	harvested bool
	structure *Structure
}

// NewHarvester returns a Harvester for p. No call is made until Harvest.
func NewHarvester(p nlp.Problem) *Harvester {
	return &Harvester{problem: p}
}

// Harvest returns the problem's Info, calling Problem.Info only the first time.
func (h *Harvester) Harvest() (nlp.Info, error) {
	const op = "Harvest"

	if h.harvested {
		return h.info, nil
	}

	info, err := h.problem.Info()
	if err != nil {
		return nlp.Info{}, errors.Wrap(err, errors.KindEvaluation, "problem info").
			WithComponent(component).WithOperation(op)
	}
	if info.N < 0 || info.M < 0 || info.NNZJac < 0 || info.NNZHess < 0 {
		return nlp.Info{}, errors.Errorf(errors.KindProblemSizeMismatch,
			"negative size: n=%d m=%d nnz_jac=%d nnz_hess=%d", info.N, info.M, info.NNZJac, info.NNZHess).
			WithComponent(component).WithOperation(op)
	}
	if info.IndexStyle != nlp.CStyle && info.IndexStyle != nlp.FortranStyle {
		return nlp.Info{}, errors.Errorf(errors.KindProblemSizeMismatch, "unknown index style %d", info.IndexStyle).
			WithComponent(component).WithOperation(op)
	}

	h.info = info
	h.harvested = true
	return info, nil
}

// Recheck queries Problem.Info again and fails with ErrProblemSizeMismatch if
// it disagrees with the harvested snapshot. The first call only harvests.
func (h *Harvester) Recheck() error {
	const op = "Recheck"

	if !h.harvested {
		_, err := h.Harvest()
		return err
	}

	info, err := h.problem.Info()
	if err != nil {
		return errors.Wrap(err, errors.KindEvaluation, "problem info").
			WithComponent(component).WithOperation(op)
	}
	if info != h.info {
		return errors.Errorf(errors.KindProblemSizeMismatch,
			"structure changed after harvest: was n=%d m=%d nnz_jac=%d nnz_hess=%d style=%s, now n=%d m=%d nnz_jac=%d nnz_hess=%d style=%s",
			h.info.N, h.info.M, h.info.NNZJac, h.info.NNZHess, h.info.IndexStyle,
			info.N, info.M, info.NNZJac, info.NNZHess, info.IndexStyle).
			WithComponent(component).WithOperation(op)
	}
	return nil
}

// Structure harvests the problem and fetches its full Jacobian and Hessian
// coordinate lists with structure-only calls. Both are fetched once.
func (h *Harvester) Structure() (*Structure, error) {
	const op = "Structure"

	if h.structure != nil {
		return h.structure, nil
	}

	info, err := h.Harvest()
	if err != nil {
		return nil, err
	}

	s := &Structure{
		Info:     info,
		JacRows:  make([]int, info.NNZJac),
		JacCols:  make([]int, info.NNZJac),
		HessRows: make([]int, info.NNZHess),
		HessCols: make([]int, info.NNZHess),
	}

	if info.NNZJac > 0 {
		if err := h.problem.JacobianStructure(s.JacRows, s.JacCols); err != nil {
			return nil, errors.Wrap(err, errors.KindEvaluation, "jacobian structure").
				WithComponent(component).WithOperation(op)
		}
	}
	if info.NNZHess > 0 {
		if err := h.problem.HessianStructure(s.HessRows, s.HessCols); err != nil {
			return nil, errors.Wrap(err, errors.KindEvaluation, "hessian structure").
				WithComponent(component).WithOperation(op)
		}
	}

	if err := s.validate(); err != nil {
		return nil, err.WithComponent(component).WithOperation(op)
	}

	h.structure = s
	return s, nil
}
