package sparsity

import (
	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
)

// Structure is the global coordinate layout of a problem's Jacobian and
// lower-triangular Hessian, in the problem's index style. It is never mutated
// after the harvester builds it.
type Structure struct {
	Info     nlp.Info
	JacRows  []int
	JacCols  []int
	HessRows []int
	HessCols []int
}

func (s *Structure) validate() *errors.Error {
	off := s.Info.IndexStyle.Offset()
	n, m := s.Info.N, s.Info.M

	for k := range s.JacRows {
		r, c := s.JacRows[k]-off, s.JacCols[k]-off
		if r < 0 || r >= m || c < 0 || c >= n {
			return errors.Errorf(errors.KindProblemSizeMismatch,
				"jacobian entry %d at (%d,%d) outside %dx%d", k, s.JacRows[k], s.JacCols[k], m, n)
		}
	}
	for k := range s.HessRows {
		r, c := s.HessRows[k]-off, s.HessCols[k]-off
		if r < 0 || r >= n || c < 0 || c >= n {
			return errors.Errorf(errors.KindProblemSizeMismatch,
				"hessian entry %d at (%d,%d) outside %dx%d", k, s.HessRows[k], s.HessCols[k], n, n)
		}
		if c > r {
			return errors.Errorf(errors.KindProblemSizeMismatch,
				"hessian entry %d at (%d,%d) above the diagonal", k, s.HessRows[k], s.HessCols[k])
		}
	}
	return nil
}

// JacobianMap returns the ascending positions of the Jacobian triplets whose
// row lies in p's constraint range.
func (s *Structure) JacobianMap(p nlp.Partition) (IndexMap, error) {
	if err := p.Validate(s.Info); err != nil {
		return nil, err
	}
	return ownedRows(s.JacRows, s.Info.IndexStyle.Offset(), p.MFirst, p.MLast), nil
}

// HessianMap returns the ascending positions of the Hessian triplets whose
// row lies in p's variable range. An entry whose column falls in another
// participant's range still belongs to the row owner.
func (s *Structure) HessianMap(p nlp.Partition) (IndexMap, error) {
	if err := p.Validate(s.Info); err != nil {
		return nil, err
	}
	return ownedRows(s.HessRows, s.Info.IndexStyle.Offset(), p.NFirst, p.NLast), nil
}

func ownedRows(rows []int, offset, first, last int) IndexMap {
	count := 0
	for _, r := range rows {
		if r -= offset; r >= first && r < last {
			count++
		}
	}

	m := make(IndexMap, 0, count)
	for k, r := range rows {
		if r -= offset; r >= first && r < last {
			m = append(m, k)
		}
	}
	return m
}

// JacobianCoords writes the local coordinates of the entries in m: rows are
// shifted into p's constraint frame, columns stay global because x is always
// passed full-space. Nothing is written unless both buffers match len(m).
func (s *Structure) JacobianCoords(p nlp.Partition, m IndexMap, iRow, jCol []int) error {
	if err := checkLen("jacobian rows", len(iRow), len(m)); err != nil {
		return err
	}
	if err := checkLen("jacobian columns", len(jCol), len(m)); err != nil {
		return err
	}
	for i, k := range m {
		iRow[i] = s.JacRows[k] - p.MFirst
		jCol[i] = s.JacCols[k]
	}
	return nil
}

// HessianCoords writes the local coordinates of the entries in m: rows are
// shifted into p's variable frame, columns stay global.
func (s *Structure) HessianCoords(p nlp.Partition, m IndexMap, iRow, jCol []int) error {
	if err := checkLen("hessian rows", len(iRow), len(m)); err != nil {
		return err
	}
	if err := checkLen("hessian columns", len(jCol), len(m)); err != nil {
		return err
	}
	for i, k := range m {
		iRow[i] = s.HessRows[k] - p.NFirst
		jCol[i] = s.HessCols[k]
	}
	return nil
}

// Verify checks that parts tile the problem and that their Jacobian and
// Hessian maps together claim every triplet position exactly once.
func (s *Structure) Verify(parts ...nlp.Partition) error {
	if err := nlp.CheckTiling(s.Info, parts); err != nil {
		return err
	}

	jac := make([]IndexMap, len(parts))
	hess := make([]IndexMap, len(parts))
	for i, p := range parts {
		var err error
		if jac[i], err = s.JacobianMap(p); err != nil {
			return err
		}
		if hess[i], err = s.HessianMap(p); err != nil {
			return err
		}
	}

	if err := CheckCover(s.Info.NNZJac, jac...); err != nil {
		return errors.Wrap(err, errors.KindPartitionGap, "jacobian")
	}
	if err := CheckCover(s.Info.NNZHess, hess...); err != nil {
		return errors.Wrap(err, errors.KindPartitionGap, "hessian")
	}
	return nil
}

// CheckCover fails with ErrPartitionGap unless maps together hold every
// position in [0, nnz) exactly once.
func CheckCover(nnz int, maps ...IndexMap) error {
	claims := make([]int, nnz)
	for _, m := range maps {
		for _, k := range m {
			if k < 0 || k >= nnz {
				return errors.Errorf(errors.KindPartitionGap, "position %d outside [0,%d)", k, nnz)
			}
			claims[k]++
		}
	}
	for k, c := range claims {
		switch {
		case c == 0:
			return errors.Errorf(errors.KindPartitionGap, "position %d is not owned", k)
		case c > 1:
			return errors.Errorf(errors.KindPartitionGap, "position %d is owned %d times", k, c)
		}
	}
	return nil
}
