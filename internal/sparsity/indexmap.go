package sparsity

import (
	"github.com/copyleftdev/parnlp/internal/errors"
)

// IndexMap is the ascending list of global triplet positions one participant
// owns. Slot i of the participant's local arrays holds global position m[i].
type IndexMap []int

// Gather copies src[m[i]] into dst[i]. src is a full-space value array.
// Nothing is written unless len(dst) == len(m) and src is long enough.
func (m IndexMap) Gather(dst, src []float64) error {
	if err := checkLen("local values", len(dst), len(m)); err != nil {
		return err
	}
	if len(m) > 0 && m[len(m)-1] >= len(src) {
		return errors.Errorf(errors.KindSizeMismatch, "global values: length %d, map needs %d", len(src), m[len(m)-1]+1)
	}
	for i, k := range m {
		dst[i] = src[k]
	}
	return nil
}

// Scatter copies src[i] into dst[m[i]], the inverse of Gather. It is what a
// runtime gathering local slices back into a global array does.
func (m IndexMap) Scatter(dst, src []float64) error {
	if err := checkLen("local values", len(src), len(m)); err != nil {
		return err
	}
	if len(m) > 0 && m[len(m)-1] >= len(dst) {
		return errors.Errorf(errors.KindSizeMismatch, "global values: length %d, map needs %d", len(dst), m[len(m)-1]+1)
	}
	for i, k := range m {
		dst[k] = src[i]
	}
	return nil
}

func checkLen(what string, got, want int) error {
	if got != want {
		return errors.Errorf(errors.KindSizeMismatch, "%s: length %d, want %d", what, got, want)
	}
	return nil
}
