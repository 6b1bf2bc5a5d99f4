package nlp

import (
	"sort"

	"github.com/copyleftdev/parnlp/internal/errors"
)

// Partition identifies one participant and the half-open, 0-based variable
// and constraint ranges it owns. Ranges are 0-based whatever the IndexStyle.
type Partition struct {
	NumProc int `json:"num_proc"`
	ProcID  int `json:"proc_id"`
	NFirst  int `json:"n_first"`
	NLast   int `json:"n_last"`
	MFirst  int `json:"m_first"`
	MLast   int `json:"m_last"`
}

// Whole returns the single-participant partition covering the full problem.
func Whole(info Info) Partition {
	return Partition{NumProc: 1, ProcID: 0, NFirst: 0, NLast: info.N, MFirst: 0, MLast: info.M}
}

// NumVars returns the number of variables the participant owns.
func (p Partition) NumVars() int { return p.NLast - p.NFirst }

// NumCons returns the number of constraints the participant owns.
func (p Partition) NumCons() int { return p.MLast - p.MFirst }

// OwnsVar reports whether 0-based variable i lies in [NFirst, NLast).
func (p Partition) OwnsVar(i int) bool { return i >= p.NFirst && i < p.NLast }

// OwnsCon reports whether 0-based constraint j lies in [MFirst, MLast).
func (p Partition) OwnsCon(j int) bool { return j >= p.MFirst && j < p.MLast }

// IsWhole reports whether p is the single participant owning everything.
func (p Partition) IsWhole(info Info) bool {
	return p == Whole(info)
}

// Validate checks that p is well formed and lies within the global bounds of
// info. A single participant cannot prove that the ranges of all participants
// tile the problem; CheckTiling does that when every partition is known.
func (p Partition) Validate(info Info) error {
	switch {
	case p.NumProc < 1:
		return errors.Errorf(errors.KindPartitionGap, "num_proc %d < 1", p.NumProc)
	case p.ProcID < 0 || p.ProcID >= p.NumProc:
		return errors.Errorf(errors.KindPartitionGap, "proc_id %d outside [0,%d)", p.ProcID, p.NumProc)
	case p.NFirst < 0 || p.NFirst > p.NLast || p.NLast > info.N:
		return errors.Errorf(errors.KindPartitionGap, "variable range [%d,%d) outside [0,%d)", p.NFirst, p.NLast, info.N)
	case p.MFirst < 0 || p.MFirst > p.MLast || p.MLast > info.M:
		return errors.Errorf(errors.KindPartitionGap, "constraint range [%d,%d) outside [0,%d)", p.MFirst, p.MLast, info.M)
	}
	return nil
}

// CheckTiling verifies that parts holds exactly one partition per proc id and
// that their ranges tile [0, info.N) and [0, info.M) with no gap or overlap.
func CheckTiling(info Info, parts []Partition) error {
	if len(parts) == 0 {
		return errors.New(errors.KindPartitionGap, "no partitions")
	}

	numProc := parts[0].NumProc
	seen := make([]bool, len(parts))
	for _, p := range parts {
		if err := p.Validate(info); err != nil {
			return err
		}
		if p.NumProc != numProc || numProc != len(parts) {
			return errors.Errorf(errors.KindPartitionGap, "%d partitions for num_proc %d", len(parts), p.NumProc)
		}
		if seen[p.ProcID] {
			return errors.Errorf(errors.KindPartitionGap, "proc_id %d appears twice", p.ProcID)
		}
		seen[p.ProcID] = true
	}

	if err := tiles("variable", info.N, parts, func(p Partition) (int, int) { return p.NFirst, p.NLast }); err != nil {
		return err
	}
	return tiles("constraint", info.M, parts, func(p Partition) (int, int) { return p.MFirst, p.MLast })
}

func tiles(what string, total int, parts []Partition, rng func(Partition) (int, int)) error {
	spans := make([][2]int, 0, len(parts))
	for _, p := range parts {
		first, last := rng(p)
		if first == last {
			continue
		}
		spans = append(spans, [2]int{first, last})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	next := 0
	for _, s := range spans {
		if s[0] > next {
			return errors.Errorf(errors.KindPartitionGap, "%s indices [%d,%d) are not owned", what, next, s[0])
		}
		if s[0] < next {
			return errors.Errorf(errors.KindPartitionGap, "%s indices [%d,%d) are owned twice", what, s[0], min(next, s[1]))
		}
		next = s[1]
	}
	if next != total {
		return errors.Errorf(errors.KindPartitionGap, "%s indices [%d,%d) are not owned", what, next, total)
	}
	return nil
}
