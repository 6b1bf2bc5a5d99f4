package adapter

// vectorPool keeps full-space scratch vectors between calls so the per-
// iteration evaluations do not allocate once the pool is warm.
type vectorPool struct {
	free [][]float64
}

// get returns a zeroed vector of length n, reusing a pooled one when one is
// large enough.
func (p *vectorPool) get(n int) []float64 {
	for i := len(p.free) - 1; i >= 0; i-- {
		if cap(p.free[i]) >= n {
			v := p.free[i][:n]
			p.free = append(p.free[:i], p.free[i+1:]...)
			clear(v)
			return v
		}
	}
	return make([]float64, n)
}

// put returns vectors to the pool.
func (p *vectorPool) put(vs ...[]float64) {
	p.free = append(p.free, vs...)
}
