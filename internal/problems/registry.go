// Package problems holds reference full-space problems used by the server,
// the derivative checker and the adapter tests.
package problems

import (
	"fmt"
	"sort"

	"github.com/copyleftdev/parnlp/internal/nlp"
)

type constructor func(size int) (nlp.Problem, error)

var registry = map[string]constructor{
	"hs071": func(int) (nlp.Problem, error) { return &HS071{}, nil },
	"chain": func(size int) (nlp.Problem, error) { return NewChain(size) },
}

// New returns a fresh instance of the named problem. size is ignored by
// fixed-size problems.
func New(name string, size int) (nlp.Problem, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem %q (known: %v)", name, Names())
	}
	return ctor(size)
}

// Names lists the registered problems in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
