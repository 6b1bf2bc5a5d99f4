// Package adapter lets a full-space nlp.Problem be driven through the
// nlp.PartitionedProblem capability.
//
// Two variants exist, selected by Config.Mode. ModePartitioned wraps the
// problem in a Wrapper that slices every result for the calling participant.
// ModeFull serves a single participant owning the whole problem and forwards
// buffers untouched.
package adapter

import (
	"go.uber.org/zap"

	"github.com/copyleftdev/parnlp/internal/errors"
	"github.com/copyleftdev/parnlp/internal/nlp"
)

// Mode selects the PartitionedProblem variant built by New.
type Mode string

const (
	ModePartitioned Mode = "partitioned"
	ModeFull        Mode = "full"
)

// Config configures New.
type Config struct {
	Mode Mode
	// CheckStructure re-queries the problem size on every structural call and
	// fails if it changed since the first harvest.
	CheckStructure bool
}

// DefaultConfig returns the partitioned mode with structure checks enabled.
func DefaultConfig() Config {
	return Config{Mode: ModePartitioned, CheckStructure: true}
}

// Option customizes an adapter.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *Metrics
	recheck bool
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStructureCheck toggles re-querying the problem size on structural calls.
func WithStructureCheck(on bool) Option {
	return func(o *options) { o.recheck = on }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), recheck: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds the PartitionedProblem variant named by cfg.Mode around p.
// Options given here override cfg.
func New(cfg Config, p nlp.Problem, opts ...Option) (nlp.PartitionedProblem, error) {
	if p == nil {
		return nil, errors.New(errors.KindInvalidArgument, "nil problem").
			WithComponent(component).WithOperation("New")
	}
	opts = append([]Option{WithStructureCheck(cfg.CheckStructure)}, opts...)

	switch cfg.Mode {
	case ModePartitioned, "":
		return NewWrapper(p, opts...), nil
	case ModeFull:
		return newDirect(p, opts...), nil
	default:
		return nil, errors.Errorf(errors.KindInvalidArgument, "unknown mode %q", cfg.Mode).
			WithComponent(component).WithOperation("New")
	}
}
