package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel *Error
		want     bool
	}{
		{"size mismatch", New(KindSizeMismatch, "buffer too short"), ErrSizeMismatch, true},
		{"partition gap", Errorf(KindPartitionGap, "gap at %d", 3), ErrPartitionGap, true},
		{"wrong kind", New(KindSizeMismatch, "x"), ErrPartitionGap, false},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(KindProblemSizeMismatch, "n changed")), ErrProblemSizeMismatch, true},
		{"plain error", stderrors.New("boom"), ErrEvaluation, false},
		{"unknown kind", New(KindUnknown, "x"), &Error{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Is(tt.err, tt.sentinel))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(KindSizeMismatch, "values: got 5, want 6").
		WithComponent("adapter").
		WithOperation("JacobianValues")
	assert.Equal(t, "adapter.JacobianValues: values: got 5, want 6", err.Error())

	wrapped := Wrap(stderrors.New("nan in x"), KindEvaluation, "objective")
	assert.Equal(t, "objective: nan in x", wrapped.Error())

	bare := &Error{Kind: KindPartitionGap}
	assert.Equal(t, "partition_gap", bare.Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindEvaluation, "ignored"))

	cause := stderrors.New("cause")
	err := Wrap(cause, KindEvaluation, "gradient")
	require.NotNil(t, err)
	assert.Same(t, cause, stderrors.Unwrap(err))
	assert.True(t, Is(err, ErrEvaluation))
	assert.NotEmpty(t, err.StackTrace())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSizeMismatch, KindOf(fmt.Errorf("ctx: %w", New(KindSizeMismatch, "x"))))
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))

	var target *Error
	require.True(t, As(fmt.Errorf("ctx: %w", ErrPartitionGap), &target))
	assert.Equal(t, KindPartitionGap, target.Kind)
}
