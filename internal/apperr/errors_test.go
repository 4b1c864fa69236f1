package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesKind(t *testing.T) {
	err := Wrap(ErrNotFound, "session %s", "s1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "session s1: not found")
}

func TestIsDomain(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{ErrExpired, true},
		{fmt.Errorf("outer: %w", Wrap(ErrAlreadyCompleted, "handoff")), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDomain(tt.err), "IsDomain(%v)", tt.err)
	}
}
