package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRepository(t *testing.T) {
	kiosks := map[string]bool{"k1": true, "k2": true}
	r := NewMemoryRepository(func(ctx context.Context, kioskID string) (bool, error) {
		return kiosks[kioskID], nil
	})
	testRepository(t, r)
}

func TestFilter_Matches(t *testing.T) {
	s := newSession("s1", "k1", t0)
	from, to := t0, t0.Add(1)
	assert.True(t, Filter{KioskID: "k1", StartedFrom: &from, StartedTo: &to}.Matches(s), "from is inclusive")
	assert.False(t, Filter{StartedTo: &from}.Matches(s), "to is exclusive")
	assert.False(t, Filter{KioskID: "k2"}.Matches(s), "kiosk mismatch")
}
