package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealth(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHealth(10*time.Minute, 3, t0)

	assert.True(t, h.Check(t0.Add(time.Minute)).Healthy)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		h.Record(boom, t0.Add(time.Duration(i)*time.Second))
	}
	s := h.Check(t0.Add(5 * time.Second))
	assert.False(t, s.Healthy)
	assert.False(t, s.ErrorRateOK)
	assert.True(t, s.LoopRunning)
	assert.Equal(t, 3, s.ConsecutiveErrors)

	h.Record(nil, t0.Add(time.Minute))
	s = h.Check(t0.Add(2 * time.Minute))
	assert.True(t, s.Healthy)
	assert.Equal(t, 3, s.TotalErrors)
	assert.Zero(t, s.ConsecutiveErrors)

	s = h.Check(t0.Add(12 * time.Minute))
	assert.False(t, s.LoopRunning)
	assert.False(t, s.Healthy)
}
