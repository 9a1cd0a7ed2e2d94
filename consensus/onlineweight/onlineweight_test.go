package onlineweight

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveUsesMaxOfCurrentEMAFloor(t *testing.T) {
	s := New(500)
	assert.Equal(t, uint64(500), s.Effective(100)) // floor wins, no samples yet

	s.Sample(1000)
	assert.Equal(t, uint64(1000), s.EMA())
	assert.Equal(t, uint64(1000), s.Effective(200)) // EMA wins over a dip
}

func TestSampleSmoothsTowardNewValue(t *testing.T) {
	s := NewWithAlpha(0, 2000)
	s.Sample(1000)
	assert.Equal(t, uint64(1000), s.EMA())

	s.Sample(0)
	// ema = 1000*0.8 + 0*0.2 = 800
	assert.Equal(t, uint64(800), s.EMA())
}

func TestRestoreSeedsWithoutTreatingAsSample(t *testing.T) {
	s := New(0)
	s.Restore(5000)
	assert.Equal(t, uint64(5000), s.EMA())
	assert.Equal(t, uint64(5000), s.Effective(1))
}
