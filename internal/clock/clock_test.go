package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := NewFake(start, time.Millisecond)

	assert.Equal(start, fake.Now())
	assert.Equal(start.Add(time.Millisecond), fake.Now())

	fake.Advance(time.Hour)
	assert.Equal(start.Add(time.Hour+2*time.Millisecond), fake.Now())
}

func TestReal(t *testing.T) {
	assert.Equal(t, time.UTC, Real().Now().Location())
}
