// Package clock abstracts the wall clock so persisted timestamps can be
// made deterministic in tests.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns the system clock, always in UTC.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a manually controlled clock. When Step is non-zero every call to
// Now advances the clock by Step after reading it, so consecutive reads are
// strictly increasing.
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewFake(start time.Time, step time.Duration) *Fake {
	return &Fake{now: start.UTC(), Step: step}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now
	f.now = f.now.Add(f.Step)
	return now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
