package server

import (
	"sync"
	"time"
)

// TimeProvider abstracts time so periodic server behavior is testable.
type TimeProvider interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealTimeProvider delegates to the time package.
type RealTimeProvider struct{}

func (p *RealTimeProvider) Now() time.Time {
	return time.Now()
}

func (p *RealTimeProvider) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// MockTimeProvider is a controllable clock for tests.
type MockTimeProvider struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewMockTimeProvider(start time.Time) *MockTimeProvider {
	return &MockTimeProvider{now: start}
}

func (p *MockTimeProvider) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

func (p *MockTimeProvider) After(d time.Duration) <-chan time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := p.now.Add(d)
	if d <= 0 {
		ch <- p.now
		return ch
	}
	p.waiters = append(p.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

// Advance moves the clock forward and fires any timers whose deadlines have
// passed.
func (p *MockTimeProvider) Advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.now = p.now.Add(d)

	remaining := p.waiters[:0]
	for _, w := range p.waiters {
		if !w.deadline.After(p.now) {
			w.ch <- p.now
		} else {
			remaining = append(remaining, w)
		}
	}
	p.waiters = remaining
}
