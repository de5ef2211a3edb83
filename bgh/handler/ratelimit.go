package handler

import (
	"sync"
	"time"
)

// TokenBucket throttles broadcast processing so a misbehaving unit (or a
// flood on the broadcast port) cannot exhaust the listen loop.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens added per second
	capacity   float64 // burst allowance
	tokens     float64
	lastUpdate time.Time
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(rate, capacity float64) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   capacity,
		tokens:     capacity,
		lastUpdate: time.Now(),
	}
}

// Consume takes one token, reporting false when the bucket is empty.
func (b *TokenBucket) Consume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
