package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_BurstThenEmpty(t *testing.T) {
	b := NewTokenBucket(10, 3)

	// Starts full: the burst allowance is consumable immediately.
	assert.True(t, b.Consume())
	assert.True(t, b.Consume())
	assert.True(t, b.Consume())
	assert.False(t, b.Consume())
}

func TestTokenBucket_Refills(t *testing.T) {
	b := NewTokenBucket(100, 1) // refills fast enough for a test

	assert.True(t, b.Consume())
	assert.False(t, b.Consume())

	assert.Eventually(t, func() bool { return b.Consume() },
		time.Second, 5*time.Millisecond)
}

func TestTokenBucket_CapacityBounded(t *testing.T) {
	b := NewTokenBucket(1000, 2)
	time.Sleep(50 * time.Millisecond) // far more refill time than capacity

	assert.True(t, b.Consume())
	assert.True(t, b.Consume())
	assert.False(t, b.Consume(), "bucket must not accumulate beyond capacity")
}
