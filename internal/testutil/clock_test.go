package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_StartsAtZero(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())
}

func TestDeterministicClock_Step(t *testing.T) {
	clock := NewDeterministicClockFrom(1000, 250)

	assert.Equal(t, int64(1250), clock.Next())
	assert.Equal(t, int64(1500), clock.Next())

	clock.Reset()
	assert.Equal(t, int64(1000), clock.Current())
	assert.Equal(t, int64(1250), clock.Next())
}

func TestDeterministicClock_NonPositiveStep(t *testing.T) {
	clock := NewDeterministicClockFrom(5, 0)
	assert.Equal(t, int64(6), clock.Next())
}

func TestDeterministicClock_Concurrent(t *testing.T) {
	clock := NewDeterministicClock()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Next()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), clock.Current())
}
