package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerTripsOnceAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(3)
	assert.False(t, b.RecordFailure())
	assert.False(t, b.RecordFailure())
	assert.False(t, b.Aborted())

	assert.True(t, b.RecordFailure())
	assert.True(t, b.Aborted())

	assert.False(t, b.RecordFailure(), "only the tripping call reports true")
	assert.Equal(t, 4, b.Consecutive())
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	b := NewCircuitBreaker(3)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, 0, b.Consecutive())

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.Aborted())
}

func TestCircuitBreakerAbortIsSticky(t *testing.T) {
	b := NewCircuitBreaker(1)
	assert.True(t, b.RecordFailure())
	b.RecordSuccess()
	assert.True(t, b.Aborted())
	assert.Equal(t, 0, b.Consecutive())
}

func TestCircuitBreakerClampsThreshold(t *testing.T) {
	for _, threshold := range []int{0, -5} {
		b := NewCircuitBreaker(threshold)
		assert.True(t, b.RecordFailure(), "threshold %d", threshold)
	}
}

func TestCircuitBreakerConcurrentFailures(t *testing.T) {
	b := NewCircuitBreaker(10)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		trips int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.RecordFailure() {
				mu.Lock()
				trips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, trips)
	assert.Equal(t, 50, b.Consecutive())
}
