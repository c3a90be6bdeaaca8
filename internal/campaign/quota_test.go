package campaign

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotaEnforcesCeiling(t *testing.T) {
	q := NewQuota(2)

	assert.True(t, q.TryAcquire())
	assert.True(t, q.TryAcquire())
	assert.False(t, q.TryAcquire())
	assert.Equal(t, 0, q.Available())

	q.Release()
	assert.True(t, q.TryAcquire())
	assert.Equal(t, 2, q.InUse())
}

func TestQuotaReleaseNeverGoesNegative(t *testing.T) {
	q := NewQuota(1)
	q.Release()
	q.Release()
	assert.Equal(t, 0, q.InUse())
	assert.True(t, q.TryAcquire())
	assert.False(t, q.TryAcquire())
}

func TestQuotaUnderContention(t *testing.T) {
	q := NewQuota(3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	peak := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !q.TryAcquire() {
					continue
				}
				mu.Lock()
				if u := q.InUse(); u > peak {
					peak = u
				}
				mu.Unlock()
				q.Release()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 3)
	assert.Equal(t, 0, q.InUse())
}
