package metrics

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerSelf(t *testing.T) {
	s := NewSampler()
	pid := os.Getpid()
	u, err := s.Sample(context.Background(), pid)
	require.NoError(t, err)
	assert.Greater(t, u.Memory, uint64(0))
	assert.GreaterOrEqual(t, u.CPU, 0.0)
	assert.Equal(t, 1, s.cached())

	// second sample reuses the handle
	_, err = s.Sample(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, 1, s.cached())

	s.Prune(nil)
	assert.Equal(t, 0, s.cached())
}

func TestSamplerMissingPid(t *testing.T) {
	s := NewSampler()
	_, err := s.Sample(context.Background(), 1<<30)
	assert.Error(t, err)
	s.Forget(1 << 30)
	assert.Equal(t, 0, s.cached())
}

func TestSamplerConcurrentSamples(t *testing.T) {
	s := NewSampler()
	pid := os.Getpid()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				u, err := s.Sample(context.Background(), pid)
				assert.NoError(t, err)
				assert.GreaterOrEqual(t, u.CPU, 0.0)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.cached())
}
