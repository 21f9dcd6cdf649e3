package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRecordObserve(t *testing.T) {
	tb := NewTable()
	tb.Create(2, "b")
	tb.Create(1, "a")
	tb.Create(1, "ignored")

	s, ok := tb.Observe(1)
	require.True(t, ok)
	assert.Equal(t, "a", s.Name)
	assert.Equal(t, StatusStopped, s.Status)

	ok = tb.Record(1, func(s *State) {
		s.Status = StatusRunning
		s.PIDs = []int{10, 11}
		s.PID = 10
	})
	require.True(t, ok)
	assert.False(t, tb.Record(9, func(*State) {}))

	all := tb.ObserveAll()
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, []int{10, 11}, all[0].PIDs)

	// copies must not alias the table
	all[0].PIDs[0] = 99
	again, _ := tb.Observe(1)
	assert.Equal(t, 10, again.PIDs[0])

	tb.Remove(1)
	_, ok = tb.Observe(1)
	assert.False(t, ok)
	assert.Equal(t, 1, tb.Len())
}

func TestUptime(t *testing.T) {
	now := time.Now()
	s := State{Status: StatusRunning, StartedAt: now.Add(-90 * time.Second)}
	assert.Equal(t, 90*time.Second, s.Uptime(now))

	s.Status = StatusStopped
	assert.Zero(t, s.Uptime(now))

	s = State{Status: StatusRunning, StartedAt: now.Add(time.Second)}
	assert.Zero(t, s.Uptime(now))
}

func TestConcurrentAccess(t *testing.T) {
	tb := NewTable()
	for i := int64(1); i <= 8; i++ {
		tb.Create(i, "p")
	}
	var wg sync.WaitGroup
	for i := int64(1); i <= 8; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				tb.Record(id, func(s *State) { s.Restarts++ })
			}
		}(i)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				_ = tb.ObserveAll()
			}
		}()
	}
	wg.Wait()
	for _, s := range tb.ObserveAll() {
		assert.Equal(t, 100, s.Restarts)
	}
}
