package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pmdeck/internal/logger"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("sink down")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventStarted, 3, "api")
	b := NewEvent(EventStarted, 3, "api")
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(3), a.ProcessID)
	assert.WithinDuration(t, time.Now(), a.OccurredAt, time.Second)
}

func TestExporterDeliversToAllSinks(t *testing.T) {
	good, bad := &memSink{}, &memSink{fail: true}
	x := NewExporter(logger.Discard(), 8, bad, good)
	for i := 0; i < 3; i++ {
		x.Export(NewEvent(EventStarted, int64(i), "p"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, x.Close(ctx))

	assert.Len(t, good.events, 3)
	assert.True(t, good.closed)
	assert.True(t, bad.closed)

	// export after close is ignored
	x.Export(NewEvent(EventStopped, 9, "p"))
}

func TestSQLSinkSQLite(t *testing.T) {
	s, err := NewSQLSinkFromDSN("sqlite://:memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	e := NewEvent(EventExited, 5, "worker")
	e.PID, e.Status, e.ExitCode, e.Message = 123, "errored", 2, "exit status 2"
	require.NoError(t, s.Send(ctx, e))
	require.NoError(t, s.Send(ctx, NewEvent(EventStarted, 5, "worker")))
	require.NoError(t, s.Send(ctx, NewEvent(EventStarted, 6, "other")))

	n, err := s.Count(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// event ids are unique
	assert.Error(t, s.Send(ctx, e))
}

func TestSQLSinkEmptyDSN(t *testing.T) {
	_, err := NewSQLSinkFromDSN("  ")
	assert.Error(t, err)
}
