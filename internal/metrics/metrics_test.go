package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	t.Cleanup(func() { regOK.Store(false) })
	return reg
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := freshRegistry(t)
	require.NoError(t, Register(reg))

	IncStart("a")
	IncStart("a")
	IncRestart("a")
	IncStop("a")
	IncExit("a", "errored")
	ObserveOperation("start", 0.25)
	SetStatusCounts(Snapshot{TotalProcesses: 3, Running: 1, Errored: 1, Stopped: 1})
	SetUsage(1, "a", 12.5, 4096)

	assert.Equal(t, 2.0, testutil.ToFloat64(processStarts.WithLabelValues("a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(processExits.WithLabelValues("a", "errored")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(processMemory.WithLabelValues("1", "a")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	want := map[string]bool{
		"pmdeck_process_starts_total":       false,
		"pmdeck_process_restarts_total":     false,
		"pmdeck_process_stops_total":        false,
		"pmdeck_process_exits_total":        false,
		"pmdeck_operation_duration_seconds": false,
		"pmdeck_processes":                  false,
		"pmdeck_process_cpu_percent":        false,
		"pmdeck_process_memory_bytes":       false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = len(mf.GetMetric()) > 0
		}
	}
	for n, ok := range want {
		assert.True(t, ok, "missing samples for %s", n)
	}

	ForgetUsage(1, "a")
	assert.Equal(t, 0, testutil.CollectAndCount(processMemory))
}

func TestHandlerForServesRegistry(t *testing.T) {
	reg := freshRegistry(t)
	IncStart("x")

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(b), "pmdeck_process_starts_total"))
}

func TestConcurrentIncrements(t *testing.T) {
	reg := freshRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart("c")
			IncRestart("c")
			IncStop("c")
		}()
	}
	wg.Wait()
	_, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 50.0, testutil.ToFloat64(processStops.WithLabelValues("c")))
}

func TestHelpersBeforeRegister(t *testing.T) {
	regOK.Store(false)
	IncStart("test")
	IncRestart("test")
	IncStop("test")
	IncExit("test", "stopped")
	ObserveOperation("stop", 1)
	SetStatusCounts(Snapshot{})
	SetUsage(1, "test", 1, 1)
	ForgetUsage(1, "test")
}

type errorRegisterer struct{}

func (errorRegisterer) Register(prometheus.Collector) error { return errors.New("test registration error") }
func (errorRegisterer) MustRegister(...prometheus.Collector) {}
func (errorRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestRegisterError(t *testing.T) {
	regOK.Store(false)
	err := Register(errorRegisterer{})
	require.Error(t, err)
	assert.Equal(t, "test registration error", err.Error())
	assert.False(t, regOK.Load())
}
