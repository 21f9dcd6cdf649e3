//go:build !windows

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pmdeck"
	"github.com/loykin/pmdeck/internal/config"
	"github.com/loykin/pmdeck/internal/logger"
	"github.com/loykin/pmdeck/pkg/client"
)

func startDaemon(t *testing.T) string {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Store.Type = "memory"
	cfg.Supervisor.StopTimeout = 500 * time.Millisecond
	cfg.Supervisor.PollInterval = time.Hour
	reg := prometheus.NewRegistry()
	sup, err := pmdeck.Open(context.Background(), cfg, logger.Discard(), pmdeck.WithPrometheus(reg, reg))
	require.NoError(t, err)
	srv := httptest.NewServer(sup.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Close(ctx)
	})
	return srv.URL + "/api"
}

func run(t *testing.T, api string, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api-url", api}, args...))
	err := root.Execute()
	return out.String(), err
}

func decodeResult(t *testing.T, out string) client.OperationResult {
	t.Helper()
	var r client.OperationResult
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestAddStartListStop(t *testing.T) {
	api := startDaemon(t)

	out, err := run(t, api, "add", "--name", "sleeper", "--script", "sleep 30")
	require.NoError(t, err, out)
	added := decodeResult(t, out)
	require.True(t, added.Success)
	id := jsonNumber(added.ID)

	out, err = run(t, api, "start", id)
	require.NoError(t, err, out)

	out, err = run(t, api, "list")
	require.NoError(t, err)
	var list []client.ProcessInfo
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "running", list[0].Status)

	out, err = run(t, api, "stop", "--all")
	require.NoError(t, err, out)

	out, err = run(t, api, "get", id)
	require.NoError(t, err)
	var p client.ProcessInfo
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "stopped", p.Status)
}

func TestUpdateSendsOnlyChangedFlags(t *testing.T) {
	api := startDaemon(t)
	out, err := run(t, api, "add", "--name", "svc", "--script", "true", "--instances", "2")
	require.NoError(t, err, out)
	id := jsonNumber(decodeResult(t, out).ID)

	out, err = run(t, api, "update", id, "--name", "renamed", "--restart=false")
	require.NoError(t, err, out)

	out, err = run(t, api, "get", id)
	require.NoError(t, err)
	var p client.ProcessInfo
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "renamed", p.Name)
	assert.Equal(t, 2, p.Instances, "untouched fields are kept")
	assert.Equal(t, "true", p.Script)
}

func TestFailuresExitNonZero(t *testing.T) {
	api := startDaemon(t)

	_, err := run(t, api, "start", "999")
	assert.Error(t, err)

	_, err = run(t, api, "restart")
	assert.ErrorContains(t, err, "exactly one process id or --all")

	_, err = run(t, api, "stop", "1", "--all")
	assert.Error(t, err)

	_, err = run(t, api, "logs", "42")
	assert.Error(t, err)

	_, err = run(t, api, "add", "--name", "x")
	assert.Error(t, err, "script is required")
}

func TestLogsMetricsVersionDelete(t *testing.T) {
	api := startDaemon(t)
	out, err := run(t, api, "add", "--name", "echo", "--script", "sh -c 'echo hi; sleep 30'", "--autostart")
	require.NoError(t, err, out)
	id := jsonNumber(decodeResult(t, out).ID)

	require.Eventually(t, func() bool {
		out, err := run(t, api, "logs", id, "--lines", "5")
		if err != nil {
			return false
		}
		var logs client.Logs
		return json.Unmarshal([]byte(out), &logs) == nil && len(logs.Stdout) == 1
	}, 3*time.Second, 20*time.Millisecond)

	out, err = run(t, api, "metrics")
	require.NoError(t, err)
	var m client.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, 1, m.Running)

	out, err = run(t, api, "version")
	require.NoError(t, err)
	assert.Contains(t, out, pmdeck.Version)

	out, err = run(t, api, "delete", id)
	require.NoError(t, err, out)
	out, err = run(t, api, "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
