package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pmdeck/internal/supervisor"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9615", c.Server.Listen)
	assert.Equal(t, "/api", c.Server.BasePath)
	assert.Equal(t, "sqlite", c.Store.Type)
	assert.True(t, c.Registry.UniqueNames)
	assert.True(t, c.UseOSEnv)
	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, 3*time.Second, c.Supervisor.StopTimeout)
	assert.Equal(t, time.Second, c.Supervisor.KillTimeout)
	assert.Equal(t, supervisor.BusyQueue, c.Supervisor.BusyPolicy)
	assert.Equal(t, supervisor.UpdateRestartAuto, c.Supervisor.UpdateRestart)
	assert.Equal(t, 16, c.Supervisor.QueueSize)
	assert.Equal(t, 1000, c.Logs.MaxLines)
	assert.Equal(t, 10, c.Logs.Rotation.MaxSizeMB)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "pmdeck.toml", `
env = ["NODE_ENV=production"]

[server]
listen = "0.0.0.0:7000"
base_path = "/pm"

[store]
type = "postgres"
dsn = "postgres://u:p@localhost/pm"

[supervisor]
stop_timeout = "750ms"
busy_policy = "reject"
update_restart = "never"
bulk_concurrency = 2

[logs]
max_lines = 50
dir = "/var/log/pmdeck"
max_backups = 9

[log]
level = "debug"
format = "json"

[history]
sinks = ["sqlite:///tmp/h.db", "clickhouse://localhost:9000?table=ev"]
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", c.Server.Listen)
	assert.Equal(t, "/pm", c.Server.BasePath)
	assert.Equal(t, "postgres", c.Store.Type)
	assert.Equal(t, 750*time.Millisecond, c.Supervisor.StopTimeout)
	assert.Equal(t, supervisor.BusyReject, c.Supervisor.BusyPolicy)
	assert.Equal(t, supervisor.UpdateRestartNever, c.Supervisor.UpdateRestart)
	assert.Equal(t, 2, c.Supervisor.BulkConcurrency)
	assert.Equal(t, time.Second, c.Supervisor.KillTimeout, "unset keys keep defaults")
	assert.Equal(t, 50, c.Logs.MaxLines)
	assert.Equal(t, 9, c.Logs.Rotation.MaxBackups)
	assert.Equal(t, "/var/log/pmdeck", c.Logs.Options().Dir)
	assert.Equal(t, "json", c.Log.Format)
	assert.Len(t, c.History.Sinks, 2)
	assert.Equal(t, []string{"NODE_ENV=production"}, c.Env)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PMDECK_SERVER_LISTEN", "127.0.0.1:1234")
	t.Setenv("PMDECK_SUPERVISOR_STOP_TIMEOUT", "9s")
	t.Setenv("PMDECK_STORE_TYPE", "memory")
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", c.Server.Listen)
	assert.Equal(t, 9*time.Second, c.Supervisor.StopTimeout)
	assert.Equal(t, "memory", c.Store.Type)
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"busy policy":    "[supervisor]\nbusy_policy = \"drop\"\n",
		"update restart": "[supervisor]\nupdate_restart = \"sometimes\"\n",
		"timeout":        "[supervisor]\nstop_timeout = \"-1s\"\n",
		"store type":     "[store]\ntype = \"mongo\"\n",
		"log level":      "[log]\nlevel = \"loud\"\n",
		"log format":     "[log]\nformat = \"xml\"\n",
		"tls pair":       "[server]\ncert_file = \"/tmp/c.pem\"\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, t.TempDir(), "c.toml", data)
			_, err := Load(p)
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestGlobalEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "A=1\n#comment\nexport B=\"two\"\n\nC=from-file\n")
	c := &Config{EnvFiles: []string{dotenv}, Env: []string{"C=from-list"}}
	got, err := c.GlobalEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=two", "C=from-file", "C=from-list"}, got)

	c.EnvFiles = []string{filepath.Join(dir, "missing.env")}
	_, err = c.GlobalEnv()
	assert.Error(t, err)
}
