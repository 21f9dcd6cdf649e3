package facade

import (
	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/logstore"
	"github.com/loykin/pmdeck/internal/metrics"
	"github.com/loykin/pmdeck/internal/registry"
)

// StartedAtLayout is the wire format of ProcessInfo.StartedAt.
const StartedAtLayout = "2006-01-02 15:04:05"

// ProcessInfo is one row of the process list.
type ProcessInfo struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	CPU          float64 `json:"cpu"`
	Memory       uint64  `json:"memory"`
	Uptime       int64   `json:"uptime"` // seconds
	StartedAt    string  `json:"startedAt,omitempty"`
	Runtime      string  `json:"runtime"`
	PID          int     `json:"pid"`
	User         string  `json:"user"`
	Command      string  `json:"command"`
	Script       string  `json:"script"`
	Cwd          string  `json:"cwd,omitempty"`
	Args         string  `json:"args,omitempty"`
	Instances    int     `json:"instances"`
	AutoStart    bool    `json:"autoStart"`
	Restarts     int     `json:"restarts"`
	ExitCode     int     `json:"exitCode"`
	LastError    string  `json:"lastError,omitempty"`
	InstancePIDs []int   `json:"instancePIDs,omitempty"`
}

// ProcessConfig is the body of an add request.
type ProcessConfig struct {
	Name      string `json:"name"`
	Script    string `json:"script"`
	Cwd       string `json:"cwd"`
	Args      string `json:"args"`
	AutoStart bool   `json:"autoStart"`
	Instances int    `json:"instances"`
}

// ProcessPatch is the body of an update request; absent fields are kept.
type ProcessPatch = registry.Patch

type LogData = logstore.Logs

type MetricsData = metrics.Snapshot

type Version struct {
	Version   string `json:"version"`
	Installed bool   `json:"installed"`
	Message   string `json:"message"`
}

// OperationResult is returned by every mutating call.
type OperationResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	Code    errs.Code `json:"code,omitempty"`
	ID      int64     `json:"id,omitempty"`
}
