package client

// ProcessInfo mirrors one row of GET /processes.
type ProcessInfo struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	CPU          float64 `json:"cpu"`
	Memory       uint64  `json:"memory"`
	Uptime       int64   `json:"uptime"`
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

// AddRequest is the body of POST /processes.
type AddRequest struct {
	Name      string `json:"name"`
	Script    string `json:"script"`
	Cwd       string `json:"cwd,omitempty"`
	Args      string `json:"args,omitempty"`
	AutoStart bool   `json:"autoStart,omitempty"`
	Instances int    `json:"instances,omitempty"`
}

// UpdateRequest is the body of PUT /processes/:id. Nil fields are left as is.
type UpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Script    *string `json:"script,omitempty"`
	Cwd       *string `json:"cwd,omitempty"`
	Args      *string `json:"args,omitempty"`
	Instances *int    `json:"instances,omitempty"`
	AutoStart *bool   `json:"autoStart,omitempty"`
}

type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

type Metrics struct {
	TotalProcesses int     `json:"totalProcesses"`
	Running        int     `json:"running"`
	Errored        int     `json:"errored"`
	Stopped        int     `json:"stopped"`
	TotalMemory    uint64  `json:"totalMemory"`
	TotalCPU       float64 `json:"totalCPU"`
}

type Version struct {
	Version   string `json:"version"`
	Installed bool   `json:"installed"`
	Message   string `json:"message"`
}

// OperationResult is returned by every mutating endpoint.
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
