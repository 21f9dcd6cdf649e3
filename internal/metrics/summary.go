package metrics

import "github.com/loykin/pmdeck/internal/state"

// Snapshot is the dashboard summary. It is recomputed on every read.
type Snapshot struct {
	TotalProcesses int     `json:"totalProcesses"`
	Running        int     `json:"running"`
	Errored        int     `json:"errored"`
	Stopped        int     `json:"stopped"`
	TotalMemory    uint64  `json:"totalMemory"`
	TotalCPU       float64 `json:"totalCPU"`
}

// Summarize folds states into a Snapshot. Unknown counts as stopped, so
// running+errored+stopped always equals the total. Only running processes
// contribute resource usage.
func Summarize(states []state.State) Snapshot {
	s := Snapshot{TotalProcesses: len(states)}
	for _, st := range states {
		switch st.Status {
		case state.StatusRunning:
			s.Running++
			s.TotalMemory += st.Memory
			s.TotalCPU += st.CPU
		case state.StatusErrored:
			s.Errored++
		default:
			s.Stopped++
		}
	}
	return s
}
