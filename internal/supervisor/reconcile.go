package supervisor

import (
	"context"
	"slices"

	"github.com/loykin/pmdeck/internal/metrics"
	"github.com/loykin/pmdeck/internal/state"
)

// Reconcile refreshes resource usage of running processes and asks idle
// units to verify liveness. It only writes resource fields directly; status
// changes are left to the units, so an id with an operation in flight is
// never disturbed. With no ids every process is reconciled.
func (e *Engine) Reconcile(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		ids = e.ids()
	}
	var live []int
	for _, id := range ids {
		s, ok := e.states.Observe(id)
		if !ok {
			continue
		}
		if s.Status == state.StatusRunning && len(s.PIDs) > 0 {
			live = append(live, s.PIDs...)
			usage, err := e.sampler.Sample(ctx, s.PIDs...)
			if err == nil {
				e.states.Record(id, func(cur *state.State) {
					if cur.Status != state.StatusRunning || !slices.Equal(cur.PIDs, s.PIDs) {
						return
					}
					cur.CPU, cur.Memory, cur.User = usage.CPU, usage.Memory, usage.User
				})
				metrics.SetUsage(id, s.Name, usage.CPU, usage.Memory)
			}
		}
		if u := e.unit(id); u != nil {
			select {
			case u.probe <- struct{}{}:
			default:
			}
		}
	}
	if len(ids) == len(e.ids()) {
		e.sampler.Prune(live)
	}
	metrics.SetStatusCounts(e.Snapshot())
}
