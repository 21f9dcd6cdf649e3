package supervisor

import (
	"fmt"
	"time"
)

// BusyPolicy decides what happens to an operation on a process that is
// already executing one.
type BusyPolicy string

const (
	BusyQueue  BusyPolicy = "queue"
	BusyReject BusyPolicy = "reject"
)

// UpdateRestart decides whether an update of a running process restarts it.
type UpdateRestart string

const (
	UpdateRestartAuto     UpdateRestart = "auto"
	UpdateRestartNever    UpdateRestart = "never"
	UpdateRestartExplicit UpdateRestart = "explicit"
)

const (
	DefaultStopTimeout      = 3 * time.Second
	DefaultKillTimeout      = time.Second
	DefaultOperationTimeout = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultPollInterval     = 5 * time.Second
	DefaultQueueSize        = 16
	DefaultBulkConcurrency  = 8
)

type Options struct {
	StopTimeout      time.Duration `mapstructure:"stop_timeout"`
	KillTimeout      time.Duration `mapstructure:"kill_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	// StartWindow fails a start when a process exits within it. Zero disables.
	StartWindow     time.Duration `mapstructure:"start_window"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BusyPolicy      BusyPolicy    `mapstructure:"busy_policy"`
	QueueSize       int           `mapstructure:"queue_size"`
	UpdateRestart   UpdateRestart `mapstructure:"update_restart"`
	BulkConcurrency int           `mapstructure:"bulk_concurrency"`
}

func DefaultOptions() Options {
	return Options{}.WithDefaults()
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	dur := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	dur(&o.StopTimeout, DefaultStopTimeout)
	dur(&o.KillTimeout, DefaultKillTimeout)
	dur(&o.OperationTimeout, DefaultOperationTimeout)
	dur(&o.RequestTimeout, DefaultRequestTimeout)
	dur(&o.PollInterval, DefaultPollInterval)
	if o.StartWindow < 0 {
		o.StartWindow = 0
	}
	if o.BusyPolicy == "" {
		o.BusyPolicy = BusyQueue
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.UpdateRestart == "" {
		o.UpdateRestart = UpdateRestartAuto
	}
	if o.BulkConcurrency <= 0 {
		o.BulkConcurrency = DefaultBulkConcurrency
	}
	return o
}

// Validate rejects unknown policy names.
func (o Options) Validate() error {
	switch o.BusyPolicy {
	case "", BusyQueue, BusyReject:
	default:
		return fmt.Errorf("unknown busy_policy %q", o.BusyPolicy)
	}
	switch o.UpdateRestart {
	case "", UpdateRestartAuto, UpdateRestartNever, UpdateRestartExplicit:
	default:
		return fmt.Errorf("unknown update_restart %q", o.UpdateRestart)
	}
	return nil
}
