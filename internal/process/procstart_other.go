//go:build !linux

package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func startTime(pid int) (int64, error) {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	ms, err := p.CreateTime()
	if err != nil {
		return 0, err
	}
	return ms / 1000, nil
}
