//go:build windows

package processstate

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}
	return process.PidExists(int32(pid))
}
