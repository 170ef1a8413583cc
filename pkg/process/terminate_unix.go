//go:build !windows

package process

import (
	"golang.org/x/sys/unix"
)

// SendTerminationSignal sends SIGTERM to the process group, falling back to
// the single process if the group is already gone.
func SendTerminationSignal(pid int) error {
	err := unix.Kill(-pid, unix.SIGTERM)
	if err == unix.ESRCH {
		err = unix.Kill(pid, unix.SIGTERM)
		if err == unix.ESRCH {
			return nil
		}
	}
	return err
}
