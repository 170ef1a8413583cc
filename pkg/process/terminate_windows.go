//go:build windows

package process

import (
	"os"
)

// SendTerminationSignal has no graceful equivalent for a windowless child,
// so the process is killed outright.
func SendTerminationSignal(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
