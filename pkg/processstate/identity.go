package processstate

import (
	"github.com/core-tools/hsu-uplink/pkg/errors"

	"github.com/shirou/gopsutil/v3/process"
)

// Identity pins a process beyond its pid: CreateTime guards against the pid
// being recycled between resolution and kill.
type Identity struct {
	PID        int32
	CreateTime int64
}

// IdentityResolver maps a pid to a live process identity. Failing to
// resolve is a normal outcome, not an error.
type IdentityResolver interface {
	ResolveIdentity(pid int) (Identity, bool)
}

// ForceKiller terminates a resolved process unconditionally
type ForceKiller interface {
	ForceKill(id Identity) error
}

// ExecutableLocator reports the executable a live pid is running
type ExecutableLocator interface {
	Executable(pid int) (string, bool)
}

// HostProcessTable implements these capabilities on top of gopsutil
type HostProcessTable struct{}

func NewHostProcessTable() *HostProcessTable {
	return &HostProcessTable{}
}

func (HostProcessTable) ResolveIdentity(pid int) (Identity, bool) {
	if pid <= 0 {
		return Identity{}, false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return Identity{}, false
	}
	running, err := p.IsRunning()
	if err != nil || !running {
		return Identity{}, false
	}
	createTime, err := p.CreateTime()
	if err != nil {
		return Identity{}, false
	}
	return Identity{PID: p.Pid, CreateTime: createTime}, true
}

// ForceKill kills the process and any children it forked. A process that
// has already gone away counts as killed.
func (HostProcessTable) ForceKill(id Identity) error {
	p, err := process.NewProcess(id.PID)
	if err != nil {
		if err == process.ErrorProcessNotRunning {
			return nil
		}
		return errors.NewProcessError("failed to open process", err).WithContext("pid", id.PID)
	}

	createTime, err := p.CreateTime()
	if id.CreateTime != 0 && (err != nil || createTime != id.CreateTime) {
		return errors.NewConflictError("pid was reused by another process", nil).WithContext("pid", id.PID)
	}

	if children, err := p.Children(); err == nil {
		for _, child := range children {
			_ = child.Kill()
		}
	}

	if err := p.Kill(); err != nil {
		if running, _ := p.IsRunning(); !running {
			return nil
		}
		return errors.NewProcessError("failed to kill process", err).WithContext("pid", id.PID)
	}
	return nil
}

func (HostProcessTable) Executable(pid int) (string, bool) {
	if pid <= 0 {
		return "", false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", false
	}
	exe, err := p.Exe()
	if err != nil || exe == "" {
		return "", false
	}
	return exe, true
}
