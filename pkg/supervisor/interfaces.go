package supervisor

import (
	"io"

	"github.com/core-tools/hsu-uplink/pkg/logging"
	"github.com/core-tools/hsu-uplink/pkg/process"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"
)

// Materializer writes the artifacts the child needs for a configuration
type Materializer interface {
	Materialize(config *uplinkconfig.Configuration) error
}

// Child is a spawned uplink process; process.Handle implements it
type Child interface {
	PID() int
	Stdin() io.Writer
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Done() <-chan struct{}
	Exited() bool
	ExitCode() int
	RequestTermination() error
	Release() error
}

type Spawner interface {
	Spawn(execution process.ExecutionConfig) (Child, error)
}

// StdinAttacher receives the running child's stdin; telemetry.Channel implements it
type StdinAttacher interface {
	Attach(w io.Writer)
	Detach()
}

// PIDFile records the running child's pid; processfile.Layout implements it
type PIDFile interface {
	WritePIDFile(pid int) error
	ReadPIDFile() (int, error)
	RemovePIDFile() error
}

// ProcessSpawner launches real processes through the process package
type ProcessSpawner struct {
	logger logging.Logger
}

func NewProcessSpawner(logger logging.Logger) *ProcessSpawner {
	return &ProcessSpawner{logger: logger}
}

func (s *ProcessSpawner) Spawn(execution process.ExecutionConfig) (Child, error) {
	handle, err := process.Spawn(execution, s.logger)
	if err != nil {
		return nil, err
	}
	return handle, nil
}
