package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
)

// DefaultLinkerPath is the dynamic linker used to launch binaries that the
// kernel refuses to exec directly, e.g. from noexec app storage.
const DefaultLinkerPath = "/system/bin/linker"

type ExecutionConfig struct {
	ExecutablePath   string   `yaml:"executable_path"`
	Args             []string `yaml:"args,omitempty"`
	Environment      []string `yaml:"environment,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`

	// LinkerPath, when set, is prefixed to the command line if the direct
	// launch fails.
	LinkerPath string `yaml:"linker_path,omitempty"`
}

// Spawn launches the executable and falls back once to the linker shim.
// Both failures are reported together in a spawn error.
func Spawn(execution ExecutionConfig, logger logging.Logger) (*Handle, error) {
	if err := ValidateExecutionConfig(execution); err != nil {
		return nil, err
	}

	if err := ensureExecutable(execution.ExecutablePath); err != nil {
		logger.Warnf("Could not make executable, path: %s, error: %v", execution.ExecutablePath, err)
	}

	handle, directErr := start(execution.ExecutablePath, execution.Args, execution)
	if directErr == nil {
		logger.Infof("Spawned process, path: %s, pid: %d", execution.ExecutablePath, handle.PID())
		return handle, nil
	}

	logger.Warnf("Direct spawn failed, path: %s, error: %v", execution.ExecutablePath, directErr)

	failures := errors.NewErrorCollection()
	failures.Add(directErr)

	if execution.LinkerPath == "" {
		return nil, errors.NewSpawnError("failed to spawn process", failures.ToError()).
			WithContext("executable_path", execution.ExecutablePath)
	}

	shimArgs := append([]string{execution.ExecutablePath}, execution.Args...)
	handle, shimErr := start(execution.LinkerPath, shimArgs, execution)
	if shimErr == nil {
		logger.Infof("Spawned process via linker, linker: %s, path: %s, pid: %d",
			execution.LinkerPath, execution.ExecutablePath, handle.PID())
		return handle, nil
	}

	failures.Add(shimErr)
	return nil, errors.NewSpawnError("failed to spawn process directly and via linker", failures.ToError()).
		WithContext("executable_path", execution.ExecutablePath).
		WithContext("linker_path", execution.LinkerPath)
}

func start(name string, args []string, execution ExecutionConfig) (*Handle, error) {
	workDir := execution.WorkingDirectory
	if workDir == "" {
		absPath, err := filepath.Abs(execution.ExecutablePath)
		if err != nil {
			return nil, errors.NewIOError("failed to get absolute path", err).WithContext("executable_path", execution.ExecutablePath)
		}
		workDir = filepath.Dir(absPath)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), execution.Environment...)
	setupProcessAttributes(cmd)

	pipes, err := newPipes()
	if err != nil {
		return nil, errors.NewIOError("failed to create pipes", err)
	}
	cmd.Stdin = pipes.childStdin
	cmd.Stdout = pipes.childStdout
	cmd.Stderr = pipes.childStderr

	if err := cmd.Start(); err != nil {
		pipes.closeAll()
		return nil, errors.NewProcessError("failed to start the process", err).WithContext("command", name)
	}
	pipes.closeChildEnds()

	return newHandle(cmd.Process, pipes.stdin, pipes.stdout, pipes.stderr), nil
}

type pipeSet struct {
	stdin, childStdin   *os.File
	stdout, childStdout *os.File
	stderr, childStderr *os.File
}

func newPipes() (*pipeSet, error) {
	p := &pipeSet{}
	var err error
	if p.childStdin, p.stdin, err = os.Pipe(); err != nil {
		return nil, err
	}
	if p.stdout, p.childStdout, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, err
	}
	if p.stderr, p.childStderr, err = os.Pipe(); err != nil {
		p.closeAll()
		return nil, err
	}
	return p, nil
}

func (p *pipeSet) closeChildEnds() {
	for _, f := range []*os.File{p.childStdin, p.childStdout, p.childStderr} {
		if f != nil {
			f.Close()
		}
	}
}

func (p *pipeSet) closeAll() {
	p.closeChildEnds()
	for _, f := range []*os.File{p.stdin, p.stdout, p.stderr} {
		if f != nil {
			f.Close()
		}
	}
}

// ensureExecutable checks if a file is executable and makes it executable if it's not
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}

	if runtime.GOOS == "windows" {
		return nil
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil
	}

	if err := os.Chmod(path, mode|0111); err != nil {
		return errors.NewPermissionError("failed to make file executable", err).WithContext("path", path)
	}
	return nil
}
