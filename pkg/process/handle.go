package process

import (
	"io"
	"os"
	"sync"

	"github.com/core-tools/hsu-uplink/pkg/errors"
)

// Handle owns a spawned child: its pipes, its identity and its exit status.
// Stdout and Stderr belong to whoever drains them and are closed by the
// drainer; Release closes stdin.
type Handle struct {
	process *os.Process
	stdin   *os.File
	stdout  *os.File
	stderr  *os.File

	done      chan struct{}
	state     *os.ProcessState
	waitErr   error
	closeOnce sync.Once
}

func newHandle(process *os.Process, stdin, stdout, stderr *os.File) *Handle {
	h := &Handle{
		process: process,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	go func() {
		h.state, h.waitErr = process.Wait()
		close(h.done)
	}()
	return h
}

func (h *Handle) PID() int {
	return h.process.Pid
}

func (h *Handle) Stdin() io.Writer {
	return h.stdin
}

func (h *Handle) Stdout() io.ReadCloser {
	return h.stdout
}

func (h *Handle) Stderr() io.ReadCloser {
	return h.stderr
}

// Done is closed once the child has exited and been reaped
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited is the non-blocking exit check
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode returns -1 while the child is running or if it was killed by a signal
func (h *Handle) ExitCode() int {
	if !h.Exited() || h.state == nil {
		return -1
	}
	return h.state.ExitCode()
}

// RequestTermination asks the child's process group to exit
func (h *Handle) RequestTermination() error {
	if h.Exited() {
		return nil
	}
	if err := SendTerminationSignal(h.process.Pid); err != nil {
		return errors.NewProcessError("failed to send termination signal", err).WithContext("pid", h.process.Pid)
	}
	return nil
}

// Release closes stdin and frees the OS process handle once the child is gone
func (h *Handle) Release() error {
	var err error
	h.closeOnce.Do(func() {
		collection := errors.NewErrorCollection()
		collection.Add(h.stdin.Close())
		if h.Exited() {
			collection.Add(h.process.Release())
		}
		err = collection.ToError()
	})
	return err
}
