//go:build !windows

package processstate

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessRunning(t *testing.T) {
	running, err := IsProcessRunning(os.Getpid())
	require.NoError(t, err)
	assert.True(t, running)

	_, err = IsProcessRunning(0)
	assert.Error(t, err)
}

func TestHostProcessTable_ResolveAndKill(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "trap '' TERM; while true; do sleep 0.1; done")
	require.NoError(t, cmd.Start())
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	table := NewHostProcessTable()
	id, ok := table.ResolveIdentity(cmd.Process.Pid)
	require.True(t, ok)
	assert.Equal(t, int32(cmd.Process.Pid), id.PID)
	assert.NotZero(t, id.CreateTime)

	require.NoError(t, table.ForceKill(id))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process survived force kill")
	}
}

func TestHostProcessTable_UnresolvablePID(t *testing.T) {
	cmd := exec.Command("/bin/true")
	require.NoError(t, cmd.Run())

	_, ok := NewHostProcessTable().ResolveIdentity(cmd.Process.Pid)
	assert.False(t, ok)

	_, ok = NewHostProcessTable().ResolveIdentity(-1)
	assert.False(t, ok)
}

func TestHostProcessTable_RejectsRecycledPID(t *testing.T) {
	id := Identity{PID: int32(os.Getpid()), CreateTime: 1}

	err := NewHostProcessTable().ForceKill(id)
	assert.Error(t, err)
}

func TestHostProcessTable_Executable(t *testing.T) {
	exe, ok := NewHostProcessTable().Executable(os.Getpid())
	require.True(t, ok)

	self, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, self, exe)

	_, ok = NewHostProcessTable().Executable(-1)
	assert.False(t, ok)
}
