//go:build !windows

package process

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uplink")
	require.NoError(t, os.WriteFile(path, []byte(body), mode))
	return path
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestSpawn_PipesAndArgs(t *testing.T) {
	exe := writeScript(t, "#!/bin/sh\nread line\necho \"got:$line args:$*\"\necho diag >&2\n", 0755)

	h, err := Spawn(ExecutionConfig{ExecutablePath: exe, Args: []string{"-a", "creds", "-v"}}, logging.Nop())
	require.NoError(t, err)
	defer h.Release()

	assert.Greater(t, h.PID(), 0)

	_, err = io.WriteString(h.Stdin(), "hello\n")
	require.NoError(t, err)

	stdout := bufio.NewScanner(h.Stdout())
	require.True(t, stdout.Scan())
	assert.Equal(t, "got:hello args:-a creds -v", stdout.Text())

	stderr := bufio.NewScanner(h.Stderr())
	require.True(t, stderr.Scan())
	assert.Equal(t, "diag", stderr.Text())

	waitDone(t, h)
	assert.True(t, h.Exited())
	assert.Equal(t, 0, h.ExitCode())
}

func TestSpawn_FallsBackToLinker(t *testing.T) {
	// No shebang: exec fails with ENOEXEC, the shell "linker" can still run it.
	exe := writeScript(t, "echo via-linker\n", 0755)

	h, err := Spawn(ExecutionConfig{ExecutablePath: exe, LinkerPath: "/bin/sh"}, logging.Nop())
	require.NoError(t, err)
	defer h.Release()

	stdout := bufio.NewScanner(h.Stdout())
	require.True(t, stdout.Scan())
	assert.Equal(t, "via-linker", stdout.Text())
	waitDone(t, h)
}

func TestSpawn_BothAttemptsFail(t *testing.T) {
	exe := writeScript(t, "echo never\n", 0755)

	_, err := Spawn(ExecutionConfig{ExecutablePath: exe, LinkerPath: "/nonexistent/linker"}, logging.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsSpawnError(err))
}

func TestSpawn_WithoutLinkerReportsSpawnError(t *testing.T) {
	_, err := Spawn(ExecutionConfig{ExecutablePath: "/nonexistent/uplink"}, logging.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsSpawnError(err))
}

func TestSpawn_MakesAssetExecutable(t *testing.T) {
	exe := writeScript(t, "#!/bin/sh\nexit 3\n", 0644)

	h, err := Spawn(ExecutionConfig{ExecutablePath: exe}, logging.Nop())
	require.NoError(t, err)
	defer h.Release()

	waitDone(t, h)
	assert.Equal(t, 3, h.ExitCode())
}

func TestHandle_RequestTermination(t *testing.T) {
	exe := writeScript(t, "#!/bin/sh\ntrap 'exit 0' TERM\nwhile true; do sleep 0.1; done\n", 0755)

	h, err := Spawn(ExecutionConfig{ExecutablePath: exe}, logging.Nop())
	require.NoError(t, err)
	defer h.Release()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, h.Exited())
	assert.Equal(t, -1, h.ExitCode())

	require.NoError(t, h.RequestTermination())
	waitDone(t, h)
	assert.NoError(t, h.RequestTermination(), "terminating an exited child is a no-op")
}

func TestValidateExecutionConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    ExecutionConfig
		shouldErr bool
	}{
		{"valid", ExecutionConfig{ExecutablePath: "/data/uplink"}, false},
		{"valid with linker", ExecutionConfig{ExecutablePath: "/data/uplink", LinkerPath: DefaultLinkerPath}, false},
		{"empty path", ExecutionConfig{}, true},
		{"relative path", ExecutionConfig{ExecutablePath: "uplink"}, true},
		{"relative linker", ExecutionConfig{ExecutablePath: "/data/uplink", LinkerPath: "linker"}, true},
		{"missing working directory", ExecutionConfig{ExecutablePath: "/data/uplink", WorkingDirectory: "/nonexistent/dir"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionConfig(tt.config)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
