package main

import (
	"bytes"
	"testing"

	"github.com/core-tools/hsu-uplink/pkg/domain"

	"github.com/stretchr/testify/assert"
)

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, &domain.AgentStatus{
		SessionID:          "3f1c",
		AgentState:         "running",
		SupervisorState:    "Running(pid=42)",
		PID:                42,
		Healthy:            true,
		AppliedFingerprint: "aaaa",
		PendingFingerprint: "bbbb",
		LastExitCode:       -1,
		PingMs:             12,
		InternetType:       "Wifi",
	})

	text := out.String()
	assert.Contains(t, text, "Running(pid=42)")
	assert.Contains(t, text, "aaaa (pending bbbb)")
	assert.Contains(t, text, "Wifi, ping 12ms, loss 0%")
	assert.NotContains(t, text, "LAST ERROR")
}

func TestPrintStatus_UnknownPing(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, &domain.AgentStatus{AgentState: "running", PingMs: -1, InternetType: "Disconnected"})

	assert.Contains(t, out.String(), "Disconnected, ping unknown, loss 0%")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"status", "healthy", "stop", "update", "push"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
