package supervisor

import (
	"fmt"
	"time"
)

// State is the supervisor's lifecycle state
type State string

const (
	StateNoConfig         State = "NoConfig"
	StateConfigured       State = "Configured"
	StateStarting         State = "Starting"
	StateRunning          State = "Running"
	StateStoppingGraceful State = "StoppingGraceful"
	StateStoppingForced   State = "StoppingForced"
	StateStopped          State = "Stopped"
)

// Snapshot is a point-in-time view of the supervisor
type Snapshot struct {
	State State

	// NeedsRestart is meaningful in Configured: the pending configuration
	// differs from the one last materialized.
	NeedsRestart bool

	// StopAttempt is the current liveness poll, 1..PollAttempts, while
	// StoppingGraceful.
	StopAttempt int

	PID                int
	AppliedFingerprint string
	PendingFingerprint string
	Restarts           int64
	LastExitCode       int
	LastError          string
	StartedAt          time.Time
}

func (s Snapshot) String() string {
	switch s.State {
	case StateConfigured:
		return fmt.Sprintf("%s(needsRestart=%t)", s.State, s.NeedsRestart)
	case StateRunning:
		return fmt.Sprintf("%s(pid=%d)", s.State, s.PID)
	case StateStoppingGraceful:
		return fmt.Sprintf("%s(%d)", s.State, s.StopAttempt)
	default:
		return string(s.State)
	}
}

type stopReason string

const (
	stopReconfigure stopReason = "reconfigure"
	stopUnhealthy   stopReason = "unhealthy"
	stopShutdown    stopReason = "shutdown"
)
