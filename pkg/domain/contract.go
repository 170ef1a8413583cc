package domain

import (
	"context"
)

// UplinkSettings is the wire form of an uplink configuration
type UplinkSettings struct {
	Credentials       []byte
	EnableRemoteShell bool
	ExtraArgs         []string
	PingTarget        string
}

type AgentStatus struct {
	SessionID          string
	AgentState         string
	SupervisorState    string
	PID                int
	Healthy            bool
	AppliedFingerprint string
	PendingFingerprint string
	Restarts           int64
	LastExitCode       int
	LastError          string
	PingMs             int64
	PacketLoss         int64
	InternetType       string
}

// TelemetryField is one flat value of a pushed record: int64, float64,
// bool or string.
type TelemetryField struct {
	Key   string
	Value interface{}
}

// TelemetryRecord is a record pushed by an external producer. A zero
// Timestamp means "now".
type TelemetryRecord struct {
	Stream    string
	Sequence  int64
	Timestamp int64
	Fields    []TelemetryField
}

// Contract is the control surface the agent exposes to its host
type Contract interface {
	Status(ctx context.Context) (*AgentStatus, error)
	UpdateConfiguration(ctx context.Context, settings UplinkSettings) error
	Stop(ctx context.Context) error
	IsChildHealthy(ctx context.Context) (bool, error)
	PushData(ctx context.Context, record TelemetryRecord) error
}
