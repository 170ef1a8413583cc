package agent

import (
	"context"

	"github.com/core-tools/hsu-uplink/pkg/domain"
	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
	"github.com/core-tools/hsu-uplink/pkg/telemetry"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"
)

type agentHandler struct {
	agent  *Agent
	logger logging.Logger
}

// NewAgentHandler exposes the agent through the control contract
func NewAgentHandler(agent *Agent, logger logging.Logger) domain.Contract {
	return &agentHandler{
		agent:  agent,
		logger: logger,
	}
}

func (h *agentHandler) Status(ctx context.Context) (*domain.AgentStatus, error) {
	status := h.agent.Status()
	return &domain.AgentStatus{
		SessionID:          status.SessionID,
		AgentState:         string(status.State),
		SupervisorState:    status.Supervisor.String(),
		PID:                status.Supervisor.PID,
		Healthy:            h.agent.IsChildHealthy(),
		AppliedFingerprint: status.Supervisor.AppliedFingerprint,
		PendingFingerprint: status.Supervisor.PendingFingerprint,
		Restarts:           status.Supervisor.Restarts,
		LastExitCode:       status.Supervisor.LastExitCode,
		LastError:          status.Supervisor.LastError,
		PingMs:             status.Network.PingMs,
		PacketLoss:         status.Network.PacketLossPercentage,
		InternetType:       string(status.Network.InternetType),
	}, nil
}

func (h *agentHandler) UpdateConfiguration(ctx context.Context, settings domain.UplinkSettings) error {
	for i, arg := range settings.ExtraArgs {
		if arg == "" {
			return errors.NewValidationError("extra argument is empty", nil).WithContext("index", i)
		}
	}
	config := uplinkconfig.New(settings.Credentials, settings.EnableRemoteShell, settings.ExtraArgs, settings.PingTarget)
	return h.agent.UpdateConfiguration(config)
}

func (h *agentHandler) Stop(ctx context.Context) error {
	if state := h.agent.State(); state != AgentStateRunning {
		return errors.NewConflictError("agent is not running", nil).WithContext("state", string(state))
	}
	h.agent.RequestStop()
	return nil
}

func (h *agentHandler) IsChildHealthy(ctx context.Context) (bool, error) {
	return h.agent.IsChildHealthy(), nil
}

func (h *agentHandler) PushData(ctx context.Context, record domain.TelemetryRecord) error {
	fields := make([]telemetry.Field, len(record.Fields))
	for i, field := range record.Fields {
		fields[i] = telemetry.Field{Key: field.Key, Value: field.Value}
	}
	return h.agent.PushData(telemetry.Payload{
		Stream:    record.Stream,
		Sequence:  record.Sequence,
		Timestamp: record.Timestamp,
		Fields:    fields,
	})
}
