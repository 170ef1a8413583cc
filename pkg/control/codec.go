package control

import (
	"encoding/base64"
	"math"
	"sort"

	"github.com/core-tools/hsu-uplink/pkg/domain"
	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"

	"google.golang.org/protobuf/types/known/structpb"
)

func settingsToStruct(settings domain.UplinkSettings) (*structpb.Struct, error) {
	extraArgs := make([]interface{}, len(settings.ExtraArgs))
	for i, arg := range settings.ExtraArgs {
		extraArgs[i] = arg
	}
	return structpb.NewStruct(map[string]interface{}{
		"credentials":         base64.StdEncoding.EncodeToString(settings.Credentials),
		"enable_remote_shell": settings.EnableRemoteShell,
		"extra_args":          extraArgs,
		"ping_target":         settings.PingTarget,
	})
}

// settingsFromStruct decodes an update request. Credentials are required;
// other absent fields take the uplink defaults.
func settingsFromStruct(in *structpb.Struct) (domain.UplinkSettings, error) {
	fields := in.GetFields()

	encoded, ok := fields["credentials"]
	if !ok {
		return domain.UplinkSettings{}, errors.NewValidationError("credentials are required", nil)
	}
	credentials, err := base64.StdEncoding.DecodeString(encoded.GetStringValue())
	if err != nil {
		return domain.UplinkSettings{}, errors.NewValidationError("credentials must be base64", err)
	}

	settings := domain.UplinkSettings{
		Credentials:       credentials,
		EnableRemoteShell: uplinkconfig.DefaultEnableRemoteShell,
		ExtraArgs:         uplinkconfig.DefaultExtraArgs(),
		PingTarget:        uplinkconfig.DefaultPingTarget,
	}
	if value, ok := fields["enable_remote_shell"]; ok {
		settings.EnableRemoteShell = value.GetBoolValue()
	}
	if value, ok := fields["extra_args"]; ok {
		settings.ExtraArgs = []string{}
		for _, arg := range value.GetListValue().GetValues() {
			settings.ExtraArgs = append(settings.ExtraArgs, arg.GetStringValue())
		}
	}
	if value, ok := fields["ping_target"]; ok {
		settings.PingTarget = value.GetStringValue()
	}
	return settings, nil
}

func statusToStruct(status *domain.AgentStatus) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"session_id":          status.SessionID,
		"agent_state":         status.AgentState,
		"supervisor_state":    status.SupervisorState,
		"pid":                 int64(status.PID),
		"healthy":             status.Healthy,
		"applied_fingerprint": status.AppliedFingerprint,
		"pending_fingerprint": status.PendingFingerprint,
		"restarts":            status.Restarts,
		"last_exit_code":      int64(status.LastExitCode),
		"last_error":          status.LastError,
		"ping_ms":             status.PingMs,
		"packet_loss":         status.PacketLoss,
		"internet_type":       status.InternetType,
	})
}

func statusFromStruct(in *structpb.Struct) *domain.AgentStatus {
	fields := in.GetFields()
	return &domain.AgentStatus{
		SessionID:          fields["session_id"].GetStringValue(),
		AgentState:         fields["agent_state"].GetStringValue(),
		SupervisorState:    fields["supervisor_state"].GetStringValue(),
		PID:                int(fields["pid"].GetNumberValue()),
		Healthy:            fields["healthy"].GetBoolValue(),
		AppliedFingerprint: fields["applied_fingerprint"].GetStringValue(),
		PendingFingerprint: fields["pending_fingerprint"].GetStringValue(),
		Restarts:           int64(fields["restarts"].GetNumberValue()),
		LastExitCode:       int(fields["last_exit_code"].GetNumberValue()),
		LastError:          fields["last_error"].GetStringValue(),
		PingMs:             int64(fields["ping_ms"].GetNumberValue()),
		PacketLoss:         int64(fields["packet_loss"].GetNumberValue()),
		InternetType:       fields["internet_type"].GetStringValue(),
	}
}

// recordToStruct encodes a pushed record as
// {"stream", "sequence", "timestamp", "fields": {flat values}}.
func recordToStruct(record domain.TelemetryRecord) (*structpb.Struct, error) {
	fields := make(map[string]interface{}, len(record.Fields))
	for _, field := range record.Fields {
		fields[field.Key] = field.Value
	}
	values, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.NewValidationError("unsupported telemetry field", err)
	}
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"stream":   structpb.NewStringValue(record.Stream),
		"sequence": structpb.NewNumberValue(float64(record.Sequence)),
		"fields":   structpb.NewStructValue(values),
	}}
	if record.Timestamp != 0 {
		out.Fields["timestamp"] = structpb.NewNumberValue(float64(record.Timestamp))
	}
	return out, nil
}

// recordFromStruct decodes a pushed record. Field values must be flat:
// numbers become int64 when integral and float64 otherwise; nested
// structs, lists and nulls are rejected. Fields are ordered by key.
func recordFromStruct(in *structpb.Struct) (domain.TelemetryRecord, error) {
	fields := in.GetFields()

	stream := fields["stream"].GetStringValue()
	if stream == "" {
		return domain.TelemetryRecord{}, errors.NewValidationError("stream is required", nil)
	}
	record := domain.TelemetryRecord{Stream: stream}

	sequence, ok := fields["sequence"]
	if !ok {
		return domain.TelemetryRecord{}, errors.NewValidationError("sequence is required", nil)
	}
	if record.Sequence, ok = integralValue(sequence); !ok || record.Sequence < 0 {
		return domain.TelemetryRecord{}, errors.NewValidationError("sequence must be a non-negative integer", nil)
	}
	if timestamp, present := fields["timestamp"]; present {
		if record.Timestamp, ok = integralValue(timestamp); !ok || record.Timestamp < 0 {
			return domain.TelemetryRecord{}, errors.NewValidationError("timestamp must be a non-negative integer", nil)
		}
	}

	values := fields["fields"].GetStructValue().GetFields()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, err := flatValue(values[key])
		if err != nil {
			return domain.TelemetryRecord{}, errors.NewValidationError("unsupported telemetry field", err).WithContext("key", key)
		}
		record.Fields = append(record.Fields, domain.TelemetryField{Key: key, Value: value})
	}
	return record, nil
}

func integralValue(value *structpb.Value) (int64, bool) {
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	v := number.NumberValue
	if math.Trunc(v) != v || math.Abs(v) >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func flatValue(value *structpb.Value) (interface{}, error) {
	switch kind := value.GetKind().(type) {
	case *structpb.Value_NumberValue:
		v := kind.NumberValue
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NewValidationError("number is not finite", nil)
		}
		if integral, ok := integralValue(value); ok {
			return integral, nil
		}
		return v, nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_BoolValue:
		return kind.BoolValue, nil
	case *structpb.Value_StructValue, *structpb.Value_ListValue:
		return nil, errors.NewValidationError("nested values are not allowed", nil)
	default:
		return nil, errors.NewValidationError("null values are not allowed", nil)
	}
}
