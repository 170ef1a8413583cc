package telemetry

import (
	"github.com/core-tools/hsu-uplink/pkg/logging"
)

type ChargeStatus string

const (
	ChargeStatusUnknown     ChargeStatus = "Unknown"
	ChargeStatusCharging    ChargeStatus = "Charging"
	ChargeStatusDischarging ChargeStatus = "Discharging"
	ChargeStatusNotCharging ChargeStatus = "Not charging"
	ChargeStatusFull        ChargeStatus = "Full"
)

// PowerStatus is a raw battery reading. Level and Scale are -1 when the
// platform does not report them.
type PowerStatus struct {
	Level  int
	Scale  int
	Status ChargeStatus
}

type PowerProvider interface {
	ReadPower() (PowerStatus, error)
}

// NetworkProvider exposes the platform's link and traffic information
type NetworkProvider interface {
	Transport() InternetType
	// WifiLevel is the signal level on a 0..100 scale
	WifiLevel() int
	Cells() []CellInfo
	Counters() (ByteCounters, error)
}

// BatteryLevel converts a raw reading to a percentage, -1 if unavailable
func BatteryLevel(status PowerStatus) int {
	if status.Level < 0 || status.Scale <= 0 {
		return -1
	}
	return int(float64(status.Level) / float64(status.Scale) * 100)
}

func Charging(status PowerStatus) bool {
	return status.Status == ChargeStatusCharging || status.Status == ChargeStatusFull
}

// PowerSampler emits power_status payloads
type PowerSampler struct {
	provider PowerProvider
	sender   Sender
	sequence *Sequence
	now      func() int64
	logger   logging.Logger
}

func NewPowerSampler(provider PowerProvider, sender Sender, logger logging.Logger) *PowerSampler {
	return &PowerSampler{
		provider: provider,
		sender:   sender,
		sequence: NewSequence(),
		now:      NowMillis,
		logger:   logger,
	}
}

func (s *PowerSampler) Sample() Payload {
	status, err := s.provider.ReadPower()
	if err != nil {
		s.logger.Debugf("Power status unavailable: %v", err)
		status = PowerStatus{Level: -1, Scale: -1, Status: ChargeStatusUnknown}
	}

	payload := Payload{
		Stream:    StreamPowerStatus,
		Sequence:  s.sequence.Next(),
		Timestamp: s.now(),
		Fields: []Field{
			{Key: "battery_level", Value: BatteryLevel(status)},
			{Key: "charging", Value: Charging(status)},
		},
	}
	s.sender.Send(payload)
	return payload
}

// NetworkSampler refreshes the cached network state and emits
// network_status payloads
type NetworkSampler struct {
	provider NetworkProvider
	state    *NetworkState
	sender   Sender
	sequence *Sequence
	now      func() int64
	logger   logging.Logger
}

func NewNetworkSampler(provider NetworkProvider, state *NetworkState, sender Sender, logger logging.Logger) *NetworkSampler {
	return &NetworkSampler{
		provider: provider,
		state:    state,
		sender:   sender,
		sequence: NewSequence(),
		now:      NowMillis,
		logger:   logger,
	}
}

func (s *NetworkSampler) Sample() Payload {
	transport := s.provider.Transport()
	wifiLevel := 0
	if transport == InternetWifi {
		wifiLevel = s.provider.WifiLevel()
	}
	s.state.updateLink(transport, wifiLevel, s.provider.Cells())

	counters, err := s.provider.Counters()
	if err != nil {
		s.logger.Debugf("Traffic counters unavailable: %v", err)
		counters = ByteCounters{}
	}
	s.state.updateCounters(counters)

	snapshot := s.state.Snapshot()
	payload := Payload{
		Stream:    StreamNetworkStatus,
		Sequence:  s.sequence.Next(),
		Timestamp: s.now(),
		Fields: []Field{
			{Key: "ping_ms", Value: snapshot.PingMs},
			{Key: "packet_loss_percentage", Value: snapshot.PacketLossPercentage},
			{Key: "internet_connection_type", Value: string(snapshot.InternetType)},
			{Key: "wifi_strength", Value: snapshot.WifiStrength},
			{Key: "mobile_network_type", Value: string(snapshot.MobileType)},
			{Key: "mobile_network_level", Value: snapshot.MobileLevel},
			{Key: "sent_bytes", Value: snapshot.SentBytes},
			{Key: "recv_bytes", Value: snapshot.RecvBytes},
			{Key: "sent_bytes_mobile", Value: snapshot.SentBytesMobile},
			{Key: "recv_bytes_mobile", Value: snapshot.RecvBytesMobile},
		},
	}
	s.sender.Send(payload)
	return payload
}
