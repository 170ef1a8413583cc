package telemetry

import (
	"time"

	"go.uber.org/atomic"
)

const (
	StreamPowerStatus   = "power_status"
	StreamNetworkStatus = "network_status"
)

// Field is one typed telemetry value. Value must be an int, float, bool or
// string; anything else is rejected at encoding time with a panic.
type Field struct {
	Key   string
	Value interface{}
}

// Payload is a single telemetry record. Fields keep their order on the wire.
type Payload struct {
	Stream    string
	Sequence  int64
	Timestamp int64
	Fields    []Field
}

// Sequence hands out per-stream sequence numbers starting at 1
type Sequence struct {
	last *atomic.Int64
}

func NewSequence() *Sequence {
	return &Sequence{last: atomic.NewInt64(0)}
}

func (s *Sequence) Next() int64 {
	return s.last.Inc()
}

func (s *Sequence) Last() int64 {
	return s.last.Load()
}

// Sender accepts payloads for delivery. Delivery is fire-and-forget.
type Sender interface {
	Send(payload Payload)
}

// NowMillis is the wall clock used for payload timestamps
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
