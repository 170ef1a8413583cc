package telemetry

import (
	"sync"
)

type InternetType string

const (
	InternetWifi         InternetType = "Wifi"
	InternetMobile       InternetType = "Mobile"
	InternetDisconnected InternetType = "Disconnected"
)

type MobileConnectionType string

const (
	Mobile2G      MobileConnectionType = "M2G"
	Mobile3G      MobileConnectionType = "M3G"
	Mobile4G      MobileConnectionType = "M4G"
	MobileUnknown MobileConnectionType = "Unknown"
)

// NetworkSnapshot is a copy of the cached network state at one instant
type NetworkSnapshot struct {
	InternetType         InternetType
	WifiStrength         int
	MobileType           MobileConnectionType
	MobileLevel          int
	PingMs               int64
	PacketLossPercentage int64
	SentBytes            int64
	RecvBytes            int64
	SentBytesMobile      int64
	RecvBytesMobile      int64
}

// ByteCounters are cumulative OS traffic counters
type ByteCounters struct {
	Sent, Recv             uint64
	SentMobile, RecvMobile uint64
}

// NetworkState is the cached snapshot shared by the network sampler, which
// owns everything but latency and loss, and the benchmark loop, which only
// writes those two through SetBenchmark.
type NetworkState struct {
	mutex    sync.Mutex
	snapshot NetworkSnapshot
	baseline ByteCounters
}

// NewNetworkState starts disconnected with latency unknown (-1) until the
// first benchmark round completes.
func NewNetworkState() *NetworkState {
	return &NetworkState{
		snapshot: NetworkSnapshot{
			InternetType: InternetDisconnected,
			MobileType:   MobileUnknown,
			PingMs:       -1,
		},
	}
}

func (s *NetworkState) Snapshot() NetworkSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snapshot
}

func (s *NetworkState) SetBenchmark(pingMs, packetLossPercentage int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.PingMs = pingMs
	s.snapshot.PacketLossPercentage = packetLossPercentage
}

// updateLink records transport, wifi strength and the last classified cell.
// With no classified cell the previous mobile reading is kept.
func (s *NetworkState) updateLink(internetType InternetType, wifiStrength int, cells []CellInfo) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.snapshot.InternetType = internetType
	if internetType == InternetWifi {
		s.snapshot.WifiStrength = wifiStrength
	} else {
		s.snapshot.WifiStrength = 0
	}

	for _, cell := range cells {
		if mobileType, ok := classifyCell(cell.Technology); ok {
			s.snapshot.MobileType = mobileType
			s.snapshot.MobileLevel = cell.Dbm
		}
	}
}

// updateCounters turns cumulative counters into per-sample deltas
func (s *NetworkState) updateCounters(current ByteCounters) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.snapshot.SentBytes = clampedDelta(&s.baseline.Sent, current.Sent)
	s.snapshot.RecvBytes = clampedDelta(&s.baseline.Recv, current.Recv)
	s.snapshot.SentBytesMobile = clampedDelta(&s.baseline.SentMobile, current.SentMobile)
	s.snapshot.RecvBytesMobile = clampedDelta(&s.baseline.RecvMobile, current.RecvMobile)
}

// clampedDelta returns current-previous, never negative. The first reading
// only establishes the baseline and yields 0; a zero reading means the
// counter is unavailable and leaves the baseline untouched.
func clampedDelta(previous *uint64, current uint64) int64 {
	if current == 0 {
		return 0
	}
	prev := *previous
	*previous = current
	if prev == 0 || current < prev {
		return 0
	}
	return int64(current - prev)
}

type CellTechnology string

const (
	CellLTE   CellTechnology = "lte"
	CellWCDMA CellTechnology = "wcdma"
	CellGSM   CellTechnology = "gsm"
	CellCDMA  CellTechnology = "cdma"
)

// CellInfo is one entry of the modem's reported cell list
type CellInfo struct {
	Technology CellTechnology
	Dbm        int
}

func classifyCell(technology CellTechnology) (MobileConnectionType, bool) {
	switch technology {
	case CellLTE:
		return Mobile4G, true
	case CellWCDMA:
		return Mobile3G, true
	case CellGSM, CellCDMA:
		return Mobile2G, true
	}
	return MobileUnknown, false
}
