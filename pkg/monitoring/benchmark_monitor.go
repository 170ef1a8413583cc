package monitoring

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
)

// BenchmarkSink receives each round's latency and loss
type BenchmarkSink func(pingMs, packetLossPercentage int64)

// TargetFunc returns the host to benchmark, or "" to skip the round
type TargetFunc func() string

type BenchmarkMonitorConfig struct {
	Benchmark BenchmarkConfig
	Interval  time.Duration
}

type BenchmarkState struct {
	LastRun    time.Time
	LastTarget string
	LastResult BenchmarkResult
	Rounds     int
}

// BenchmarkMonitor runs reachability rounds on its own goroutine, pausing
// Interval between rounds, and publishes results through the sink.
type BenchmarkMonitor struct {
	config   BenchmarkMonitorConfig
	dialer   Dialer
	target   TargetFunc
	sink     BenchmarkSink
	onRound  func()
	state    BenchmarkState
	stopChan chan struct{}
	wg       sync.WaitGroup
	mutex    sync.Mutex
	running  bool
	logger   logging.Logger
}

func NewBenchmarkMonitor(config BenchmarkMonitorConfig, target TargetFunc, sink BenchmarkSink, logger logging.Logger) *BenchmarkMonitor {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.Benchmark.Attempts <= 0 {
		config.Benchmark = DefaultBenchmarkConfig()
	}
	return &BenchmarkMonitor{
		config: config,
		dialer: &net.Dialer{},
		target: target,
		sink:   sink,
		logger: logger,
	}
}

// SetDialer replaces the network dialer, must be called before Start
func (m *BenchmarkMonitor) SetDialer(dialer Dialer) {
	m.dialer = dialer
}

// SetRoundCallback registers a hook called at the start of every round
func (m *BenchmarkMonitor) SetRoundCallback(onRound func()) {
	m.onRound = onRound
}

func (m *BenchmarkMonitor) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return errors.NewConflictError("benchmark monitor already running", nil)
	}
	m.running = true
	m.stopChan = make(chan struct{})

	m.wg.Add(1)
	go m.loop(ctx, m.stopChan)
	return nil
}

func (m *BenchmarkMonitor) Stop() {
	m.mutex.Lock()
	if !m.running {
		m.mutex.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mutex.Unlock()

	m.wg.Wait()
}

func (m *BenchmarkMonitor) State() BenchmarkState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

func (m *BenchmarkMonitor) loop(ctx context.Context, stopChan chan struct{}) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.logger.Debugf("Benchmark monitor loop started")

	for {
		m.round(ctx)

		select {
		case <-time.After(m.config.Interval):
		case <-ctx.Done():
			m.logger.Debugf("Benchmark monitor loop stopping")
			return
		}
	}
}

func (m *BenchmarkMonitor) round(ctx context.Context) {
	target := m.target()
	if target == "" {
		return
	}
	if m.onRound != nil {
		m.onRound()
	}

	result, err := Benchmark(ctx, m.dialer, target, m.config.Benchmark)
	if err != nil {
		if !errors.IsCancelledError(err) {
			m.logger.Warnf("Benchmark round failed, target: %s, error: %v", target, err)
		}
		return
	}

	m.logger.Debugf("Benchmark round done, target: %s, ping_ms: %d, loss: %d%%",
		target, result.PingMs, result.PacketLossPercentage)

	m.mutex.Lock()
	m.state = BenchmarkState{
		LastRun:    time.Now(),
		LastTarget: target,
		LastResult: result,
		Rounds:     m.state.Rounds + 1,
	}
	m.mutex.Unlock()

	if m.sink != nil {
		m.sink(result.PingMs, result.PacketLossPercentage)
	}
}
