package monitoring

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
)

// BenchmarkConfig controls one reachability round
type BenchmarkConfig struct {
	Port     int           `yaml:"port,omitempty"`
	Attempts int           `yaml:"attempts,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

func DefaultBenchmarkConfig() BenchmarkConfig {
	return BenchmarkConfig{
		Port:     80,
		Attempts: 10,
		Timeout:  1000 * time.Millisecond,
	}
}

// BenchmarkResult summarizes a round. PingMs is -1 when nothing connected.
type BenchmarkResult struct {
	PingMs               int64
	PacketLossPercentage int64
	Successes            int
}

// Dialer opens a TCP connection; net.Dialer satisfies it
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Benchmark makes Attempts sequential TCP connections to target. The
// average includes the time spent on failed attempts, divided by the
// number of successes.
func Benchmark(ctx context.Context, dialer Dialer, target string, config BenchmarkConfig) (BenchmarkResult, error) {
	if target == "" {
		return BenchmarkResult{}, errors.NewValidationError("benchmark target cannot be empty", nil)
	}
	if config.Attempts <= 0 {
		return BenchmarkResult{}, errors.NewValidationError("benchmark attempts must be positive", nil)
	}

	address := net.JoinHostPort(target, strconv.Itoa(config.Port))

	successes := 0
	var total time.Duration
	for i := 0; i < config.Attempts; i++ {
		if err := ctx.Err(); err != nil {
			return BenchmarkResult{}, errors.NewCancelledError("benchmark cancelled", err)
		}

		start := time.Now()
		if attemptConnect(ctx, dialer, address, config.Timeout) {
			successes++
		}
		total += time.Since(start)
	}

	result := BenchmarkResult{
		PingMs:               -1,
		PacketLossPercentage: int64(100 - successes*100/config.Attempts),
		Successes:            successes,
	}
	if successes > 0 {
		result.PingMs = total.Milliseconds() / int64(successes)
	}
	return result, nil
}

func attemptConnect(ctx context.Context, dialer Dialer, address string, timeout time.Duration) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(attemptCtx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
