package telemetry

import (
	"io"
	"sync"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
)

// FailureHandler is invoked when the child's stdin rejects a write
type FailureHandler func(err error)

// DefaultWriteTimeout bounds one record write to a child that stopped
// reading its stdin
const DefaultWriteTimeout = time.Second

type flusher interface {
	Flush() error
}

type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Channel delivers encoded payloads to the running child's stdin. Writes
// are serialized so records from different streams never interleave.
// writeMutex orders writes; mutex only guards the writer, so Detach never
// waits behind a blocked write.
type Channel struct {
	writeMutex   sync.Mutex
	mutex        sync.Mutex
	writer       io.Writer
	generation   uint64
	writeTimeout time.Duration
	onFailure    FailureHandler
	logger       logging.Logger
}

func NewChannel(onFailure FailureHandler, logger logging.Logger) *Channel {
	return &Channel{
		writeTimeout: DefaultWriteTimeout,
		onFailure:    onFailure,
		logger:       logger,
	}
}

// SetWriteTimeout changes the per-record deadline, applied when the writer
// supports deadlines
func (c *Channel) SetWriteTimeout(timeout time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.writeTimeout = timeout
}

// Attach points the channel at a new child's stdin
func (c *Channel) Attach(w io.Writer) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.writer = w
	c.generation++
}

// Detach drops the current writer; subsequent sends are discarded. A write
// in progress is interrupted through its deadline.
func (c *Channel) Detach() {
	c.mutex.Lock()
	writer := c.writer
	c.writer = nil
	c.generation++
	c.mutex.Unlock()

	if d, ok := writer.(deadliner); ok {
		_ = d.SetWriteDeadline(time.Unix(1, 0))
	}
}

func (c *Channel) Attached() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.writer != nil
}

// Send writes one record. Without an attached child the record is dropped.
// A failed or timed out write detaches the writer and reports the child as
// unhealthy instead of retrying.
func (c *Channel) Send(payload Payload) {
	line := EncodeLine(payload)

	err := c.write(line)
	if err == nil {
		return
	}

	c.logger.Warnf("Uplink stdin closed, restarting, stream: %s, sequence: %d, error: %v",
		payload.Stream, payload.Sequence, err)
	if c.onFailure != nil {
		c.onFailure(errors.NewUnhealthyError("uplink stdin write failed", err).WithContext("stream", payload.Stream))
	}
}

// write returns an error only when the writer it used is still attached;
// failures of a writer detached meanwhile are expected and swallowed.
func (c *Channel) write(line []byte) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	c.mutex.Lock()
	writer, generation, timeout := c.writer, c.generation, c.writeTimeout
	c.mutex.Unlock()

	if writer == nil {
		return nil
	}

	d, hasDeadline := writer.(deadliner)
	if hasDeadline && timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			hasDeadline = false
		}
	}
	// A Detach that ran before our deadline was set would be overridden
	if c.detachedSince(generation) {
		return nil
	}

	_, err := writer.Write(line)
	if err == nil {
		if f, ok := writer.(flusher); ok {
			err = f.Flush()
		}
	}
	if hasDeadline && timeout > 0 && err == nil {
		_ = d.SetWriteDeadline(time.Time{})
	}
	if err == nil {
		return nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.generation != generation {
		return nil
	}
	c.writer = nil
	c.generation++
	return err
}

func (c *Channel) detachedSince(generation uint64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.generation != generation
}
