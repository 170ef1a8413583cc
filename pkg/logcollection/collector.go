package logcollection

import (
	"bufio"
	"io"
	"sync"

	"github.com/core-tools/hsu-uplink/pkg/logging"

	"go.uber.org/atomic"
)

// StreamType identifies a child output stream
type StreamType string

const (
	StdoutStream StreamType = "stdout"
	StderrStream StreamType = "stderr"
)

const maxLineSize = 1024 * 1024

// LineSink stores collected lines; logrotate.Store implements it
type LineSink interface {
	Append(line string)
}

// CollectorStatus reports collection totals since creation
type CollectorStatus struct {
	LinesCollected int64
	BytesCollected int64
	ActiveReaders  int32
}

// Collector drains a child's output streams into a sink. Stderr lines are
// also surfaced as warnings on the diagnostic logger.
type Collector struct {
	sink   LineSink
	logger logging.Logger

	wg     sync.WaitGroup
	lines  *atomic.Int64
	bytes  *atomic.Int64
	active *atomic.Int32
}

func NewCollector(sink LineSink, logger logging.Logger) *Collector {
	return &Collector{
		sink:   sink,
		logger: logger,
		lines:  atomic.NewInt64(0),
		bytes:  atomic.NewInt64(0),
		active: atomic.NewInt32(0),
	}
}

// CollectFromProcess starts one reader per stream. Each reader runs until
// its stream closes or fails, then closes the stream and exits.
func (c *Collector) CollectFromProcess(stdout, stderr io.ReadCloser) {
	if stdout != nil {
		c.CollectFromStream(stdout, StdoutStream)
	}
	if stderr != nil {
		c.CollectFromStream(stderr, StderrStream)
	}
}

func (c *Collector) CollectFromStream(stream io.ReadCloser, streamType StreamType) {
	c.wg.Add(1)
	c.active.Inc()
	go c.streamReader(stream, streamType)
}

// Wait blocks until every reader started so far has exited
func (c *Collector) Wait() {
	c.wg.Wait()
}

func (c *Collector) Status() CollectorStatus {
	return CollectorStatus{
		LinesCollected: c.lines.Load(),
		BytesCollected: c.bytes.Load(),
		ActiveReaders:  c.active.Load(),
	}
}

func (c *Collector) streamReader(stream io.ReadCloser, streamType StreamType) {
	defer c.wg.Done()
	defer c.active.Dec()
	defer stream.Close()

	reader := bufio.NewReaderSize(stream, 64*1024)
	for {
		line, truncated, err := readLine(reader)
		if err == nil || len(line) > 0 {
			c.collect(line, streamType)
		}
		if truncated {
			c.logger.Warnf("Line exceeds %d bytes and was truncated, stream: %s", maxLineSize, streamType)
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debugf("Stream reader exiting, stream: %s, error: %v", streamType, err)
			}
			return
		}
	}
}

func (c *Collector) collect(line string, streamType StreamType) {
	c.lines.Inc()
	c.bytes.Add(int64(len(line)))

	c.sink.Append(line)
	if streamType == StderrStream {
		c.logger.Warnf("uplink stderr: %s", line)
	}
}

// readLine returns the next line without its terminator, keeping at most
// maxLineSize bytes. The remainder of an oversized line is consumed so the
// child never blocks on a full pipe.
func readLine(reader *bufio.Reader) (string, bool, error) {
	var line []byte
	truncated := false
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			return string(line), truncated, err
		}
		if room := maxLineSize - len(line); len(chunk) > room {
			chunk = chunk[:room]
			truncated = true
		}
		line = append(line, chunk...)
		if !isPrefix {
			return string(line), truncated, nil
		}
	}
}
