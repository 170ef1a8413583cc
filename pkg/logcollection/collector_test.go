package logcollection

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type memorySink struct {
	mutex sync.Mutex
	lines []string
}

func (s *memorySink) Append(line string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lines = append(s.lines, line)
}

func (s *memorySink) snapshot() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.lines...)
}

type warnRecorder struct {
	mutex sync.Mutex
	warns []string
}

func (l *warnRecorder) LogLevelf(level int, format string, args ...interface{}) {}
func (l *warnRecorder) Debugf(format string, args ...interface{})               {}
func (l *warnRecorder) Infof(format string, args ...interface{})                {}
func (l *warnRecorder) Errorf(format string, args ...interface{})               {}
func (l *warnRecorder) Warnf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

type trackingReader struct {
	io.Reader
	closed bool
}

func (r *trackingReader) Close() error {
	r.closed = true
	return nil
}

type failingReader struct {
	closed bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("pipe broken")
}

func (r *failingReader) Close() error {
	r.closed = true
	return nil
}

func TestCollector_StdoutLinesGoToSink(t *testing.T) {
	sink := &memorySink{}
	logger := &warnRecorder{}
	collector := NewCollector(sink, logger)

	stdout := &trackingReader{Reader: strings.NewReader("connected\nsent 3 points\n")}
	collector.CollectFromProcess(stdout, nil)
	collector.Wait()

	assert.Equal(t, []string{"connected", "sent 3 points"}, sink.snapshot())
	assert.Empty(t, logger.warns)
	assert.True(t, stdout.closed)
}

func TestCollector_StderrLinesAreAlsoWarned(t *testing.T) {
	sink := &memorySink{}
	logger := &warnRecorder{}
	collector := NewCollector(sink, logger)

	stderr := &trackingReader{Reader: strings.NewReader("auth failed")}
	collector.CollectFromProcess(nil, stderr)
	collector.Wait()

	assert.Equal(t, []string{"auth failed"}, sink.snapshot())
	assert.Equal(t, []string{"uplink stderr: auth failed"}, logger.warns)
}

func TestCollector_ReadErrorEndsReaderQuietly(t *testing.T) {
	sink := &memorySink{}
	logger := &warnRecorder{}
	collector := NewCollector(sink, logger)

	reader := &failingReader{}
	collector.CollectFromStream(reader, StdoutStream)
	collector.Wait()

	assert.Empty(t, sink.snapshot())
	assert.Empty(t, logger.warns)
	assert.True(t, reader.closed)
	assert.Equal(t, int32(0), collector.Status().ActiveReaders)
}

func TestCollector_StatusCountsLinesAndBytes(t *testing.T) {
	sink := &memorySink{}
	collector := NewCollector(sink, &warnRecorder{})

	collector.CollectFromProcess(
		&trackingReader{Reader: strings.NewReader("abc\nde\n")},
		&trackingReader{Reader: strings.NewReader("f\n")},
	)
	collector.Wait()

	status := collector.Status()
	assert.Equal(t, int64(3), status.LinesCollected)
	assert.Equal(t, int64(6), status.BytesCollected)
	assert.ElementsMatch(t, []string{"abc", "de", "f"}, sink.snapshot())
}

func TestCollector_LongLinesAreKept(t *testing.T) {
	sink := &memorySink{}
	collector := NewCollector(sink, &warnRecorder{})

	long := strings.Repeat("x", 200*1024)
	collector.CollectFromStream(&trackingReader{Reader: strings.NewReader(long + "\n")}, StdoutStream)
	collector.Wait()

	lines := sink.snapshot()
	if assert.Len(t, lines, 1) {
		assert.Len(t, lines[0], len(long))
	}
}

func TestCollector_OversizedLineIsTruncatedAndReadingContinues(t *testing.T) {
	sink := &memorySink{}
	logger := &warnRecorder{}
	collector := NewCollector(sink, logger)

	oversized := strings.Repeat("y", maxLineSize+4096)
	stdout := &trackingReader{Reader: strings.NewReader(oversized + "\nafter\n")}
	collector.CollectFromStream(stdout, StdoutStream)
	collector.Wait()

	lines := sink.snapshot()
	if assert.Len(t, lines, 2) {
		assert.Len(t, lines[0], maxLineSize)
		assert.Equal(t, "after", lines[1])
	}
	if assert.Len(t, logger.warns, 1) {
		assert.Contains(t, logger.warns[0], "truncated")
	}
	assert.True(t, stdout.closed)
}

func TestCollector_FinalLineWithoutNewline(t *testing.T) {
	sink := &memorySink{}
	collector := NewCollector(sink, &warnRecorder{})

	collector.CollectFromStream(&trackingReader{Reader: strings.NewReader("one\r\ntwo")}, StdoutStream)
	collector.Wait()

	assert.Equal(t, []string{"one", "two"}, sink.snapshot())
}
