package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingFuncs struct {
	lines []string
}

func (r *recordingFuncs) record(tag string) LogFunc {
	return func(format string, args ...interface{}) {
		r.lines = append(r.lines, tag+" "+fmt.Sprintf(format, args...))
	}
}

func TestLogger_RoutesByLevelWithPrefix(t *testing.T) {
	rec := &recordingFuncs{}
	logger := NewLogger("supervisor: ", LogFuncs{
		Debugf: rec.record("D"),
		Infof:  rec.record("I"),
		Warnf:  rec.record("W"),
		Errorf: rec.record("E"),
	})

	logger.Debugf("tick %d", 1)
	logger.Infof("started pid %d", 42)
	logger.Warnf("stderr: %s", "oops")
	logger.Errorf("spawn failed")
	logger.LogLevelf(LogLevelWarn, "via level")

	assert.Equal(t, []string{
		"D supervisor: tick 1",
		"I supervisor: started pid 42",
		"W supervisor: stderr: oops",
		"E supervisor: spawn failed",
		"W supervisor: via level",
	}, rec.lines)
}

func TestWithPrefix_StacksPrefixes(t *testing.T) {
	rec := &recordingFuncs{}
	root := NewLogger("agent: ", LogFuncs{Infof: rec.record("I")})

	WithPrefix(root, "telemetry: ").Infof("seq %d", 3)

	assert.Equal(t, []string{"I agent: telemetry: seq 3"}, rec.lines)
}

func TestNop_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		l := Nop()
		l.Debugf("x")
		l.Errorf("y %v", 1)
	})
}
