package logrotate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StoreTestLogger struct {
	mutex  sync.Mutex
	errors []string
}

func (l *StoreTestLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (l *StoreTestLogger) Debugf(format string, args ...interface{})               {}
func (l *StoreTestLogger) Infof(format string, args ...interface{})                {}
func (l *StoreTestLogger) Warnf(format string, args ...interface{})                {}
func (l *StoreTestLogger) Errorf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestStore_AppendCreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "out.log")
	store := NewStore(StoreConfig{Path: path, MaxBytes: 1024, MaxFileCount: 3}, &StoreTestLogger{})

	store.Append("first")
	store.Append("second")

	assert.Equal(t, "first\nsecond\n", readFile(t, path))
}

func TestStore_RotatesWhenThresholdExceeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	store := NewStore(StoreConfig{Path: path, MaxBytes: 10, MaxFileCount: 3}, &StoreTestLogger{})

	store.Append("aaaa")      // 5 bytes
	store.Append("bbbb")      // 10 bytes, not over
	assert.Equal(t, "aaaa\nbbbb\n", readFile(t, path))
	assert.NoFileExists(t, path+".1")

	store.Append("cc") // 13 bytes, rotates

	assert.Equal(t, "", readFile(t, path))
	assert.Equal(t, "aaaa\nbbbb\ncc\n", readFile(t, path+".1"))
}

func TestStore_RotationPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	store := NewStore(StoreConfig{Path: path, MaxBytes: 4, MaxFileCount: 3}, &StoreTestLogger{})

	store.Append("one1")
	assert.Equal(t, "one1\n", readFile(t, path+".1"))

	store.Append("two2")
	assert.Equal(t, "two2\n", readFile(t, path+".1"))
	assert.Equal(t, "one1\n", readFile(t, path+".2"))

	store.Append("three")
	assert.Equal(t, "three\n", readFile(t, path+".1"))
	assert.Equal(t, "two2\n", readFile(t, path+".2"))
	assert.Equal(t, "one1\n", readFile(t, path+".3"))
}

func TestStore_BoundsFileCountAndActiveSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	const maxBytes = 64
	const maxFiles = 4
	store := NewStore(StoreConfig{Path: path, MaxBytes: maxBytes, MaxFileCount: maxFiles}, &StoreTestLogger{})

	for i := 0; i < 500; i++ {
		store.Append(fmt.Sprintf("line-%03d %s", i, strings.Repeat("x", i%17)))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(maxBytes))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	rotated := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "out.log.") {
			rotated++
		}
	}
	assert.Equal(t, maxFiles, rotated)
	assert.NoFileExists(t, path+".5")
}

func TestStore_ConcurrentAppendsAreSerialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	store := NewStore(StoreConfig{Path: path, MaxBytes: 1 << 20, MaxFileCount: 2}, &StoreTestLogger{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.Append(fmt.Sprintf("g%d-%02d", g, i))
			}
		}(g)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(readFile(t, path), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.Regexp(t, `^g\d-\d\d$`, line)
	}
}

func TestStore_WriteFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0644))

	logger := &StoreTestLogger{}
	store := NewStore(StoreConfig{Path: filepath.Join(blocker, "out.log")}, logger)

	assert.NotPanics(t, func() { store.Append("lost") })
	assert.Len(t, logger.errors, 1)
}

func TestStore_WriterTrimsTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	store := NewStore(StoreConfig{Path: path}, &StoreTestLogger{})

	n, err := store.Write([]byte("2024-01-01 10:00:00: reconcile tick\n"))
	require.NoError(t, err)
	assert.Equal(t, 36, n)
	assert.Equal(t, "2024-01-01 10:00:00: reconcile tick\n", readFile(t, path))
}
