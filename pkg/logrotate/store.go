package logrotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
)

const (
	DefaultMaxBytes     int64 = 1024000
	DefaultMaxFileCount       = 3
)

type StoreConfig struct {
	Path         string `yaml:"path"`
	MaxBytes     int64  `yaml:"max_bytes,omitempty"`
	MaxFileCount int    `yaml:"max_file_count,omitempty"`
}

// Store is an append-only line log with numbered size-based rotation:
// the active file is Path, rotated segments are Path.1 (newest) .. Path.N.
type Store struct {
	config StoreConfig
	logger logging.Logger
	mutex  sync.Mutex
}

func NewStore(config StoreConfig, logger logging.Logger) *Store {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.MaxFileCount <= 0 {
		config.MaxFileCount = DefaultMaxFileCount
	}
	return &Store{
		config: config,
		logger: logger,
	}
}

func (s *Store) Path() string {
	return s.config.Path
}

// Append writes line plus a newline to the active file and rotates if the
// file grew past MaxBytes. Failures are logged and swallowed.
func (s *Store) Append(line string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.appendLocked(line); err != nil {
		s.logger.Errorf("Log append failed, path: %s, error: %v", s.config.Path, err)
	}
}

// Write implements io.Writer so the store can back a zap core. Each call
// is stored as one line with any trailing newline trimmed.
func (s *Store) Write(p []byte) (int, error) {
	line := string(p)
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	s.Append(line)
	return len(p), nil
}

// Sync is a no-op, every Append closes its file handle.
func (s *Store) Sync() error {
	return nil
}

func (s *Store) appendLocked(line string) error {
	if err := os.MkdirAll(filepath.Dir(s.config.Path), 0755); err != nil {
		return errors.NewIOError("failed to create log directory", err).WithContext("path", s.config.Path)
	}

	file, err := os.OpenFile(s.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.NewIOError("failed to open log file", err).WithContext("path", s.config.Path)
	}

	_, writeErr := file.WriteString(line + "\n")
	info, statErr := file.Stat()
	closeErr := file.Close()

	if writeErr != nil {
		return errors.NewIOError("failed to write log line", writeErr).WithContext("path", s.config.Path)
	}
	if statErr != nil {
		return errors.NewIOError("failed to stat log file", statErr).WithContext("path", s.config.Path)
	}
	if closeErr != nil {
		return errors.NewIOError("failed to close log file", closeErr).WithContext("path", s.config.Path)
	}

	if info.Size() > s.config.MaxBytes {
		return s.rotateLocked()
	}
	return nil
}

func (s *Store) rotateLocked() error {
	for i := s.config.MaxFileCount; i >= 1; i-- {
		segment := s.segmentPath(i)
		if _, err := os.Stat(segment); err != nil {
			continue
		}
		if i == s.config.MaxFileCount {
			if err := os.Remove(segment); err != nil {
				return errors.NewIOError("failed to drop oldest segment", err).WithContext("segment", segment)
			}
			continue
		}
		if err := os.Rename(segment, s.segmentPath(i+1)); err != nil {
			return errors.NewIOError("failed to shift segment", err).WithContext("segment", segment)
		}
	}

	if err := os.Rename(s.config.Path, s.segmentPath(1)); err != nil {
		return errors.NewIOError("failed to rotate active file", err).WithContext("path", s.config.Path)
	}

	file, err := os.OpenFile(s.config.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.NewIOError("failed to recreate active file", err).WithContext("path", s.config.Path)
	}
	return file.Close()
}

func (s *Store) segmentPath(i int) string {
	return fmt.Sprintf("%s.%d", s.config.Path, i)
}
