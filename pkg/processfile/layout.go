package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
)

// Default application directory under the layout root
const DefaultAppName = "bytebeam"

const (
	moduleDirName      = "uplink_module"
	dataDirName        = "uplink_data"
	executableName     = "uplink"
	configFileName     = "config.toml"
	credentialsName    = "device.json"
	persistenceDirName = "persistence"
	outputLogName      = "out.log"
	schedulingLogName  = "service_scheduling.log"
	pidFileName        = "uplink.pid"
)

// LayoutConfig selects where the agent keeps its files
type LayoutConfig struct {
	// Root directory. If empty, an OS-appropriate default is chosen from ServiceContext
	RootDirectory string `yaml:"root_directory,omitempty" json:"root_directory,omitempty"`

	ServiceContext ServiceContext `yaml:"service_context,omitempty" json:"service_context,omitempty"`

	// Application subdirectory under the root
	AppName string `yaml:"app_name,omitempty" json:"app_name,omitempty"`
}

// ServiceContext defines the context in which the agent runs
type ServiceContext string

const (
	SystemService  ServiceContext = "system"
	UserService    ServiceContext = "user"
	SessionService ServiceContext = "session"
)

// Layout resolves every path the agent and the uplink share:
//
//	<root>/<app>/uplink_module/{uplink, config.toml}
//	<root>/<app>/uplink_data/{device.json, persistence/, out.log*}
//	<root>/<app>/service_scheduling.log*
//	<root>/<app>/uplink.pid
type Layout struct {
	config LayoutConfig
	logger logging.Logger
}

func NewLayout(config LayoutConfig, logger logging.Logger) *Layout {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	return &Layout{
		config: config,
		logger: logger,
	}
}

func (l *Layout) AppDirectory() string {
	return filepath.Join(l.rootDirectory(), l.config.AppName)
}

func (l *Layout) ModuleDirectory() string {
	return filepath.Join(l.AppDirectory(), moduleDirName)
}

func (l *Layout) DataDirectory() string {
	return filepath.Join(l.AppDirectory(), dataDirName)
}

func (l *Layout) ExecutablePath() string {
	return filepath.Join(l.ModuleDirectory(), executableName)
}

func (l *Layout) ConfigPath() string {
	return filepath.Join(l.ModuleDirectory(), configFileName)
}

func (l *Layout) CredentialsPath() string {
	return filepath.Join(l.DataDirectory(), credentialsName)
}

func (l *Layout) PersistenceDirectory() string {
	return filepath.Join(l.DataDirectory(), persistenceDirName)
}

func (l *Layout) OutputLogPath() string {
	return filepath.Join(l.DataDirectory(), outputLogName)
}

// SchedulingLogPath lives one level above the data directory
func (l *Layout) SchedulingLogPath() string {
	return filepath.Join(l.AppDirectory(), schedulingLogName)
}

func (l *Layout) PIDFilePath() string {
	return filepath.Join(l.AppDirectory(), pidFileName)
}

// EnsureDirectories creates the module, data and persistence directories
func (l *Layout) EnsureDirectories() error {
	for _, dir := range []string{l.ModuleDirectory(), l.DataDirectory(), l.PersistenceDirectory()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create directory", err).WithContext("directory", dir)
		}
	}
	return nil
}

// WritePIDFile records the uplink PID so a restarted agent can find a child
// left behind by a crash.
func (l *Layout) WritePIDFile(pid int) error {
	pidFilePath := l.PIDFilePath()
	l.logger.Debugf("Writing PID file, pid: %d, path: %s", pid, pidFilePath)

	if err := os.MkdirAll(filepath.Dir(pidFilePath), 0755); err != nil {
		return errors.NewIOError("failed to create PID file directory", err).WithContext("pid_file", pidFilePath)
	}

	pidContent := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(pidFilePath, []byte(pidContent), 0644); err != nil {
		l.logger.Errorf("Failed to write PID file, pid: %d, path: %s, error: %v", pid, pidFilePath, err)
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", pidFilePath).WithContext("pid", pid)
	}
	return nil
}

// ReadPIDFile returns the recorded PID, or a not-found error if no PID file exists
func (l *Layout) ReadPIDFile() (int, error) {
	pidFilePath := l.PIDFilePath()

	data, err := os.ReadFile(pidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file does not exist", err).WithContext("pid_file", pidFilePath)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", pidFilePath)
	}

	content := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(content)
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID in PID file", err).WithContext("pid_file", pidFilePath).WithContext("content", content)
	}
	return pid, nil
}

func (l *Layout) RemovePIDFile() error {
	if err := os.Remove(l.PIDFilePath()); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", l.PIDFilePath())
	}
	return nil
}

func (l *Layout) rootDirectory() string {
	if l.config.RootDirectory != "" {
		return l.config.RootDirectory
	}

	switch l.config.ServiceContext {
	case SystemService:
		return systemServiceDirectory()
	case SessionService:
		return sessionServiceDirectory()
	default:
		return userServiceDirectory()
	}
}

func systemServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			return programData
		}
		return "C:\\ProgramData"
	case "darwin":
		return "/Library/Application Support"
	default:
		return "/var/lib"
	}
}

func userServiceDirectory() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

func sessionServiceDirectory() string {
	if runtime.GOOS == "linux" {
		sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
		if _, err := os.Stat(sessionDir); err == nil {
			return sessionDir
		}
	}
	return os.TempDir()
}
