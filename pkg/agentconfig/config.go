package agentconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logcollection"
	"github.com/core-tools/hsu-uplink/pkg/processfile"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort              = 50056
	DefaultReconcileInterval = time.Second
	DefaultPowerInterval     = 5 * time.Second
	DefaultNetworkInterval   = time.Second
	DefaultBenchmarkInterval = 5 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultOutputLogFiles    = 8
	DefaultSchedulingFiles   = 3
	DefaultLogMaxBytes       = 1024000
)

// AgentConfig represents the top-level configuration file structure
type AgentConfig struct {
	Agent   AgentOptions            `yaml:"agent"`
	Uplink  *UplinkOptions          `yaml:"uplink,omitempty"` // Optional, the agent idles until configured
	Logging logcollection.ZapConfig `yaml:"logging"`
}

// AgentOptions represents agent-level configuration
type AgentOptions struct {
	Layout     processfile.LayoutConfig `yaml:"layout"`
	AssetPath  string                   `yaml:"asset_path"`
	LinkerPath string                   `yaml:"linker_path,omitempty"`
	Port       int                      `yaml:"port"`

	ReconcileInterval time.Duration `yaml:"reconcile_interval,omitempty"`
	PowerInterval     time.Duration `yaml:"power_interval,omitempty"`
	NetworkInterval   time.Duration `yaml:"network_interval,omitempty"`
	BenchmarkInterval time.Duration `yaml:"benchmark_interval,omitempty"`

	StopPollInterval time.Duration `yaml:"stop_poll_interval,omitempty"`
	StopPollAttempts int           `yaml:"stop_poll_attempts,omitempty"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout,omitempty"`

	PowerSupplyRoot string `yaml:"power_supply_root,omitempty"`

	OutputLog     LogFileOptions `yaml:"output_log,omitempty"`
	SchedulingLog LogFileOptions `yaml:"scheduling_log,omitempty"`
}

type LogFileOptions struct {
	MaxBytes     int64 `yaml:"max_bytes,omitempty"`
	MaxFileCount int   `yaml:"max_file_count,omitempty"`
}

// UplinkOptions describes the uplink configuration. Credentials come either
// inline or from a file; a relative file path resolves against the
// configuration file's directory.
type UplinkOptions struct {
	CredentialsFile   string   `yaml:"credentials_file,omitempty"`
	Credentials       string   `yaml:"credentials,omitempty"`
	EnableRemoteShell *bool    `yaml:"enable_remote_shell,omitempty"`
	ExtraArgs         []string `yaml:"extra_args,omitempty"`
	PingTarget        *string  `yaml:"ping_target,omitempty"`
}

// LoadConfigFromFile loads agent configuration from a YAML or JSONC file
func LoadConfigFromFile(filename string) (*AgentConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data, formatFromName(filename))
	if err != nil {
		return nil, errors.NewValidationError("invalid configuration file", err).WithContext("filename", filename)
	}

	if config.Uplink != nil && config.Uplink.CredentialsFile != "" && !filepath.IsAbs(config.Uplink.CredentialsFile) {
		config.Uplink.CredentialsFile = filepath.Join(filepath.Dir(filename), config.Uplink.CredentialsFile)
	}

	return config, nil
}

type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONC Format = "jsonc"
)

func formatFromName(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".jsonc":
		return FormatJSONC
	default:
		return FormatYAML
	}
}

// ParseConfig decodes configuration data and applies defaults. JSONC input
// is normalized to YAML so both formats share tags and duration parsing.
func ParseConfig(data []byte, format Format) (*AgentConfig, error) {
	if format == FormatJSONC {
		var document interface{}
		if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
			return nil, errors.NewValidationError("failed to parse JSONC configuration", err)
		}
		normalized, err := yaml.Marshal(document)
		if err != nil {
			return nil, errors.NewInternalError("failed to normalize JSONC configuration", err)
		}
		data = normalized
	}

	var config AgentConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	if err := setConfigDefaults(&config); err != nil {
		return nil, errors.NewValidationError("failed to apply configuration defaults", err)
	}

	return &config, nil
}

// UplinkConfiguration builds the immutable uplink configuration. It returns
// nil without error when the file has no uplink section.
func (c *AgentConfig) UplinkConfiguration() (*uplinkconfig.Configuration, error) {
	if c.Uplink == nil {
		return nil, nil
	}

	credentials := []byte(c.Uplink.Credentials)
	if c.Uplink.CredentialsFile != "" {
		data, err := os.ReadFile(c.Uplink.CredentialsFile)
		if err != nil {
			return nil, errors.NewIOError("failed to read credentials file", err).WithContext("credentials_file", c.Uplink.CredentialsFile)
		}
		credentials = data
	}

	return uplinkconfig.New(credentials, *c.Uplink.EnableRemoteShell, c.Uplink.ExtraArgs, *c.Uplink.PingTarget), nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *AgentConfig) error {
	agent := &config.Agent
	if agent.Port == 0 {
		agent.Port = DefaultPort
	}
	if agent.ReconcileInterval == 0 {
		agent.ReconcileInterval = DefaultReconcileInterval
	}
	if agent.PowerInterval == 0 {
		agent.PowerInterval = DefaultPowerInterval
	}
	if agent.NetworkInterval == 0 {
		agent.NetworkInterval = DefaultNetworkInterval
	}
	if agent.BenchmarkInterval == 0 {
		agent.BenchmarkInterval = DefaultBenchmarkInterval
	}
	if agent.ShutdownTimeout == 0 {
		agent.ShutdownTimeout = DefaultShutdownTimeout
	}
	if agent.OutputLog.MaxBytes == 0 {
		agent.OutputLog.MaxBytes = DefaultLogMaxBytes
	}
	if agent.OutputLog.MaxFileCount == 0 {
		agent.OutputLog.MaxFileCount = DefaultOutputLogFiles
	}
	if agent.SchedulingLog.MaxBytes == 0 {
		agent.SchedulingLog.MaxBytes = DefaultLogMaxBytes
	}
	if agent.SchedulingLog.MaxFileCount == 0 {
		agent.SchedulingLog.MaxFileCount = DefaultSchedulingFiles
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "console"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "stdout"
	}

	if uplink := config.Uplink; uplink != nil {
		if uplink.EnableRemoteShell == nil {
			enabled := uplinkconfig.DefaultEnableRemoteShell
			uplink.EnableRemoteShell = &enabled
		}
		if uplink.ExtraArgs == nil {
			uplink.ExtraArgs = uplinkconfig.DefaultExtraArgs()
		}
		if uplink.PingTarget == nil {
			target := uplinkconfig.DefaultPingTarget
			uplink.PingTarget = &target
		}
	}

	return nil
}
