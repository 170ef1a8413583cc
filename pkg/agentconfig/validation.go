package agentconfig

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
)

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *AgentConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateAgentOptions(&config.Agent); err != nil {
		return errors.NewValidationError("invalid agent configuration", err)
	}

	if err := validateLogLevel(config.Logging.Level); err != nil {
		return errors.NewValidationError("invalid logging configuration", err)
	}

	if config.Uplink != nil {
		if err := validateUplinkOptions(config.Uplink); err != nil {
			return errors.NewValidationError("invalid uplink configuration", err)
		}
	}

	return nil
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError(fmt.Sprintf("invalid port number: %d", port), nil).WithContext("valid_range", "1-65535")
	}
	return nil
}

func validateAgentOptions(agent *AgentOptions) error {
	if err := ValidatePort(agent.Port); err != nil {
		return err
	}

	if agent.AssetPath == "" {
		return errors.NewValidationError("asset path is required", nil)
	}
	if !filepath.IsAbs(agent.AssetPath) {
		return errors.NewValidationError("asset path must be absolute", nil).WithContext("asset_path", agent.AssetPath)
	}
	if agent.LinkerPath != "" && !filepath.IsAbs(agent.LinkerPath) {
		return errors.NewValidationError("linker path must be absolute", nil).WithContext("linker_path", agent.LinkerPath)
	}

	intervals := map[string]time.Duration{
		"reconcile_interval": agent.ReconcileInterval,
		"power_interval":     agent.PowerInterval,
		"network_interval":   agent.NetworkInterval,
		"benchmark_interval": agent.BenchmarkInterval,
	}
	for name, interval := range intervals {
		if interval <= 0 {
			return errors.NewValidationError("interval must be positive", nil).WithContext("field", name)
		}
	}

	if agent.StopPollInterval < 0 || agent.StopPollAttempts < 0 {
		return errors.NewValidationError("stop poll settings cannot be negative", nil)
	}

	return nil
}

func validateLogLevel(level string) error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLogLevels {
		if level == valid {
			return nil
		}
	}
	return errors.NewValidationError(fmt.Sprintf("invalid log level: %s", level), nil).WithContext("valid_levels", "debug, info, warn, error")
}

func validateUplinkOptions(uplink *UplinkOptions) error {
	if uplink.CredentialsFile == "" && uplink.Credentials == "" {
		return errors.NewValidationError("credentials or credentials_file is required", nil)
	}
	if uplink.CredentialsFile != "" && uplink.Credentials != "" {
		return errors.NewValidationError("only one of credentials and credentials_file may be set", nil)
	}
	for i, arg := range uplink.ExtraArgs {
		if arg == "" {
			return errors.NewValidationError(fmt.Sprintf("extra argument at index %d is empty", i), nil)
		}
	}
	return nil
}
