package agent

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/agentconfig"
	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"
)

// Run loads the configuration, starts the agent and blocks until a signal,
// a stop request over the control API, or the run duration elapses.
func Run(runDuration int, configFile string, config *agentconfig.AgentConfig, coreLogger coreLogging.Logger, logger logging.Logger) error {
	logger.Infof("Agent runner starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	logger.Infof("Using CONFIGURATION FILE: %s", configFile)

	if config == nil {
		loaded, err := LoadAndValidate(configFile)
		if err != nil {
			return err
		}
		config = loaded
	}

	logger.Infof("Agent port: %d, uplink configured: %t", config.Agent.Port, config.Uplink != nil)

	agent, err := NewAgent(config, coreLogger, logger)
	if err != nil {
		return errors.NewInternalError("failed to create agent", err)
	}

	watcher, err := agentconfig.NewWatcher(configFile, func(updated *agentconfig.AgentConfig) {
		applyReloadedConfig(agent, updated, logger)
	}, logging.WithPrefix(logger, "watcher, "))
	if err != nil {
		return err
	}

	if err := agent.Start(ctx); err != nil {
		return errors.NewInternalError("failed to start agent", err)
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warnf("Configuration hot reload disabled: %v", err)
	}
	defer watcher.Stop()

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	logger.Infof("Agent is ready, session: %s", agent.SessionID())

	select {
	case receivedSignal := <-sig:
		logger.Infof("Agent runner received signal: %v", receivedSignal)
	case <-agent.StopRequested():
		logger.Infof("Agent runner received stop request")
	case <-ctx.Done():
		logger.Infof("Agent runner timed out")
	}

	// Fresh context, the run context may already be done
	if err := agent.Stop(context.Background()); err != nil {
		logger.Errorf("Agent stopped with errors: %v", err)
		return err
	}

	logger.Infof("Agent runner stopped")
	return nil
}

// LoadAndValidate reads a configuration file without running anything
func LoadAndValidate(configFile string) (*agentconfig.AgentConfig, error) {
	config, err := agentconfig.LoadConfigFromFile(configFile)
	if err != nil {
		return nil, errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}
	if err := agentconfig.ValidateConfig(config); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return config, nil
}

// applyReloadedConfig forwards the uplink section of a reloaded file.
// Agent-level options only take effect on restart.
func applyReloadedConfig(agent *Agent, config *agentconfig.AgentConfig, logger logging.Logger) {
	uplink, err := config.UplinkConfiguration()
	if err != nil {
		logger.Errorf("Reloaded uplink configuration unusable: %v", err)
		return
	}
	if uplink == nil {
		logger.Warnf("Reloaded configuration has no uplink section, keeping the current one")
		return
	}
	if err := agent.UpdateConfiguration(uplink); err != nil {
		logger.Errorf("Failed to apply reloaded configuration: %v", err)
	}
}
