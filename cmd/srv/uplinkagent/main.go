package main

import (
	"fmt"
	"os"

	"github.com/core-tools/hsu-uplink/pkg/agent"
	"github.com/core-tools/hsu-uplink/pkg/agentconfig"
	"github.com/core-tools/hsu-uplink/pkg/logcollection"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"
	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" required:"true" description:"path to the agent configuration file (YAML or JSONC)"`
	Port        int    `long:"port" description:"control port, overrides the configuration file"`
	RunDuration int    `long:"run-duration" description:"duration in seconds to run the agent (debug feature)"`
	Validate    bool   `long:"validate" description:"validate the configuration file and exit"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	bootstrap := sprintfLogging.NewStdSprintfLogger()

	bootstrap.Infof("opts: %+v", opts)

	config, err := agent.LoadAndValidate(opts.Config)
	if err != nil {
		bootstrap.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}
	if opts.Validate {
		bootstrap.Infof("Configuration is valid")
		return
	}
	if opts.Port != 0 {
		if err := agentconfig.ValidatePort(opts.Port); err != nil {
			bootstrap.Errorf("Invalid port: %v", err)
			os.Exit(1)
		}
		config.Agent.Port = opts.Port
	}

	zapAdapter, err := logcollection.NewZapAdapter(config.Logging, logging.NewLogger(logPrefix("logging"), logging.LogFuncs{
		Debugf: bootstrap.Debugf,
		Infof:  bootstrap.Infof,
		Warnf:  bootstrap.Warnf,
		Errorf: bootstrap.Errorf,
	}))
	if err != nil {
		bootstrap.Errorf("Failed to create logger: %v", err)
		os.Exit(1)
	}
	defer zapAdapter.Sync()

	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: zapAdapter.Debugf,
			Infof:  zapAdapter.Infof,
			Warnf:  zapAdapter.Warnf,
			Errorf: zapAdapter.Errorf,
		})
	agentLogger := zapAdapter.Logger(logPrefix("hsu-uplink"))

	agentLogger.Infof("Starting...")

	if err := agent.Run(opts.RunDuration, opts.Config, config, coreLogger, agentLogger); err != nil {
		agentLogger.Errorf("Agent failed: %v", err)
		zapAdapter.Sync()
		os.Exit(1)
	}
}
