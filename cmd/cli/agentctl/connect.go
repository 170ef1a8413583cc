package main

import (
	"context"
	"fmt"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/control"
	"github.com/core-tools/hsu-uplink/pkg/domain"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"
	coreLogging "github.com/core-tools/hsu-core/pkg/logging"
	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"
)

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

// connect attaches to the agent, waits until it answers pings and returns
// the control gateway
func connect(ctx context.Context, flags *connectionFlags) (domain.Contract, error) {
	discard := func(string, ...interface{}) {}
	debugf, infof, warnf, errorf := discard, discard, discard, discard
	if flags.verbose {
		logger := sprintfLogging.NewStdSprintfLogger()
		debugf, infof, warnf, errorf = logger.Debugf, logger.Infof, logger.Warnf, logger.Errorf
	}

	coreLogger := coreLogging.NewLogger(logPrefix("hsu-core"), coreLogging.LogFuncs{
		Debugf: debugf,
		Infof:  infof,
		Warnf:  warnf,
		Errorf: errorf,
	})
	uplinkLogger := logging.NewLogger(logPrefix("hsu-uplink"), logging.LogFuncs{
		Debugf: debugf,
		Infof:  infof,
		Warnf:  warnf,
		Errorf: errorf,
	})

	connection, err := coreControl.NewConnection(coreControl.ConnectionOptions{
		ServerPath: flags.serverPath,
		AttachPort: flags.port,
	}, coreLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent: %w", err)
	}

	coreGateway := coreControl.NewGRPCClientGateway(connection.GRPC(), coreLogger)
	err = coreDomain.RetryPing(ctx, coreGateway, coreDomain.RetryPingOptions{
		RetryAttempts: 10,
		RetryInterval: 1 * time.Second,
	}, coreLogger)
	if err != nil {
		return nil, fmt.Errorf("agent does not answer: %w", err)
	}

	return control.NewGRPCClientGateway(connection.GRPC(), uplinkLogger), nil
}
