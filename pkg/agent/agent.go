package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/agentconfig"
	"github.com/core-tools/hsu-uplink/pkg/control"
	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
	"github.com/core-tools/hsu-uplink/pkg/logrotate"
	"github.com/core-tools/hsu-uplink/pkg/materialize"
	"github.com/core-tools/hsu-uplink/pkg/monitoring"
	"github.com/core-tools/hsu-uplink/pkg/processfile"
	"github.com/core-tools/hsu-uplink/pkg/processstate"
	"github.com/core-tools/hsu-uplink/pkg/scheduler"
	"github.com/core-tools/hsu-uplink/pkg/supervisor"
	"github.com/core-tools/hsu-uplink/pkg/telemetry"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"

	corecontrol "github.com/core-tools/hsu-core/pkg/control"
	coredomain "github.com/core-tools/hsu-core/pkg/domain"
	corelogging "github.com/core-tools/hsu-core/pkg/logging"
	"github.com/google/uuid"
)

// AgentState represents the lifecycle of the agent itself, as opposed to
// the supervised uplink
type AgentState string

const (
	AgentStateNotStarted AgentState = "not_started"
	AgentStateRunning    AgentState = "running"
	AgentStateStopping   AgentState = "stopping"
	AgentStateStopped    AgentState = "stopped"
)

const (
	taskProcessManager = "ProcessManager"
	taskPowerStatus    = "PowerStatus"
	taskNetworkStatus  = "NetworkStatus"
	taskWatchdog       = "Watchdog"

	schedulingTimeLayout = "2006-01-02 15:04:05"
)

// ProcessTable resolves, kills and locates host processes
type ProcessTable interface {
	processstate.IdentityResolver
	processstate.ForceKiller
}

// Dependencies replaces host capabilities. Zero fields get the host
// implementation.
type Dependencies struct {
	PowerProvider   telemetry.PowerProvider
	NetworkProvider telemetry.NetworkProvider
	Dialer          monitoring.Dialer
	Spawner         supervisor.Spawner
	ProcessTable    ProcessTable
	Notifier        Notifier

	// DisableServer skips the gRPC control server
	DisableServer bool
}

type Agent struct {
	config    *agentconfig.AgentConfig
	sessionID string
	logger    logging.Logger

	layout          *processfile.Layout
	outputStore     *logrotate.Store
	schedulingStore *logrotate.Store
	channel         *telemetry.Channel
	supervisor      *supervisor.Supervisor
	networkState    *telemetry.NetworkState
	powerSampler    *telemetry.PowerSampler
	networkSampler  *telemetry.NetworkSampler
	benchmark       *monitoring.BenchmarkMonitor
	notifier        Notifier
	server          corecontrol.Server

	mutex         sync.Mutex
	state         AgentState
	scheduler     *scheduler.Scheduler
	stopRequested chan struct{}
	stopOnce      sync.Once
}

func NewAgent(config *agentconfig.AgentConfig, coreLogger corelogging.Logger, logger logging.Logger) (*Agent, error) {
	return NewAgentWithDependencies(config, Dependencies{}, coreLogger, logger)
}

func NewAgentWithDependencies(config *agentconfig.AgentConfig, deps Dependencies, coreLogger corelogging.Logger, logger logging.Logger) (*Agent, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}
	if err := agentconfig.ValidateConfig(config); err != nil {
		return nil, err
	}
	setDependencyDefaults(config, &deps)
	if deps.Spawner == nil {
		deps.Spawner = supervisor.NewProcessSpawner(logging.WithPrefix(logger, "process, "))
	}

	options := config.Agent
	a := &Agent{
		config:        config,
		sessionID:     uuid.NewString(),
		logger:        logger,
		notifier:      deps.Notifier,
		state:         AgentStateNotStarted,
		stopRequested: make(chan struct{}),
	}

	a.layout = processfile.NewLayout(options.Layout, logging.WithPrefix(logger, "layout, "))
	a.outputStore = logrotate.NewStore(logrotate.StoreConfig{
		Path:         a.layout.OutputLogPath(),
		MaxBytes:     options.OutputLog.MaxBytes,
		MaxFileCount: options.OutputLog.MaxFileCount,
	}, logger)
	a.schedulingStore = logrotate.NewStore(logrotate.StoreConfig{
		Path:         a.layout.SchedulingLogPath(),
		MaxBytes:     options.SchedulingLog.MaxBytes,
		MaxFileCount: options.SchedulingLog.MaxFileCount,
	}, logger)

	a.channel = telemetry.NewChannel(a.onChannelFailure, logging.WithPrefix(logger, "channel, "))

	sup, err := supervisor.NewSupervisor(supervisor.Options{
		ExecutablePath:   a.layout.ExecutablePath(),
		ConfigPath:       a.layout.ConfigPath(),
		CredentialsPath:  a.layout.CredentialsPath(),
		LinkerPath:       options.LinkerPath,
		WorkingDirectory: a.layout.DataDirectory(),
		PollInterval:     options.StopPollInterval,
		PollAttempts:     options.StopPollAttempts,
	}, supervisor.Dependencies{
		Materializer: materialize.NewMaterializer(options.AssetPath, a.layout, logging.WithPrefix(logger, "materialize, ")),
		Spawner:      deps.Spawner,
		Resolver:     deps.ProcessTable,
		Killer:       deps.ProcessTable,
		Output:       a.outputStore,
		Stdin:        a.channel,
		PIDFile:      a.layout,
	}, logging.WithPrefix(logger, "supervisor, "))
	if err != nil {
		return nil, errors.NewInternalError("failed to create supervisor", err)
	}
	a.supervisor = sup

	a.networkState = telemetry.NewNetworkState()
	a.powerSampler = telemetry.NewPowerSampler(deps.PowerProvider, a.channel, logger)
	a.networkSampler = telemetry.NewNetworkSampler(deps.NetworkProvider, a.networkState, a.channel, logger)

	a.benchmark = monitoring.NewBenchmarkMonitor(monitoring.BenchmarkMonitorConfig{
		Benchmark: monitoring.DefaultBenchmarkConfig(),
		Interval:  options.BenchmarkInterval,
	}, a.pingTarget, a.networkState.SetBenchmark, logging.WithPrefix(logger, "benchmark, "))
	if deps.Dialer != nil {
		a.benchmark.SetDialer(deps.Dialer)
	}
	a.benchmark.SetRoundCallback(func() {
		a.traceTick("network monitoring thread", time.Now())
	})

	if !deps.DisableServer {
		server, err := corecontrol.NewServer(corecontrol.ServerOptions{Port: options.Port}, coreLogger)
		if err != nil {
			return nil, errors.NewInternalError("failed to create server", err)
		}

		coreHandler := coredomain.NewDefaultHandler(coreLogger)
		corecontrol.RegisterGRPCServerHandler(server.GRPC(), coreHandler, coreLogger)

		control.RegisterGRPCServerHandler(server.GRPC(), NewAgentHandler(a, logger), logger)
		a.server = server
	}

	return a, nil
}

func setDependencyDefaults(config *agentconfig.AgentConfig, deps *Dependencies) {
	if deps.PowerProvider == nil {
		deps.PowerProvider = telemetry.NewSysfsPowerProvider(config.Agent.PowerSupplyRoot)
	}
	if deps.NetworkProvider == nil {
		deps.NetworkProvider = telemetry.NewHostNetworkProvider()
	}
	if deps.ProcessTable == nil {
		deps.ProcessTable = processstate.NewHostProcessTable()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewSystemdNotifier()
	}
}

// Start reaps an orphan left by a previous run, starts the periodic tasks and
// the control server, then applies the configured uplink if there is one.
func (a *Agent) Start(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.state != AgentStateNotStarted {
		return errors.NewConflictError("agent already started", nil).WithContext("state", string(a.state))
	}

	a.logger.Infof("Starting agent, session: %s", a.sessionID)

	a.supervisor.ReapOrphan()

	if config, err := a.config.UplinkConfiguration(); err != nil {
		a.logger.Errorf("Initial uplink configuration unusable: %v", err)
	} else if config != nil {
		if err := a.supervisor.UpdateConfiguration(config); err != nil {
			return err
		}
	}

	sched, err := scheduler.NewScheduler(a.tasks(), a.traceTick, logging.WithPrefix(a.logger, "scheduler, "))
	if err != nil {
		return errors.NewInternalError("failed to create scheduler", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.scheduler = sched

	if err := a.benchmark.Start(ctx); err != nil {
		a.logger.Errorf("Failed to start benchmark monitor: %v", err)
	}

	if a.server != nil {
		a.server.Start(ctx)
	}

	a.state = AgentStateRunning
	a.notify(notifyReady)

	a.logger.Infof("Agent started")
	return nil
}

func (a *Agent) tasks() []scheduler.Task {
	options := a.config.Agent
	tasks := []scheduler.Task{
		{Name: taskProcessManager, Period: options.ReconcileInterval, Run: func(context.Context) { a.supervisor.Tick() }},
		{Name: taskPowerStatus, Period: options.PowerInterval, Run: func(context.Context) { a.powerSampler.Sample() }},
		{Name: taskNetworkStatus, Period: options.NetworkInterval, Run: func(context.Context) { a.networkSampler.Sample() }},
	}

	interval, err := a.notifier.WatchdogInterval()
	if err != nil {
		a.logger.Warnf("Watchdog interval unavailable: %v", err)
	}
	if interval > 0 {
		tasks = append(tasks, scheduler.Task{
			Name:   taskWatchdog,
			Period: interval / 2,
			Run:    func(context.Context) { a.notify(notifyWatchdog) },
		})
	}
	return tasks
}

// Stop cancels the periodic tasks, stops the uplink and shuts down the
// control server. Telemetry stops before the child so nothing is written to
// a closing stdin.
func (a *Agent) Stop(ctx context.Context) error {
	a.mutex.Lock()
	switch a.state {
	case AgentStateNotStarted:
		a.state = AgentStateStopped
		a.mutex.Unlock()
		return a.supervisor.Shutdown(ctx)
	case AgentStateStopping, AgentStateStopped:
		a.mutex.Unlock()
		return errors.NewConflictError("agent already stopping", nil).WithContext("state", string(a.state))
	}
	a.state = AgentStateStopping
	sched := a.scheduler
	a.mutex.Unlock()

	a.logger.Infof("Stopping agent...")
	a.notify(notifyStopping)

	timeout := a.config.Agent.ShutdownTimeout
	if timeout <= 0 {
		timeout = agentconfig.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errs := errors.NewErrorCollection()

	sched.Cancel()
	a.benchmark.Stop()

	if err := a.supervisor.Shutdown(ctx); err != nil {
		errs.Add(err)
	}

	if a.server != nil {
		a.server.Shutdown(ctx)
	}

	a.mutex.Lock()
	a.state = AgentStateStopped
	a.mutex.Unlock()

	a.logger.Infof("Agent stopped")
	return errs.ToError()
}

// UpdateConfiguration replaces the desired uplink configuration. The
// supervisor picks it up on its next reconcile tick.
func (a *Agent) UpdateConfiguration(config *uplinkconfig.Configuration) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}
	a.logger.Infof("Updating uplink configuration, fingerprint: %s", config.Fingerprint())
	return a.supervisor.UpdateConfiguration(config)
}

// PushData forwards an externally produced record to the uplink's stdin.
// Records are dropped with a conflict error while no child is attached.
func (a *Agent) PushData(payload telemetry.Payload) error {
	if payload.Stream == "" {
		return errors.NewValidationError("stream is required", nil)
	}
	for _, field := range payload.Fields {
		switch field.Key {
		case "stream", "sequence", "timestamp":
			return errors.NewValidationError("field key is reserved", nil).WithContext("key", field.Key)
		}
	}
	if state := a.State(); state != AgentStateRunning {
		return errors.NewConflictError("agent is not running", nil).WithContext("state", string(state))
	}
	if !a.channel.Attached() {
		return errors.NewConflictError("uplink is not attached", nil).WithContext("stream", payload.Stream)
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = telemetry.NowMillis()
	}
	a.channel.Send(payload)
	return nil
}

func (a *Agent) IsChildHealthy() bool {
	return a.supervisor.IsChildHealthy()
}

type Status struct {
	SessionID  string
	State      AgentState
	Supervisor supervisor.Snapshot
	Network    telemetry.NetworkSnapshot
}

func (a *Agent) Status() Status {
	return Status{
		SessionID:  a.sessionID,
		State:      a.State(),
		Supervisor: a.supervisor.Snapshot(),
		Network:    a.networkState.Snapshot(),
	}
}

func (a *Agent) State() AgentState {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state
}

func (a *Agent) SessionID() string {
	return a.sessionID
}

// RequestStop asks the runner to stop the agent. Stopping inline would
// shut the control server down under the caller's own request.
func (a *Agent) RequestStop() {
	a.stopOnce.Do(func() {
		a.logger.Infof("Stop requested")
		close(a.stopRequested)
	})
}

func (a *Agent) StopRequested() <-chan struct{} {
	return a.stopRequested
}

func (a *Agent) pingTarget() string {
	return a.supervisor.PingTarget()
}

func (a *Agent) onChannelFailure(err error) {
	a.logger.Errorf("Failed to write telemetry to uplink stdin: %v", err)
	a.supervisor.MarkUnhealthy(err)
}

func (a *Agent) traceTick(name string, at time.Time) {
	a.schedulingStore.Append(fmt.Sprintf("%s: %s tick", at.Format(schedulingTimeLayout), name))
}

func (a *Agent) notify(state string) {
	sent, err := a.notifier.Notify(state)
	if err != nil {
		a.logger.Warnf("Service manager notification failed, state: %s, error: %v", state, err)
		return
	}
	if sent {
		a.logger.Debugf("Service manager notified: %s", state)
	}
}
