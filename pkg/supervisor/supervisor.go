package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logcollection"
	"github.com/core-tools/hsu-uplink/pkg/logging"
	"github.com/core-tools/hsu-uplink/pkg/process"
	"github.com/core-tools/hsu-uplink/pkg/processstate"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollAttempts = 6
	DefaultKillWait     = 2 * time.Second
)

type Options struct {
	ExecutablePath   string
	ConfigPath       string
	CredentialsPath  string
	LinkerPath       string
	Environment      []string
	WorkingDirectory string

	// Graceful stop polls liveness PollAttempts times, PollInterval apart,
	// before escalating to a forced kill.
	PollInterval time.Duration
	PollAttempts int

	// KillWait bounds the wait for exit after a forced kill
	KillWait time.Duration
}

type Dependencies struct {
	Materializer Materializer
	Spawner      Spawner
	Resolver     processstate.IdentityResolver
	Killer       processstate.ForceKiller
	Output       logcollection.LineSink

	// Optional
	Stdin   StdinAttacher
	PIDFile PIDFile
}

// Supervisor reconciles the desired uplink configuration with the child
// process. All transitions happen in Tick, UpdateConfiguration,
// MarkUnhealthy and the stop goroutine they start.
type Supervisor struct {
	options Options
	deps    Dependencies
	logger  logging.Logger

	mutex         sync.Mutex
	state         State
	needsRestart  bool
	stopAttempt   int
	pending       *uplinkconfig.Configuration
	applied       *uplinkconfig.Configuration
	child         Child
	identity      processstate.Identity
	identityKnown bool
	collector     *logcollection.Collector
	stopDone      chan struct{}
	shuttingDown  bool
	starts        int64
	lastExitCode  int
	lastError     error
	startedAt     time.Time
}

func NewSupervisor(options Options, deps Dependencies, logger logging.Logger) (*Supervisor, error) {
	if options.ExecutablePath == "" || options.ConfigPath == "" || options.CredentialsPath == "" {
		return nil, errors.NewValidationError("executable, config and credentials paths are required", nil)
	}
	if deps.Materializer == nil || deps.Spawner == nil {
		return nil, errors.NewValidationError("materializer and spawner are required", nil)
	}
	if deps.Resolver == nil || deps.Killer == nil {
		return nil, errors.NewValidationError("identity resolver and force killer are required", nil)
	}
	if deps.Output == nil {
		return nil, errors.NewValidationError("output sink is required", nil)
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.PollAttempts <= 0 {
		options.PollAttempts = DefaultPollAttempts
	}
	if options.KillWait <= 0 {
		options.KillWait = DefaultKillWait
	}

	return &Supervisor{
		options:      options,
		deps:         deps,
		logger:       logger,
		state:        StateNoConfig,
		lastExitCode: -1,
	}, nil
}

// UpdateConfiguration records the desired configuration. The next Tick
// acts on it; a structurally equal configuration is ignored.
func (s *Supervisor) UpdateConfiguration(config *uplinkconfig.Configuration) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateStopped || s.shuttingDown {
		return errors.NewConflictError("supervisor is stopped", nil)
	}
	if config.Equal(s.pending) {
		s.logger.Debugf("Configuration unchanged, fingerprint: %s", config.Fingerprint())
		return nil
	}

	s.pending = config
	if s.state == StateNoConfig || s.state == StateConfigured {
		s.needsRestart = !config.Equal(s.applied)
		s.transitionLocked(StateConfigured)
	}

	s.logger.Infof("Configuration updated, fingerprint: %s, state: %s", config.Fingerprint(), s.state)
	return nil
}

// Tick runs one reconcile step. It never blocks on the child: a stop it
// initiates continues on its own goroutine.
func (s *Supervisor) Tick() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch s.state {
	case StateNoConfig, StateStoppingGraceful, StateStoppingForced, StateStopped:
		return
	}

	if !s.pending.Equal(s.applied) {
		if s.state == StateRunning {
			s.logger.Infof("Configuration changed, stopping uplink, pid: %d", s.child.PID())
			s.beginStopLocked(context.Background(), stopReconfigure)
			return
		}
		s.materializeLocked()
		return
	}

	switch s.state {
	case StateConfigured:
		s.transitionLocked(StateStarting)
	case StateStarting:
		s.spawnLocked()
	case StateRunning:
		s.checkLivenessLocked()
	}
}

// MarkUnhealthy is the unhealthy-child path for failures detected outside
// the liveness check, such as a closed stdin.
func (s *Supervisor) MarkUnhealthy(cause error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != StateRunning {
		return
	}

	s.logger.Warnf("Uplink unhealthy, pid: %d, error: %v", s.child.PID(), cause)
	s.lastError = cause
	s.beginStopLocked(context.Background(), stopUnhealthy)
}

func (s *Supervisor) IsChildHealthy() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state == StateRunning && s.child != nil && !s.child.Exited()
}

// PingTarget is the reachability target of the newest configuration, or ""
// before the first one arrives.
func (s *Supervisor) PingTarget() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.pending == nil {
		return ""
	}
	return s.pending.PingTarget()
}

func (s *Supervisor) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapshot := Snapshot{
		State:              s.state,
		NeedsRestart:       s.needsRestart,
		StopAttempt:        s.stopAttempt,
		AppliedFingerprint: s.applied.Fingerprint(),
		PendingFingerprint: s.pending.Fingerprint(),
		LastExitCode:       s.lastExitCode,
		StartedAt:          s.startedAt,
	}
	if s.child != nil {
		snapshot.PID = s.child.PID()
	}
	if s.starts > 1 {
		snapshot.Restarts = s.starts - 1
	}
	if s.lastError != nil {
		snapshot.LastError = s.lastError.Error()
	}
	return snapshot
}

// Shutdown runs the graceful stop protocol to completion and leaves the
// supervisor Stopped. Scheduled ticks must be cancelled before calling it.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	s.shuttingDown = true

	switch s.state {
	case StateStopped:
		s.mutex.Unlock()
		return nil
	case StateRunning:
		s.beginStopLocked(ctx, stopShutdown)
	case StateStoppingGraceful, StateStoppingForced:
		s.logger.Infof("Shutdown waiting for stop in progress")
	default:
		s.transitionLocked(StateStopped)
		s.mutex.Unlock()
		return nil
	}

	done := s.stopDone
	s.mutex.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.NewCancelledError("shutdown interrupted", ctx.Err())
	}
}

// ReapOrphan force-kills a child left behind by a previous agent, as
// recorded in the PID file. The pid must still run the uplink executable.
func (s *Supervisor) ReapOrphan() {
	if s.deps.PIDFile == nil {
		return
	}

	pid, err := s.deps.PIDFile.ReadPIDFile()
	if err != nil {
		if !errors.IsNotFoundError(err) {
			s.logger.Warnf("Unreadable PID file: %v", err)
			s.removePIDFile()
		}
		return
	}
	defer s.removePIDFile()

	identity, ok := s.deps.Resolver.ResolveIdentity(pid)
	if !ok {
		s.logger.Debugf("Stale PID file, process gone, pid: %d", pid)
		return
	}

	if locator, ok := s.deps.Resolver.(processstate.ExecutableLocator); ok {
		exe, found := locator.Executable(pid)
		if !found || exe != s.options.ExecutablePath {
			s.logger.Infof("PID %d no longer runs the uplink, leaving it alone", pid)
			return
		}
	}

	s.logger.Warnf("Reaping orphaned uplink, pid: %d", pid)
	if err := s.deps.Killer.ForceKill(identity); err != nil {
		s.logger.Errorf("Failed to reap orphaned uplink, pid: %d, error: %v", pid, err)
	}
}

func (s *Supervisor) materializeLocked() {
	if err := s.deps.Materializer.Materialize(s.pending); err != nil {
		s.lastError = err
		s.needsRestart = true
		s.logger.Errorf("Materialize failed, will retry next tick: %v", err)
		s.transitionLocked(StateConfigured)
		return
	}

	s.applied = s.pending
	s.needsRestart = false
	s.logger.Infof("Configuration materialized, fingerprint: %s", s.applied.Fingerprint())
	s.transitionLocked(StateStarting)
}

func (s *Supervisor) spawnLocked() {
	args := []string{"-a", s.options.CredentialsPath, "-c", s.options.ConfigPath}
	args = append(args, s.applied.ExtraArgs()...)

	child, err := s.deps.Spawner.Spawn(process.ExecutionConfig{
		ExecutablePath:   s.options.ExecutablePath,
		Args:             args,
		Environment:      s.options.Environment,
		WorkingDirectory: s.options.WorkingDirectory,
		LinkerPath:       s.options.LinkerPath,
	})
	if err != nil {
		s.lastError = err
		s.logger.Errorf("Uplink spawn failed, will retry next tick: %v", err)
		return
	}

	s.child = child
	s.identity, s.identityKnown = s.deps.Resolver.ResolveIdentity(child.PID())
	s.starts++
	s.startedAt = time.Now()
	s.lastError = nil

	if s.deps.Stdin != nil {
		s.deps.Stdin.Attach(child.Stdin())
	}

	s.collector = logcollection.NewCollector(s.deps.Output, s.logger)
	s.collector.CollectFromProcess(child.Stdout(), child.Stderr())

	if s.deps.PIDFile != nil {
		if err := s.deps.PIDFile.WritePIDFile(child.PID()); err != nil {
			s.logger.Warnf("Failed to write PID file: %v", err)
		}
	}

	s.logger.Infof("Uplink started, pid: %d, args: %v", child.PID(), args)
	s.transitionLocked(StateRunning)
}

func (s *Supervisor) checkLivenessLocked() {
	if !s.child.Exited() {
		return
	}

	s.logger.Warnf("Uplink exited unexpectedly, pid: %d, exit code: %d", s.child.PID(), s.child.ExitCode())
	s.releaseChildLocked()
	s.transitionLocked(StateStarting)
}

func (s *Supervisor) beginStopLocked(ctx context.Context, reason stopReason) {
	child := s.child
	identity, identityKnown := s.identity, s.identityKnown

	if s.deps.Stdin != nil {
		s.deps.Stdin.Detach()
	}

	s.stopAttempt = 0
	s.transitionLocked(StateStoppingGraceful)

	done := make(chan struct{})
	s.stopDone = done

	go func() {
		defer close(done)
		s.runStop(ctx, child, identity, identityKnown, reason)
	}()
}

func (s *Supervisor) runStop(ctx context.Context, child Child, identity processstate.Identity, identityKnown bool, reason stopReason) {
	pid := child.PID()
	s.logger.Infof("Stopping uplink, pid: %d, reason: %s", pid, reason)

	if err := child.RequestTermination(); err != nil {
		s.logger.Warnf("Failed to request termination, pid: %d, error: %v", pid, err)
	}

	if !s.awaitExit(ctx, child) {
		s.setState(StateStoppingForced)
		s.forceKill(child, identity, identityKnown)
	}

	s.finishStop(reason)
}

// awaitExit polls liveness up to PollAttempts times and reports whether the
// child exited.
func (s *Supervisor) awaitExit(ctx context.Context, child Child) bool {
	pid := child.PID()

	for attempt := 1; attempt <= s.options.PollAttempts; attempt++ {
		s.setStopAttempt(attempt)

		timer := time.NewTimer(s.options.PollInterval)
		select {
		case <-child.Done():
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.logger.Warnf("Context cancelled during graceful stop of PID %d, forcing termination", pid)
			return child.Exited()
		}

		if child.Exited() {
			s.logger.Infof("Process PID %d terminated gracefully, attempt: %d", pid, attempt)
			return true
		}
		s.logger.Debugf("Process PID %d still alive, attempt: %d/%d", pid, attempt, s.options.PollAttempts)
	}

	s.logger.Warnf("Process PID %d did not terminate after %d attempts", pid, s.options.PollAttempts)
	return false
}

func (s *Supervisor) forceKill(child Child, identity processstate.Identity, identityKnown bool) {
	pid := child.PID()

	if !identityKnown {
		identity, identityKnown = s.deps.Resolver.ResolveIdentity(pid)
	}
	if !identityKnown {
		err := errors.NewEscalationError("cannot resolve process identity", nil).WithContext("pid", pid)
		s.recordError(err)
		s.logger.Errorf("Uplink possibly orphaned, pid: %d, error: %v", pid, err)
		return
	}

	s.logger.Warnf("Force killing process PID %d", pid)
	if err := s.deps.Killer.ForceKill(identity); err != nil {
		escalation := errors.NewEscalationError("force kill failed", err).WithContext("pid", pid)
		s.recordError(escalation)
		s.logger.Errorf("Uplink possibly orphaned, pid: %d, error: %v", pid, escalation)
		return
	}

	select {
	case <-child.Done():
		s.logger.Infof("Process PID %d force terminated", pid)
	case <-time.After(s.options.KillWait):
		s.logger.Warnf("Process PID %d still not reaped %v after force kill", pid, s.options.KillWait)
	}
}

func (s *Supervisor) finishStop(reason stopReason) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.releaseChildLocked()
	s.stopDone = nil
	s.stopAttempt = 0

	if s.shuttingDown || reason == stopShutdown {
		s.transitionLocked(StateStopped)
		return
	}
	if s.pending.Equal(s.applied) {
		s.transitionLocked(StateStarting)
		return
	}
	s.needsRestart = true
	s.transitionLocked(StateConfigured)
}

func (s *Supervisor) releaseChildLocked() {
	if s.child == nil {
		return
	}

	if s.deps.Stdin != nil {
		s.deps.Stdin.Detach()
	}
	s.lastExitCode = s.child.ExitCode()
	if err := s.child.Release(); err != nil {
		s.logger.Debugf("Release of PID %d reported: %v", s.child.PID(), err)
	}
	s.removePIDFile()

	s.child = nil
	s.identity = processstate.Identity{}
	s.identityKnown = false
}

func (s *Supervisor) removePIDFile() {
	if s.deps.PIDFile == nil {
		return
	}
	if err := s.deps.PIDFile.RemovePIDFile(); err != nil {
		s.logger.Warnf("Failed to remove PID file: %v", err)
	}
}

func (s *Supervisor) transitionLocked(next State) {
	if s.state == next {
		return
	}
	s.logger.Debugf("State transition: %s -> %s", s.state, next)
	s.state = next
}

func (s *Supervisor) setState(next State) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.transitionLocked(next)
}

func (s *Supervisor) setStopAttempt(attempt int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopAttempt = attempt
	s.logger.Debugf("State: %s(%d)", StateStoppingGraceful, attempt)
}

func (s *Supervisor) recordError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastError = err
}
