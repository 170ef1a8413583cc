package agent

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

const (
	notifyReady    = daemon.SdNotifyReady
	notifyStopping = daemon.SdNotifyStopping
	notifyWatchdog = daemon.SdNotifyWatchdog
)

// Notifier reports lifecycle changes to the service manager
type Notifier interface {
	// Notify returns false without error when no service manager listens
	Notify(state string) (bool, error)

	// WatchdogInterval is zero when the watchdog is disabled
	WatchdogInterval() (time.Duration, error)
}

type systemdNotifier struct{}

func NewSystemdNotifier() Notifier {
	return systemdNotifier{}
}

func (systemdNotifier) Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func (systemdNotifier) WatchdogInterval() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}
