package materialize

import (
	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"
	"github.com/core-tools/hsu-uplink/pkg/processfile"
	"github.com/core-tools/hsu-uplink/pkg/uplinkconfig"

	"github.com/pelletier/go-toml/v2"
)

// Materializer writes the uplink executable, its config.toml and the
// credentials file into the layout.
type Materializer struct {
	assetPath string
	layout    *processfile.Layout
	logger    logging.Logger
}

// NewMaterializer copies the executable from assetPath on every Materialize
func NewMaterializer(assetPath string, layout *processfile.Layout, logger logging.Logger) *Materializer {
	return &Materializer{
		assetPath: assetPath,
		layout:    layout,
		logger:    logger,
	}
}

func (m *Materializer) Materialize(config *uplinkconfig.Configuration) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}
	if m.assetPath == "" {
		return errors.NewValidationError("uplink asset path is not set", nil)
	}

	if err := m.layout.EnsureDirectories(); err != nil {
		return err
	}

	if err := copyFileAtomic(m.assetPath, m.layout.ExecutablePath(), 0755); err != nil {
		return errors.NewIOError("failed to install uplink executable", err).WithContext("asset", m.assetPath)
	}

	document, err := RenderConfig(m.layout.PersistenceDirectory(), config.EnableRemoteShell())
	if err != nil {
		return err
	}
	if err := writeFileAtomic(m.layout.ConfigPath(), document, 0644); err != nil {
		return errors.NewIOError("failed to write uplink config", err)
	}

	if err := writeFileAtomic(m.layout.CredentialsPath(), config.Credentials(), 0600); err != nil {
		return errors.NewIOError("failed to write credentials", err)
	}

	m.logger.Infof("Materialized uplink configuration, fingerprint: %s, module: %s",
		config.Fingerprint(), m.layout.ModuleDirectory())
	return nil
}

type persistenceQuota struct {
	MaxFileSize  int `toml:"max_file_size"`
	MaxFileCount int `toml:"max_file_count"`
}

type streamSection struct {
	BatchSize   int              `toml:"batch_size"`
	FlushPeriod int              `toml:"flush_period"`
	Persistence persistenceQuota `toml:"persistence,inline"`
}

type loggingSection struct {
	Tags     []string `toml:"tags"`
	MinLevel int      `toml:"min_level"`
}

type systemStatsSection struct {
	Enabled      bool `toml:"enabled"`
	UpdatePeriod int  `toml:"update_period"`
	StreamSize   int  `toml:"stream_size"`
}

type deviceShadowSection struct {
	Interval int `toml:"interval"`
}

type configDocument struct {
	PersistencePath      string                   `toml:"persistence_path"`
	EnableRemoteShell    bool                     `toml:"enable_remote_shell"`
	EnableStdinCollector bool                     `toml:"enable_stdin_collector"`
	Logging              loggingSection           `toml:"logging"`
	Streams              map[string]streamSection `toml:"streams"`
	SystemStats          systemStatsSection       `toml:"system_stats"`
	DeviceShadow         deviceShadowSection      `toml:"device_shadow"`
}

// Stream names the telemetry pipeline publishes on
var TelemetryStreams = []string{"power_status", "network_status"}

// RenderConfig produces the uplink config.toml document
func RenderConfig(persistencePath string, enableRemoteShell bool) ([]byte, error) {
	streams := make(map[string]streamSection, len(TelemetryStreams))
	for _, name := range TelemetryStreams {
		streams[name] = streamSection{
			BatchSize:   8,
			FlushPeriod: 1,
			Persistence: persistenceQuota{MaxFileSize: 102400, MaxFileCount: 10},
		}
	}

	document := configDocument{
		PersistencePath:      persistencePath,
		EnableRemoteShell:    enableRemoteShell,
		EnableStdinCollector: true,
		Logging:              loggingSection{Tags: []string{"*"}, MinLevel: 4},
		Streams:              streams,
		SystemStats:          systemStatsSection{Enabled: true, UpdatePeriod: 2, StreamSize: 1},
		DeviceShadow:         deviceShadowSection{Interval: 10},
	}

	data, err := toml.Marshal(document)
	if err != nil {
		return nil, errors.NewInternalError("failed to render uplink config", err)
	}
	return data, nil
}
