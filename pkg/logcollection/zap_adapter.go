package logcollection

import (
	"os"

	"github.com/core-tools/hsu-uplink/pkg/logging"
	"github.com/core-tools/hsu-uplink/pkg/logrotate"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter provides a Zap backend behind the printf-style logging.Logger
type ZapAdapter struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// NewZapAdapter creates a new Zap backend adapter
func NewZapAdapter(config ZapConfig, diagnostics logging.Logger) (*ZapAdapter, error) {
	zapLogger, err := createZapLogger(config, diagnostics)
	if err != nil {
		return nil, err
	}
	return newZapAdapter(zapLogger), nil
}

func newZapAdapter(zapLogger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{
		logger: zapLogger,
		sugar:  zapLogger.Sugar(),
	}
}

func (z *ZapAdapter) Debugf(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *ZapAdapter) Infof(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *ZapAdapter) Warnf(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z *ZapAdapter) Errorf(format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

// With returns an adapter whose entries carry the given key/value pairs
func (z *ZapAdapter) With(keysAndValues ...interface{}) *ZapAdapter {
	sugar := z.sugar.With(keysAndValues...)
	return &ZapAdapter{
		logger: sugar.Desugar(),
		sugar:  sugar,
	}
}

// Logger exposes the adapter as a prefixed logging.Logger
func (z *ZapAdapter) Logger(prefix string) logging.Logger {
	return logging.NewLogger(prefix, logging.LogFuncs{
		Debugf: z.Debugf,
		Infof:  z.Infof,
		Warnf:  z.Warnf,
		Errorf: z.Errorf,
	})
}

// Sync flushes any buffered log entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

// ZapConfig defines Zap-specific configuration
type ZapConfig struct {
	Level  string `yaml:"level" json:"level"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" json:"format"` // "json", "console"
	Output string `yaml:"output" json:"output"` // "stdout", "stderr", file path
	Caller bool   `yaml:"caller" json:"caller"`

	// Rotation for file output
	MaxBytes     int64 `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"`
	MaxFileCount int   `yaml:"max_file_count,omitempty" json:"max_file_count,omitempty"`
}

// createZapLogger creates a zap logger from configuration. File output goes
// through a rotating store; its own write errors are reported to diagnostics.
func createZapLogger(config ZapConfig, diagnostics logging.Logger) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch config.Output {
	case "stdout", "":
		writeSyncer = zapcore.Lock(os.Stdout)
	case "stderr":
		writeSyncer = zapcore.Lock(os.Stderr)
	default:
		if diagnostics == nil {
			diagnostics = logging.Nop()
		}
		writeSyncer = logrotate.NewStore(logrotate.StoreConfig{
			Path:         config.Output,
			MaxBytes:     config.MaxBytes,
			MaxFileCount: config.MaxFileCount,
		}, diagnostics)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	return zap.New(core, opts...), nil
}

// DefaultZapConfig returns a sensible default Zap configuration
func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	}
}
