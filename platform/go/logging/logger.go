// Package logging builds the zap loggers of the directory processes. Entries
// are JSON shaped for Google Cloud Logging.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is reported in serviceContext when Config.Service is empty.
const ServiceName = "palmyra-directory"

// Config controls a process logger.
type Config struct {
	// Service and Version fill serviceContext so errors group per deployment.
	Service string
	Version string
	// Component names the process, e.g. "api-server" or "cli".
	Component string
	// Level is debug, info, warn (or warning) or error. Empty means info.
	Level string
	// Output defaults to stdout.
	Output zapcore.WriteSyncer
}

// NewLogger builds the process logger.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    severityEncoder,
	}

	out := cfg.Output
	if out == nil {
		out = zapcore.Lock(os.Stdout)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), out, zap.NewAtomicLevelAt(level))

	service := cfg.Service
	if service == "" {
		service = ServiceName
	}
	serviceContext := []zap.Field{zap.String("service", service)}
	if cfg.Version != "" {
		serviceContext = append(serviceContext, zap.String("version", cfg.Version))
	}

	logger := zap.New(core, zap.AddCaller()).With(zap.Dict("serviceContext", serviceContext...))
	if cfg.Component != "" {
		logger = logger.With(zap.String("component", cfg.Component))
	}
	return logger, nil
}

// ParseLevel accepts zap level names and the Cloud Logging "warning".
func ParseLevel(raw string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// severityEncoder writes Cloud Logging severities.
func severityEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString("DEBUG")
	case zapcore.InfoLevel:
		enc.AppendString("INFO")
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.ErrorLevel:
		enc.AppendString("ERROR")
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		enc.AppendString("ALERT")
	case zapcore.FatalLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString(strings.ToUpper(l.String()))
	}
}
