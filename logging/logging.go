// Package logging provides the logger handle passed through the assembly
// compiler. It is a thin wrapper around zap's sugared logger so that the
// pipeline can emit structured warnings without owning a global logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface the compiler logs through.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	// Sublogger returns a logger namespaced under this one.
	Sublogger(name string) Logger
}

type zapLogger struct {
	*zap.SugaredLogger
}

func (l *zapLogger) Sublogger(name string) Logger {
	return &zapLogger{l.Named(name)}
}

// NewLogger returns a production console logger with the given name.
func NewLogger(name string) Logger {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return &zapLogger{logger.Sugar().Named(name)}
}

// NewDebugLogger returns a development logger that also emits debug lines.
func NewDebugLogger(name string) Logger {
	config := zap.NewDevelopmentConfig()
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return &zapLogger{logger.Sugar().Named(name)}
}

// FromZap wraps an existing zap logger.
func FromZap(logger *zap.Logger) Logger {
	return &zapLogger{logger.Sugar()}
}
