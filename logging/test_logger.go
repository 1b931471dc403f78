package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger returns a logger that routes through t.Log.
func NewTestLogger(t *testing.T) Logger {
	t.Helper()
	return &zapLogger{zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)).Sugar()}
}

// NewObservedTestLogger returns a test logger plus the observed log storage,
// for tests that assert on emitted warnings.
func NewObservedTestLogger(t *testing.T) (Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	tee := zap.New(zapcore.NewTee(zaptest.NewLogger(t).Core(), core))
	return &zapLogger{tee.Sugar()}, logs
}
