package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestSublogger(t *testing.T) {
	logger := NewTestLogger(t)
	sub := logger.Sublogger("child")
	test.That(t, sub, test.ShouldNotBeNil)
	sub.Infof("hello %s", "world")
}

func TestObservedLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Warnf("something %s happened", "odd")
	logger.Debug("quiet")

	test.That(t, logs.FilterMessageSnippet("something odd happened").Len(), test.ShouldEqual, 1)
	test.That(t, logs.Len(), test.ShouldEqual, 2)
}
