package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a *logrus.Logger whose output is routed through
// t.Log instead of stderr, so a failing package's test output only shows up
// when that test actually fails. An optional prefix tags every line, useful
// when a test spins up more than one node and wants to tell their logs
// apart in -v output.
func NewTestLogger(t testing.TB, prefix ...string) *logrus.Logger {
	p := ""
	if len(prefix) > 0 {
		p = prefix[0]
	}
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t, prefix: p}
	logger.Level = logrus.DebugLevel
	return logger
}
