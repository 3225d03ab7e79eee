package cli

import "go.uber.org/zap"

// agentLogger wraps zap for verbose debug with configuration/cycle context.
type agentLogger struct {
	sugared       *zap.SugaredLogger
	configuration string
	sessionFn     func() int
}

func newAgentLogger(globals *Globals, configuration string, sessionFn func() int) *agentLogger {
	if globals == nil || !globals.Verbose {
		return &agentLogger{}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	logger, err := cfg.Build()
	if err != nil {
		return &agentLogger{}
	}
	return &agentLogger{
		sugared:       logger.Sugar(),
		configuration: configuration,
		sessionFn:     sessionFn,
	}
}

func (l *agentLogger) Debug(format string, args ...interface{}) {
	if l.sugared == nil {
		return
	}
	session := 0
	if l.sessionFn != nil {
		session = l.sessionFn()
	}
	l.sugared.With("configuration", l.configuration, "session", session).Debugf(format, args...)
}

func (l *agentLogger) Sync() {
	if l.sugared != nil {
		_ = l.sugared.Sync()
	}
}
