// Package corelog provides the structured logging contract used across the
// research core. Implementations are injected by the caller; no package
// in this module reaches for a process-global logger.
package corelog

import "context"

// Logger is the minimal structured logging interface consumed by every
// component. Fields are passed as a map so implementations can forward
// them to any structured sink (stdout, a file, a zap/logrus backend, ...).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	// Context-aware variants for distributed tracing / run correlation.
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with per-component scoping, so a
// single base logger can be specialised per package ("research/fetch",
// "research/orchestrator", ...) while sharing sinks/level configuration.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. Useful as a safe default when the caller
// does not care about logs.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}

func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}

func (n NoOpLogger) WithComponent(string) Logger { return n }

var _ ComponentAwareLogger = NoOpLogger{}

// ScopeComponent returns logger.WithComponent(component) when logger
// implements ComponentAwareLogger, or logger unchanged otherwise. Callers
// across the module use this so an injected plain Logger never panics on
// a missing WithComponent method.
func ScopeComponent(logger Logger, component string) Logger {
	if logger == nil {
		return NoOpLogger{}
	}
	if aware, ok := logger.(ComponentAwareLogger); ok {
		return aware.WithComponent(component)
	}
	return logger
}
