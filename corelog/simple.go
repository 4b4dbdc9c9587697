package corelog

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel orders the severities a SimpleLogger will emit.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// SimpleLogger is a dependency-free structured logger writing through the
// standard library's log package. It is the default used when the caller
// does not inject a production-grade implementation.
type SimpleLogger struct {
	level     LogLevel
	component string
	fields    map[string]interface{}
}

var _ ComponentAwareLogger = (*SimpleLogger)(nil)

// NewSimpleLogger creates a SimpleLogger at the level named by the
// RESEARCH_LOG_LEVEL environment variable (DEBUG, WARN/WARNING, ERROR),
// or InfoLevel when it is unset or unrecognised.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{level: levelFromEnv(), fields: map[string]interface{}{}}
}

func levelFromEnv() LogLevel {
	switch strings.ToUpper(os.Getenv("RESEARCH_LOG_LEVEL")) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l *SimpleLogger) SetLevel(level LogLevel) { l.level = level }

func (l *SimpleLogger) WithComponent(component string) Logger {
	return &SimpleLogger{level: l.level, component: component, fields: cloneFields(l.fields)}
}

func cloneFields(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (l *SimpleLogger) Debug(msg string, fields map[string]interface{}) {
	l.emit(DebugLevel, "DEBUG", msg, fields)
}
func (l *SimpleLogger) Info(msg string, fields map[string]interface{}) {
	l.emit(InfoLevel, "INFO", msg, fields)
}
func (l *SimpleLogger) Warn(msg string, fields map[string]interface{}) {
	l.emit(WarnLevel, "WARN", msg, fields)
}
func (l *SimpleLogger) Error(msg string, fields map[string]interface{}) {
	l.emit(ErrorLevel, "ERROR", msg, fields)
}

func (l *SimpleLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, withTraceFields(ctx, fields))
}
func (l *SimpleLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, withTraceFields(ctx, fields))
}
func (l *SimpleLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, withTraceFields(ctx, fields))
}
func (l *SimpleLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withTraceFields(ctx, fields))
}

type runIDKey struct{}

// WithRunID returns a context carrying the research run id, so loggers can
// attach it automatically via the *WithContext methods.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func withTraceFields(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	out := cloneFields(fields)
	if runID, ok := ctx.Value(runIDKey{}).(string); ok && runID != "" {
		out["run_id"] = runID
	}
	return out
}

func (l *SimpleLogger) emit(level LogLevel, tag, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", tag))
	if l.component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", l.component))
	}
	parts = append(parts, msg)
	for k, v := range l.fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	log.Println(strings.Join(parts, " "))
}
