// Package logger provides the structured logging used across the core
// runtime. It wraps log/slog behind the narrow call shape the rest of the
// codebase expects: a component tag, a message, and an optional field map.
//
// The runtime deliberately has no third-party logging dependency — every
// repo in the retrieval pack that shares this bot-orchestrator shape
// (discord/telegram/slack bridges driving an LLM loop) reaches for the
// standard library's slog rather than zerolog/zap/logrus for this exact
// role, and this module follows the same practice.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var base atomic.Pointer[slog.Logger]

func init() {
	SetOutput(os.Stderr)
}

// SetOutput rewires the package logger to write JSON lines to w.
func SetOutput(w *os.File) {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: currentLevel()})
	base.Store(slog.New(h))
}

var level atomic.Int32 // slog.Level cast to int32

func currentLevel() slog.Level {
	return slog.Level(level.Load())
}

// SetLevel adjusts the minimum level emitted (slog.LevelDebug..slog.LevelError).
func SetLevel(l slog.Level) {
	level.Store(int32(l))
	SetOutput(os.Stderr)
}

func fieldsToAttrs(fields map[string]interface{}) []any {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return attrs
}

func log(lvl slog.Level, component, msg string, fields map[string]interface{}) {
	l := base.Load()
	attrs := fieldsToAttrs(fields)
	attrs = append(attrs, "component", component)
	l.Log(context.Background(), lvl, msg, attrs...)
}

// DebugCF logs a component-tagged debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelDebug, component, msg, fields)
}

// InfoCF logs a component-tagged info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelInfo, component, msg, fields)
}

// WarnCF logs a component-tagged warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelWarn, component, msg, fields)
}

// ErrorCF logs a component-tagged error with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelError, component, msg, fields)
}

// Debug/Info/Warn/Error log without a component tag, for call sites that
// have no natural subsystem name (e.g. cmd/ entrypoints).
func Debug(msg string, fields map[string]interface{}) { log(slog.LevelDebug, "", msg, fields) }
func Info(msg string, fields map[string]interface{})  { log(slog.LevelInfo, "", msg, fields) }
func Warn(msg string, fields map[string]interface{})  { log(slog.LevelWarn, "", msg, fields) }
func Error(msg string, fields map[string]interface{}) { log(slog.LevelError, "", msg, fields) }
