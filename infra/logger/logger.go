// Package logger provides the zerolog backed implementation of the logging
// port.
package logger

import corelogger "github.com/kilianp07/gridbalance/core/logger"

// Logger is the core logging port.
type Logger = corelogger.Logger

// NopLogger discards everything. Tests and library callers that pass no
// logger get this one.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns the process logger for a component: JSON on stdout, or the
// console format when APP_ENV=dev.
func New(component string) Logger {
	return NewZerologLogger(component)
}
