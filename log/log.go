/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package log

import (
	"fmt"
	"os"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	// DebugLevel logs everything.
	DebugLevel = "debug"

	// InfoLevel logs info, warning and error messages.
	InfoLevel = "info"

	// WarningLevel logs warning and error messages.
	WarningLevel = "warn"

	// ErrorLevel logs error messages only.
	ErrorLevel = "error"

	// OffLevel disables logging.
	OffLevel = "off"
)

var (
	mu   sync.RWMutex
	inst kitlog.Logger = kitlog.NewNopLogger()
)

// Init initializes the package logger with a given level and output format.
// Format may be "logfmt" or "json".
func Init(lv, format string) {
	var logger kitlog.Logger
	var allow level.Option

	w := kitlog.NewSyncWriter(os.Stderr)
	if format == "json" {
		logger = kitlog.NewJSONLogger(w)
	} else {
		logger = kitlog.NewLogfmtLogger(w)
	}
	switch lv {
	case DebugLevel:
		allow = level.AllowDebug()
	case InfoLevel:
		allow = level.AllowInfo()
	case WarningLevel:
		allow = level.AllowWarn()
	case ErrorLevel:
		allow = level.AllowError()
	case OffLevel:
		allow = level.AllowNone()
	default:
		allow = level.AllowAll()
	}
	set(kitlog.With(level.NewFilter(logger, allow), "ts", kitlog.DefaultTimestampUTC))
}

// Set replaces the package logger. Intended for tests.
func Set(logger kitlog.Logger) { set(logger) }

// Disable discards all logging output.
func Disable() { set(kitlog.NewNopLogger()) }

// Debugf writes a 'debug' message to the package logger.
func Debugf(format string, args ...interface{}) {
	_ = level.Debug(get()).Log("msg", fmt.Sprintf(format, args...))
}

// Infof writes an 'info' message to the package logger.
func Infof(format string, args ...interface{}) {
	_ = level.Info(get()).Log("msg", fmt.Sprintf(format, args...))
}

// Warnf writes a 'warn' message to the package logger.
func Warnf(format string, args ...interface{}) {
	_ = level.Warn(get()).Log("msg", fmt.Sprintf(format, args...))
}

// Errorf writes an 'error' message to the package logger.
func Errorf(format string, args ...interface{}) {
	_ = level.Error(get()).Log("msg", fmt.Sprintf(format, args...))
}

// Error writes an error value to the package logger.
func Error(err error) {
	_ = level.Error(get()).Log("err", err)
}

func set(logger kitlog.Logger) {
	mu.Lock()
	inst = logger
	mu.Unlock()
}

func get() kitlog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return inst
}
