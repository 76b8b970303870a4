// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package log

import (
	"fmt"
	"log"
)

// LogLevel orders log verbosity, lower is quieter.
type LogLevel int

const (
	LevelError LogLevel = iota + 1
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[string]LogLevel{
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelTrace,
}

var (
	enabled = true
	level   = LevelInfo
)

// ParseLogLevel converts a lower-case level name into a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	l, ok := levelNames[s]
	if !ok {
		return 0, fmt.Errorf("invalid log level %q (expected error, warn, info, debug or trace)", s)
	}
	return l, nil
}

func (l LogLevel) String() string {
	for name, v := range levelNames {
		if v == l {
			return name
		}
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// SetLogLevel sets the most verbose level that the default logger prints.
func SetLogLevel(l LogLevel) {
	level = l
}

// GetLogLevel returns the level set by SetLogLevel.
func GetLogLevel() LogLevel {
	return level
}

// SetVerbose turns the default logger on or off entirely.
func SetVerbose(v bool) {
	enabled = v
}

type Logger struct {
	Tracef    func(format string, args ...interface{})
	Trace     func(format string)
	Infof     func(format string, args ...interface{})
	Debugf    func(format string, args ...interface{})
	Warnf     func(format string, args ...interface{}) error
	Errorf    func(format string, args ...interface{}) error
	TraceFunc func(func() string)
}

var logger = Logger{
	Tracef:    defaultTracef,
	Trace:     defaultTrace,
	Infof:     defaultInfof,
	Debugf:    defaultDebugf,
	Warnf:     defaultWarnf,
	Errorf:    defaultErrorf,
	TraceFunc: defaultTraceFunc,
}

func SetLogger(l Logger) {
	logger = l
}

func Tracef(format string, args ...interface{}) {
	if logger.Tracef != nil {
		logger.Tracef(format, args...)
	}
}

func Trace(format string, args ...interface{}) {
	if logger.Trace != nil {
		if len(args) > 0 {
			format = fmt.Sprintf(format, args...)
		}
		logger.Trace(format)
	}
}

func Infof(format string, args ...interface{}) {
	if logger.Infof != nil {
		logger.Infof(format, args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if logger.Debugf != nil {
		logger.Debugf(format, args...)
	}
}

func Warnf(format string, args ...interface{}) error {
	if logger.Warnf != nil {
		return logger.Warnf(format, args...)
	}
	return nil
}

func Errorf(format string, args ...interface{}) error {
	if logger.Errorf != nil {
		return logger.Errorf(format, args...)
	}
	return nil
}

func TraceFunc(logFunc func() string) {
	if logger.TraceFunc != nil {
		logger.TraceFunc(logFunc)
	}
}

func shouldLog(l LogLevel) bool {
	return enabled && l <= level
}

var (
	defaultTracef = func(format string, args ...interface{}) {
		if shouldLog(LevelTrace) {
			log.Printf("[TRACE] "+format, args...)
		}
	}

	defaultTrace = func(format string) {
		if shouldLog(LevelTrace) {
			log.Print("[TRACE] " + format)
		}
	}

	defaultInfof = func(format string, args ...interface{}) {
		if shouldLog(LevelInfo) {
			log.Printf("[INFO] "+format, args...)
		}
	}

	defaultDebugf = func(format string, args ...interface{}) {
		if shouldLog(LevelDebug) {
			log.Printf("[DEBUG] "+format, args...)
		}
	}

	defaultErrorf = func(format string, args ...interface{}) error {
		if shouldLog(LevelError) {
			log.Printf("[ERROR] "+format, args...)
		}
		return nil
	}

	defaultWarnf = func(format string, args ...interface{}) error {
		if shouldLog(LevelWarn) {
			log.Printf("[WARN] "+format, args...)
		}
		return nil
	}

	defaultTraceFunc = func(logFunc func() string) {
		if shouldLog(LevelTrace) {
			log.Print("[TRACEFUNC] " + logFunc())
		}
	}
)
