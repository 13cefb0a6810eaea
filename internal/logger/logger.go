// Copyright 2025 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides severity-levelled structured logging for the
// daemon, with optional file output and rotation.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/wormholefs/wormhole/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names accepted in config.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// slog levels for the two severities slog does not name.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

type loggerFactory struct {
	// writer is the log sink; a lumberjack logger when a file path is set,
	// stderr otherwise.
	writer io.Writer
	format string
	level  string
}

var (
	defaultLoggerFactory = &loggerFactory{writer: os.Stderr, format: "json", level: INFO}
	defaultLogger        = defaultLoggerFactory.newLogger(INFO)
)

// Init configures the package-level logger from config. Must be called
// before any other goroutine logs.
func Init(c cfg.LoggingConfig) error {
	f := &loggerFactory{writer: os.Stderr, format: c.Format, level: c.Severity}
	if c.FilePath != "" {
		f.writer = &lumberjack.Logger{
			Filename:   string(c.FilePath),
			MaxSize:    c.LogRotate.MaxFileSizeMb,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
	}
	if !validSeverity(c.Severity) {
		return fmt.Errorf("invalid log severity %q", c.Severity)
	}
	defaultLoggerFactory = f
	defaultLogger = f.newLogger(c.Severity)
	return nil
}

func validSeverity(s string) bool {
	switch s {
	case TRACE, DEBUG, INFO, WARNING, ERROR, OFF:
		return true
	}
	return false
}

func setLoggingLevel(severity string, programLevel *slog.LevelVar) {
	switch severity {
	case TRACE:
		programLevel.Set(LevelTrace)
	case DEBUG:
		programLevel.Set(LevelDebug)
	case INFO:
		programLevel.Set(LevelInfo)
	case WARNING:
		programLevel.Set(LevelWarn)
	case ERROR:
		programLevel.Set(LevelError)
	default:
		programLevel.Set(LevelOff)
	}
}

func (f *loggerFactory) newLogger(severity string) *slog.Logger {
	var programLevel = new(slog.LevelVar)
	l := slog.New(f.handler(f.writer, programLevel))
	setLoggingLevel(severity, programLevel)
	return l
}

func (f *loggerFactory) handler(w io.Writer, level *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(a.Value.Any().(slog.Level)))
			}
			return a
		},
	}
	if f.format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func severityName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return TRACE
	case l <= LevelDebug:
		return DEBUG
	case l <= LevelInfo:
		return INFO
	case l <= LevelWarn:
		return WARNING
	default:
		return ERROR
	}
}

// Tracef prints the message at TRACE severity.
func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

// Debugf prints the message at DEBUG severity.
func Debugf(format string, v ...interface{}) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

// Infof prints the message at INFO severity.
func Infof(format string, v ...interface{}) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

// Warnf prints the message at WARNING severity.
func Warnf(format string, v ...interface{}) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

// Errorf prints the message at ERROR severity.
func Errorf(format string, v ...interface{}) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}

type errorWriter struct{}

func (errorWriter) Write(p []byte) (int, error) {
	Errorf("%s", string(p))
	return len(p), nil
}

// NewStdLogger adapts the package logger to a *log.Logger at ERROR
// severity, for libraries that want one.
func NewStdLogger() *log.Logger {
	return log.New(errorWriter{}, "", 0)
}
