// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package obslog wraps logrus for the rest of the kernel: a structured
// logger with a process-wide default instance plus per-turn/per-instance
// contextualized children.
package obslog

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields
type Fields = logrus.Fields

// Entry aliases logrus.Entry
type Entry = logrus.Entry

// Logger is the interface used by the rest of the kernel for logging.
type Logger interface {
	Debug(...interface{})
	Debugf(string, ...interface{})
	Debugln(...interface{})

	Info(...interface{})
	Infof(string, ...interface{})
	Infoln(...interface{})

	Warn(...interface{})
	Warnf(string, ...interface{})
	Warnln(...interface{})

	Error(...interface{})
	Errorf(string, ...interface{})
	Errorln(...interface{})

	Fatal(...interface{})
	Fatalln(...interface{})
	Fatalf(string, ...interface{})

	WithField(key string, value interface{}) *Entry
	WithFields(Fields) *Entry

	SetLevel(string) error
	SetOutput(io.Writer)
	SetFormat(format, timestampFormat string)

	WithContext(context.Context) Logger
}

type logger struct {
	entry *logrus.Entry
}

// New creates a standalone logger, independent of the package default.
func New() Logger {
	l := logrus.New()
	return logger{entry: logrus.NewEntry(l)}
}

// WithContext adds a context to the Entry.
func (l logger) WithContext(ctx context.Context) Logger {
	return logger{l.entry.WithContext(ctx)}
}

func (l logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l logger) Debugf(format string, args ...interface{})  { l.entry.Debugf(format, args...) }
func (l logger) Debugln(args ...interface{})                { l.entry.Debugln(args...) }
func (l logger) Info(args ...interface{})                   { l.entry.Info(args...) }
func (l logger) Infof(format string, args ...interface{})   { l.entry.Infof(format, args...) }
func (l logger) Infoln(args ...interface{})                 { l.entry.Infoln(args...) }
func (l logger) Warn(args ...interface{})                   { l.entry.Warn(args...) }
func (l logger) Warnf(format string, args ...interface{})   { l.entry.Warnf(format, args...) }
func (l logger) Warnln(args ...interface{})                 { l.entry.Warnln(args...) }
func (l logger) Error(args ...interface{})                  { l.entry.Error(args...) }
func (l logger) Errorf(format string, args ...interface{})  { l.entry.Errorf(format, args...) }
func (l logger) Errorln(args ...interface{})                { l.entry.Errorln(args...) }
func (l logger) Fatal(args ...interface{})                  { l.entry.Fatal(args...) }
func (l logger) Fatalf(format string, args ...interface{})  { l.entry.Fatalf(format, args...) }
func (l logger) Fatalln(args ...interface{})                { l.entry.Fatalln(args...) }
func (l logger) Panic(args ...interface{})                  { l.entry.Panic(args...) }
func (l logger) Panicf(format string, args ...interface{})  { l.entry.Panicf(format, args...) }
func (l logger) Panicln(args ...interface{})                { l.entry.Panicln(args...) }

// WithField adds a field to the logger.
func (l logger) WithField(key string, value interface{}) *Entry {
	return l.entry.WithField(key, value)
}

// WithFields adds a map of fields to the logger.
func (l logger) WithFields(fields Fields) *Entry {
	return l.entry.WithFields(fields)
}

// SetLevel parses and sets the logger level.
func (l logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

// SetOutput sets the logger output.
func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// SetFormat sets the logger's formatter. format is one of "text",
// "json-pretty", or "json" (the default).
func (l logger) SetFormat(format, timestampFormat string) {
	l.entry.Logger.SetFormatter(NewFormatter(format, timestampFormat))
}

var origLogger = logrus.New()
var globalLogger = logger{entry: logrus.NewEntry(origLogger)}

// Global returns the process-wide default logger.
func Global() Logger {
	return globalLogger
}

// WithContext adds a context to the default logger's Entry.
func WithContext(ctx context.Context) Logger {
	return logger{globalLogger.entry.WithContext(ctx)}
}

func Debug(args ...interface{})                 { globalLogger.entry.Debug(args...) }
func Debugf(format string, args ...interface{}) { globalLogger.entry.Debugf(format, args...) }
func Info(args ...interface{})                  { globalLogger.entry.Info(args...) }
func Infof(format string, args ...interface{})  { globalLogger.entry.Infof(format, args...) }
func Warn(args ...interface{})                  { globalLogger.entry.Warn(args...) }
func Warnf(format string, args ...interface{})  { globalLogger.entry.Warnf(format, args...) }
func Error(args ...interface{})                 { globalLogger.entry.Error(args...) }
func Errorf(format string, args ...interface{}) { globalLogger.entry.Errorf(format, args...) }
func Fatal(args ...interface{})                 { globalLogger.entry.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { globalLogger.entry.Fatalf(format, args...) }

// WithField adds a field to the default logger.
func WithField(key string, value interface{}) *Entry {
	return globalLogger.entry.WithField(key, value)
}

// WithFields adds a map of fields to the default logger.
func WithFields(fields Fields) *Entry {
	return globalLogger.entry.WithFields(fields)
}

// SetLevel sets the default logger's level.
func SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	origLogger.SetLevel(lvl)
	return nil
}

// SetOutput sets the default logger's output.
func SetOutput(w io.Writer) {
	origLogger.SetOutput(w)
}

// SetFormat sets the default logger's formatter.
func SetFormat(format, timestampFormat string) {
	origLogger.SetFormatter(NewFormatter(format, timestampFormat))
}
