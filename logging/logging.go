// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logging holds the kernel's logger.
package logging

import (
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.Out = os.Stderr
	Logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	Logger.Level = logrus.InfoLevel
}

// Module returns a logger that tags every entry with the module name.
func Module(name string) *logrus.Entry {
	return Logger.WithField("module", name)
}

// SetLevel sets the logging level from its name ("debug", "info", ...).
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "log level %q", level)
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetFileRotationHooker copies every log entry into files under dir,
// rotated daily; count files are kept.
func SetFileRotationHooker(dir string, count uint) error {
	hook, err := newFileRotateHooker(dir, count)
	if err != nil {
		return err
	}
	Logger.Hooks.Add(hook)
	return nil
}

func newFileRotateHooker(dir string, count uint) (logrus.Hook, error) {
	if dir == "" {
		return nil, errors.New("empty log directory")
	}
	if !filepath.IsAbs(dir) {
		dir, _ = filepath.Abs(dir)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	writer, err := rotatelogs.New(
		filepath.Join(dir, "kernel-%Y%m%d-%H.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "kernel.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationCount(count),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rotate logs")
	}

	return lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
	}, nil), nil
}
