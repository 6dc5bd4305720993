// Package logging configures the process-wide standard logger.
package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var debug atomic.Bool

// Setup points the standard logger at stdout and, when File is set, a
// rotating log file. The returned closer releases the file.
func Setup(cfg Config) io.Closer {
	SetDebug(strings.EqualFold(cfg.Level, "debug"))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func SetDebug(enabled bool) {
	debug.Store(enabled)
}

func DebugEnabled() bool {
	return debug.Load()
}

func Debugf(format string, args ...interface{}) {
	if debug.Load() {
		log.Printf("[DEBUG] "+format, args...)
	}
}
