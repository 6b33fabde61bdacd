// Package logging builds the process loggers. Components receive a
// *log.Logger with their own prefix; all of them share one output, which
// is stderr optionally teed into a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/clipforge/timeline/internal/config"
)

// Factory hands out component loggers that share one output.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
}

// New creates a Factory from the log configuration. When cfg.File is set,
// output goes to both stderr and the rotated file.
func New(cfg config.LogConfig) (*Factory, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit console writer.
func NewWithWriter(cfg config.LogConfig, console io.Writer) (*Factory, error) {
	f := &Factory{out: console}
	if cfg.File == "" {
		return f, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f.file = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	f.out = io.MultiWriter(console, f.file)
	return f, nil
}

// Logger returns a logger whose lines start with "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Rotate starts a new log file. It is a no-op without a log file.
func (f *Factory) Rotate() error {
	if f.file == nil {
		return nil
	}
	return f.file.Rotate()
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
