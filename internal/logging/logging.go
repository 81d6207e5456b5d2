// Package logging builds the *log.Logger shared by all components.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lowaak/ttwatch/internal/config"
)

// Logger is a logger writing to a rotating file.
type Logger struct {
	*log.Logger
	file *lumberjack.Logger
}

// New opens the log file described by c, creating its directory. When
// c.Stderr is set, lines are also written to stderr. Every line is copied
// to the extra writers.
func New(c config.Log, extra ...io.Writer) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return nil, err
	}
	file := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
	}
	writers := append([]io.Writer{file}, extra...)
	if c.Stderr {
		writers = append(writers, os.Stderr)
	}
	var w io.Writer = file
	if len(writers) > 1 {
		w = io.MultiWriter(writers...)
	}
	return &Logger{
		Logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		file:   file,
	}, nil
}

// Close closes the log file.
func (l *Logger) Close() error { return l.file.Close() }
