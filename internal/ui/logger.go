// Package ui draws a progress line on interactive terminals while keeping
// structured log lines intact.
package ui

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// InteractiveLogger wraps zap logger with progress support
type InteractiveLogger struct {
	logger       *zap.SugaredLogger
	mu           sync.Mutex
	lastLine     string
	output       io.Writer
	stats        *Stats
	showProgress bool
}

// NewInteractiveLogger tracks total input files. The progress line is only
// drawn when showProgress is set and stderr is a terminal.
func NewInteractiveLogger(logger *zap.SugaredLogger, total int, showProgress bool) *InteractiveLogger {
	return &InteractiveLogger{
		logger:       logger,
		output:       os.Stderr,
		stats:        NewStats(total),
		showProgress: showProgress && isTerminal(os.Stderr),
	}
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// Stats returns the underlying counters.
func (il *InteractiveLogger) Stats() *Stats {
	return il.stats
}

// FileDone records a finished input and refreshes the progress line. Without
// a terminal the counts are logged every few seconds instead.
func (il *InteractiveLogger) FileDone(path string, records, entries, rejected int, err error) {
	il.stats.FileDone(records, entries, rejected, err == nil)
	if err != nil {
		il.Warn("input failed", "path", path, "err", err)
	}

	if il.showProgress {
		il.setProgress(il.stats.Bar())
		return
	}
	if il.stats.ShouldLog() {
		il.logger.Info(il.stats.LogAndReset())
	}
}

func (il *InteractiveLogger) setProgress(message string) {
	il.mu.Lock()
	defer il.mu.Unlock()

	il.clearLine()
	io.WriteString(il.output, message+"\r")
	il.lastLine = message
}

// Info logs an info message, clearing progress if needed
func (il *InteractiveLogger) Info(message string, args ...interface{}) {
	il.clearProgressAndLog(func() { il.logger.Infow(message, args...) })
}

// Warn logs a warning message
func (il *InteractiveLogger) Warn(message string, args ...interface{}) {
	il.clearProgressAndLog(func() { il.logger.Warnw(message, args...) })
}

func (il *InteractiveLogger) clearProgressAndLog(logFn func()) {
	il.mu.Lock()
	defer il.mu.Unlock()

	if il.showProgress && il.lastLine != "" {
		il.clearLine()
	}
	logFn()
	il.lastLine = ""
}

func (il *InteractiveLogger) clearLine() {
	if il.lastLine != "" {
		spaces := strings.Repeat(" ", len([]rune(il.lastLine)))
		io.WriteString(il.output, "\r"+spaces+"\r")
	}
}

// Finish completes progress tracking and logs the summary.
func (il *InteractiveLogger) Finish() {
	il.stats.Finish()
	if il.showProgress {
		il.setProgress(il.stats.Bar())
		il.mu.Lock()
		io.WriteString(il.output, "\n")
		il.lastLine = ""
		il.mu.Unlock()
	}
	il.logger.Info(il.stats.Summary())
}
