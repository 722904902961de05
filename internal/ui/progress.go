package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ProgressBar represents a simple progress bar
type ProgressBar struct {
	mu          sync.RWMutex
	total       int64
	current     int64
	width       int
	startTime   time.Time
	lastUpdate  time.Time
	description string
	finished    bool
}

func NewProgressBar(total int64, description string) *ProgressBar {
	now := time.Now()
	return &ProgressBar{
		total:       total,
		width:       30,
		startTime:   now,
		lastUpdate:  now,
		description: description,
	}
}

// Add increments the progress
func (pb *ProgressBar) Add(n int64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.current += n
	if pb.current > pb.total {
		pb.current = pb.total
	}
	pb.lastUpdate = time.Now()
}

// Finish marks the progress as complete
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.current = pb.total
	pb.finished = true
	pb.lastUpdate = time.Now()
}

func (pb *ProgressBar) String() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	percent := 100.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total) * 100
	}
	filled := int(float64(pb.width) * percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.width-filled)

	result := fmt.Sprintf("%s [%s] %d/%d (%.1f%%)", pb.description, bar, pb.current, pb.total, percent)

	elapsed := pb.lastUpdate.Sub(pb.startTime)
	switch {
	case pb.finished:
		result += fmt.Sprintf(" [DONE in %v]", elapsed.Round(time.Millisecond))
	case pb.current > 0 && elapsed > 0:
		perItem := elapsed / time.Duration(pb.current)
		eta := perItem * time.Duration(pb.total-pb.current)
		result += fmt.Sprintf(" ETA: %v", eta.Round(time.Second))
	}
	return result
}

// Stats accumulates per-file ingest counts across workers.
type Stats struct {
	mu          sync.RWMutex
	total       int64
	done        int64
	failed      int64
	records     int64
	entries     int64
	rejected    int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	progressBar *ProgressBar
}

func NewStats(total int) *Stats {
	now := time.Now()
	s := &Stats{
		total:       int64(total),
		startTime:   now,
		lastLogTime: now,
		logInterval: 10 * time.Second,
	}
	if total > 0 {
		s.progressBar = NewProgressBar(int64(total), "Ingesting dumps")
	}
	return s
}

// FileDone records one finished input file. rejected counts entries whose
// attributes did not decode.
func (s *Stats) FileDone(records, entries, rejected int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done++
	if !ok {
		s.failed++
	}
	s.records += int64(records)
	s.entries += int64(entries)
	s.rejected += int64(rejected)
	if s.progressBar != nil {
		s.progressBar.Add(1)
	}
}

// Progress returns files finished, files failed and files expected.
func (s *Stats) Progress() (done, failed, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.done), int(s.failed), int(s.total)
}

// ShouldLog returns true if it's time to log progress
func (s *Stats) ShouldLog() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastLogTime) >= s.logInterval
}

// LogAndReset formats the running counts and resets the log timer.
func (s *Stats) LogAndReset() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastLogTime = time.Now()
	elapsed := s.lastLogTime.Sub(s.startTime).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.records) / elapsed
	}
	return fmt.Sprintf("Progress: %d/%d files (%d failed), %d records, %d entries (%d rejected), %.0f records/sec",
		s.done, s.total, s.failed, s.records, s.entries, s.rejected, rate)
}

// Bar returns the progress bar string, or "" without a known total.
func (s *Stats) Bar() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.progressBar == nil {
		return ""
	}
	return s.progressBar.String()
}

// Finish marks processing as complete
func (s *Stats) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progressBar != nil {
		s.progressBar.Finish()
	}
}

// Summary returns a final summary
func (s *Stats) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elapsed := time.Since(s.startTime)
	return fmt.Sprintf("Ingested %d files in %v, %d failed, %d records, %d entries, %d rejected",
		s.done, elapsed.Round(time.Millisecond), s.failed, s.records, s.entries, s.rejected)
}
