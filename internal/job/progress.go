package job

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress tracks and prints job progress: a bar, rate, and ETA. Adapted
// from the teacher's worker.Progress, generalized to also surface the
// active-worker count and a pending-cancellation flag (spec §3's Job
// state model).
type Progress struct {
	startTime       time.Time
	output          io.Writer
	total           int
	completed       int
	failed          int
	active          int
	cancelRequested bool
	mu              sync.RWMutex
	enabled         bool
}

// NewProgress creates a progress tracker for total tasks.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		total:     total,
		startTime: time.Now(),
		output:    os.Stderr,
		enabled:   enabled,
	}
}

// Update records the completion of a task; suitable as a ProgressFunc.
func (p *Progress) Update(completed, total, failed, active int) {
	p.mu.Lock()
	p.completed = completed
	p.total = total
	p.failed = failed
	p.active = active
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Callback returns a ProgressFunc bound to Update.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// SetCancelRequested marks the job as having a cancellation pending, so
// the next Print reflects it. Intended for a CLI Ctrl-C handler racing
// with in-flight progress updates.
func (p *Progress) SetCancelRequested() {
	p.mu.Lock()
	p.cancelRequested = true
	p.mu.Unlock()
}

// Print writes the current progress line to output.
func (p *Progress) Print() {
	p.mu.RLock()
	completed := p.completed
	total := p.total
	failed := p.failed
	active := p.active
	cancelRequested := p.cancelRequested
	startTime := p.startTime
	p.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	var eta time.Duration
	if completed > 0 {
		rate = float64(completed) / elapsed.Seconds()
		remaining := total - completed
		if rate > 0 {
			eta = time.Duration(float64(remaining)/rate) * time.Second
		}
	}

	barWidth := 30
	progress := float64(completed) / float64(total)
	filledWidth := int(progress * float64(barWidth))
	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", barWidth-filledWidth)

	line := fmt.Sprintf("\r[%s] %d/%d tiles", bar, completed, total)
	if active > 0 {
		line += fmt.Sprintf(" (%d active)", active)
	}
	if failed > 0 {
		line += fmt.Sprintf(" (%d failed)", failed)
	}
	line += fmt.Sprintf(" - %.1f tiles/sec", rate)
	if eta > 0 && completed < total {
		line += fmt.Sprintf(" - ETA: %s", formatDuration(eta))
	}
	if completed == total {
		line += fmt.Sprintf(" - Done in %s", formatDuration(elapsed))
	}
	if cancelRequested {
		line += " - cancelling"
	}
	line += "          "

	fmt.Fprint(p.output, line)
}

// Done prints a final progress line and newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		fmt.Fprintln(p.output)
	}
}

// Summary returns a one-line description of the completed run.
func (p *Progress) Summary() string {
	p.mu.RLock()
	completed := p.completed
	total := p.total
	failed := p.failed
	startTime := p.startTime
	p.mu.RUnlock()

	elapsed := time.Since(startTime)
	successful := completed - failed

	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(completed) / elapsed.Seconds()
	}

	return fmt.Sprintf("Processed %d/%d tiles (%d failed) in %s (%.1f tiles/sec)",
		successful, total, failed, formatDuration(elapsed), rate)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, mins)
}
