// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar implements a progress bar that is redrawn on every
// Increment. It is safe for concurrent use.
type ProgressBar struct {
	mu sync.Mutex
	w  io.Writer

	// width determines the number of characters wide that the progress
	// bar should be
	width int

	// maxProgress determines the number of times Increment() should
	// be called before the progress bar reaches 100%.
	maxProgress int
	current     int

	start  time.Time
	closed bool
}

// New returns a new progress bar that is width characters wide and
// reaches 100% capacity after max Increment() calls.
func New(w io.Writer, width, max int) *ProgressBar {
	if max < 1 {
		max = 1
	}
	return &ProgressBar{w: w, width: width, maxProgress: max,
		start: time.Now()}
}

// Increment increments the internal progress counter and redraws the
// bar followed by info
func (p *ProgressBar) Increment(info string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.current >= p.maxProgress {
		return
	}
	p.current++
	fmt.Fprintf(p.w, "\r\033[K%v", p.render(info))
}

// Close finishes the progress bar so that it will no longer display
func (p *ProgressBar) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render(info string) string {
	filled := p.current * p.width / p.maxProgress

	var bar strings.Builder
	bar.WriteString("|")
	bar.WriteString(strings.Repeat("█", filled))
	bar.WriteString(strings.Repeat(" ", p.width-filled))
	bar.WriteString(fmt.Sprintf("| [%.2f%% | elapsed: %v]",
		float64(p.current)/float64(p.maxProgress)*100,
		time.Since(p.start).Round(time.Second)))
	if info != "" {
		bar.WriteString(" " + info)
	}
	return bar.String()
}
