package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an animated progress indicator for operations with no
// measurable progress, like waiting for a server handshake.
type Spinner struct {
	writer   io.Writer
	message  string
	interval time.Duration

	mu      sync.Mutex
	active  bool
	stopped chan struct{}
}

// NewSpinner creates a spinner that renders to w with the given message.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		writer:   w,
		message:  message,
		interval: 100 * time.Millisecond,
	}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	s.stopped = make(chan struct{})

	go func(stopped chan struct{}) {
		frame := 0
		c := color.New(color.FgCyan)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopped:
				return
			case <-ticker.C:
				c.Fprintf(s.writer, "\r%s %s", spinnerFrames[frame], s.message)
				frame = (frame + 1) % len(spinnerFrames)
			}
		}
	}(s.stopped)
}

// Stop halts the animation and clears the spinner line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.stopped)
	fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+2))
}
