package ui

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncWriter makes a bytes.Buffer safe to share with the spinner goroutine.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestSpinnerWritesMessage(t *testing.T) {
	var out syncWriter
	s := NewSpinner(&out, "connecting")
	s.Start()
	time.Sleep(250 * time.Millisecond)
	s.Stop()

	assert.Contains(t, out.String(), "connecting")
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	var out syncWriter
	s := NewSpinner(&out, "connecting")
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSpinnerStartTwiceRunsOnce(t *testing.T) {
	var out syncWriter
	s := NewSpinner(&out, "connecting")
	s.Start()
	s.Start()
	s.Stop()

	assert.NotPanics(t, s.Stop)
}
