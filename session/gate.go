package session

import (
	"sync"
	"time"
)

// quietGate is the one-shot reconnection gate. After connection
// establishment the remote may burst queued notifications with
// pre-assigned sequence numbers; no command may go out until the inbound
// stream has been silent for the configured window. The gate opens once
// and never closes again.
type quietGate struct {
	window time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	opened chan struct{}
	isOpen bool
}

func newQuietGate(window time.Duration) *quietGate {
	g := &quietGate{
		window: window,
		opened: make(chan struct{}),
	}
	g.timer = time.AfterFunc(window, g.open)
	return g
}

func (g *quietGate) open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isOpen {
		g.isOpen = true
		close(g.opened)
	}
}

// Reset restarts the silence window. Once the gate has opened the call is
// a no-op.
func (g *quietGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isOpen {
		return
	}
	g.timer.Reset(g.window)
}

// Open returns the channel closed when the gate opens.
func (g *quietGate) Open() <-chan struct{} {
	return g.opened
}

// Stop releases the timer.
func (g *quietGate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timer.Stop()
}
