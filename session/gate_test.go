package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func gateOpen(g *quietGate) bool {
	select {
	case <-g.Open():
		return true
	default:
		return false
	}
}

func TestQuietGateOpensAfterSilence(t *testing.T) {
	g := newQuietGate(50 * time.Millisecond)
	defer g.Stop()

	assert.False(t, gateOpen(g))
	select {
	case <-g.Open():
	case <-time.After(time.Second):
		t.Fatal("gate never opened")
	}
}

func TestQuietGateResetDefersOpening(t *testing.T) {
	g := newQuietGate(150 * time.Millisecond)
	defer g.Stop()

	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		g.Reset()
	}
	assert.False(t, gateOpen(g))

	select {
	case <-g.Open():
	case <-time.After(time.Second):
		t.Fatal("gate never opened after resets stopped")
	}
}

func TestQuietGateStaysOpen(t *testing.T) {
	g := newQuietGate(10 * time.Millisecond)
	defer g.Stop()

	<-g.Open()
	// Later inbound traffic must not close an opened gate.
	g.Reset()
	assert.True(t, gateOpen(g))
}
