package panellink

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/panellink/config"
	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/wire"
)

func testSettings() config.Settings {
	cfg := config.Default()
	cfg.Type1AccessCode = "123456"
	return cfg
}

func TestNewServerValidatesSettings(t *testing.T) {
	_, err := NewServer(config.Default(), nil)
	require.Error(t, err)

	srv, err := NewServer(testSettings(), nil)
	require.NoError(t, err)
	assert.NotNil(t, srv.Registry())
}

func TestSendToUnknownSession(t *testing.T) {
	srv, err := NewServer(testSettings(), nil)
	require.NoError(t, err)

	_, err = srv.Send(context.Background(), "no-such-panel", &wire.DefaultMessage{Word: 0x0001})
	require.Error(t, err)
	assert.Equal(t, perr.SessionNotFound, perr.KindOf(err))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("absent")
	require.Error(t, err)
	assert.Equal(t, perr.SessionNotFound, perr.KindOf(err))
	assert.Zero(t, r.Len())
}

func TestServeRejectsBadHandshakeAndKeepsAccepting(t *testing.T) {
	srv, err := NewServer(testSettings(), nil)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()

	// A connection that speaks garbage is dropped without killing the
	// accept loop.
	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", listener.Addr().String())
		require.NoError(t, err)
		_, err = conn.Write([]byte{0xDE, 0xAD, 0x7E, 0xBE, 0xEF, 0x7F})
		require.NoError(t, err)
		// The server discards the malformed handshake and closes.
		buf := make([]byte, 1)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err = conn.Read(buf)
		assert.ErrorIs(t, err, io.EOF)
		conn.Close()
	}
	assert.Zero(t, srv.Registry().Len())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-served)
}
