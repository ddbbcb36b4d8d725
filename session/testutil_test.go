package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/panellink/itv2"
	"github.com/opd-ai/panellink/message"
	"github.com/opd-ai/panellink/pcrypto"
	"github.com/opd-ai/panellink/tlink"
	"github.com/opd-ai/panellink/wire"
)

const (
	simAccessCode = "123456"
	simHeader     = "0CAFE042"
)

// panelSim drives the remote side of a session over an in-memory pipe,
// speaking the same codec stack a real panel would.
type panelSim struct {
	t      *testing.T
	conn   net.Conn
	reader *tlink.StreamReader
	header []byte

	crypto     pcrypto.Handler
	encryptOut bool
	encryptIn  bool

	localSeq byte
	cmdSeq   byte
}

func newPanelSim(t *testing.T, conn net.Conn) *panelSim {
	return &panelSim{
		t:      t,
		conn:   conn,
		reader: tlink.NewStreamReader(conn, tlink.Codec{}),
		header: []byte(simHeader),
		crypto: pcrypto.NewType1([]byte(simAccessCode)),
		cmdSeq: 0x10,
	}
}

func (p *panelSim) writePacket(pkt *itv2.Packet) {
	p.t.Helper()
	data, err := itv2.EncodePacket(pkt)
	require.NoError(p.t, err)
	framed, err := itv2.AddFraming(data)
	require.NoError(p.t, err)
	if p.encryptOut {
		framed, err = p.crypto.EncryptOutbound(framed)
		require.NoError(p.t, err)
	}
	_, err = p.conn.Write(tlink.EncodeFrame(p.header, framed))
	require.NoError(p.t, err)
}

func (p *panelSim) readPacket() *itv2.Packet {
	p.t.Helper()
	raw, err := p.reader.Next()
	require.NoError(p.t, err)
	_, payload, err := tlink.ParseFrame(raw)
	require.NoError(p.t, err)
	if p.encryptIn {
		payload, err = p.crypto.DecryptInbound(payload)
		require.NoError(p.t, err)
	}
	data, err := itv2.RemoveFraming(payload)
	require.NoError(p.t, err)
	pkt, err := itv2.DecodePacket(data)
	require.NoError(p.t, err)
	return pkt
}

// sendMessage emits a panel-initiated non-ack packet, advancing the
// panel's sequence.
func (p *panelSim) sendMessage(msg wire.Message, receiverSeq byte) byte {
	p.localSeq++
	p.writePacket(&itv2.Packet{
		SenderSequence:   p.localSeq,
		ReceiverSequence: receiverSeq,
		Message:          msg,
	})
	return p.localSeq
}

// handshake runs the panel side of session establishment.
func (p *panelSim) handshake() {
	p.t.Helper()

	// Panel opens its session.
	open := &message.OpenSession{
		DeviceType:      0x01,
		DeviceID:        0xBEEF,
		FirmwareVersion: 0x0104,
		ProtocolVersion: 0x0200,
		EncryptionType:  message.EncryptionType1,
	}
	p.cmdSeq++
	open.SetCommandSeq(p.cmdSeq)
	p.sendMessage(open, 0)

	resp := p.readPacket()
	require.False(p.t, resp.IsAck())
	require.IsType(p.t, &message.CommandResponse{}, resp.Message)
	p.writePacket(itv2.NewAck(p.localSeq, resp.SenderSequence))

	// Server mirrors OpenSession.
	mirror := p.readPacket()
	require.IsType(p.t, &message.OpenSession{}, mirror.Message)
	p.cmdSeq = mirror.Message.(*message.OpenSession).CommandSeq()
	reply := &message.CommandResponse{Code: message.ResponseSuccess}
	reply.SetCommandSeq(p.cmdSeq)
	p.writePacket(&itv2.Packet{
		SenderSequence:   p.localSeq,
		ReceiverSequence: mirror.SenderSequence,
		Message:          reply,
	})
	require.True(p.t, p.readPacket().IsAck())

	// Panel requests access; the server's response arrives encrypted.
	initializer, err := p.crypto.ConfigureInbound()
	require.NoError(p.t, err)
	access := &message.RequestAccess{Initializer: initializer}
	p.cmdSeq++
	access.SetCommandSeq(p.cmdSeq)
	p.sendMessage(access, p.localSeq)
	p.encryptIn = true

	resp = p.readPacket()
	require.IsType(p.t, &message.CommandResponse{}, resp.Message)
	p.writePacket(itv2.NewAck(p.localSeq, resp.SenderSequence))

	// Server requests access; panel encrypts everything from here on.
	serverAccess := p.readPacket()
	require.IsType(p.t, &message.RequestAccess{}, serverAccess.Message)
	p.cmdSeq = serverAccess.Message.(*message.RequestAccess).CommandSeq()
	require.NoError(p.t, p.crypto.ConfigureOutbound(serverAccess.Message.(*message.RequestAccess).Initializer))
	p.encryptOut = true

	reply = &message.CommandResponse{Code: message.ResponseSuccess}
	reply.SetCommandSeq(p.cmdSeq)
	p.writePacket(&itv2.Packet{
		SenderSequence:   p.localSeq,
		ReceiverSequence: serverAccess.SenderSequence,
		Message:          reply,
	})
	require.True(p.t, p.readPacket().IsAck())
}

// connect builds a connected session/panel pair with test-friendly
// timings.
func connect(t *testing.T, override func(*Config)) (*Session, *panelSim) {
	t.Helper()
	serverConn, panelConn := net.Pipe()
	sim := newPanelSim(t, panelConn)

	cfg := Config{
		Type1AccessCode:        []byte(simAccessCode),
		Type2AccessCode:        []byte(simAccessCode),
		QuietGate:              100 * time.Millisecond,
		HeartbeatInterval:      time.Hour,
		CommandResponseTimeout: 5 * time.Second,
	}
	if override != nil {
		override(&cfg)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sim.handshake()
	}()

	sess, err := Create(context.Background(), serverConn, cfg)
	require.NoError(t, err)
	<-done

	t.Cleanup(func() {
		sess.Dispose()
		panelConn.Close()
	})
	return sess, sim
}

// waitGate blocks until the session's quiet-gate opens.
func waitGate(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.gate.Open():
	case <-time.After(5 * time.Second):
		t.Fatal("quiet-gate never opened")
	}
}
