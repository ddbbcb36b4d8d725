package itv2

import (
	"testing"

	"github.com/opd-ai/panellink/perr"
	"github.com/opd-ai/panellink/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleAckRoundTrip(t *testing.T) {
	data, err := EncodePacket(NewAck(0x06, 0x09))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06, 0x09}, data)

	p, err := DecodePacket(data)
	require.NoError(t, err)
	assert.True(t, p.IsAck())
	assert.Equal(t, byte(0x06), p.SenderSequence)
	assert.Equal(t, byte(0x09), p.ReceiverSequence)
}

func TestPacketWithMessageRoundTrip(t *testing.T) {
	msg := &wire.DefaultMessage{Word: 0x4455, RawData: []byte{0x01, 0x02}}
	p := &Packet{SenderSequence: 0x10, ReceiverSequence: 0x20, Message: msg}

	data, err := EncodePacket(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20, 0x44, 0x55, 0x01, 0x02}, data)

	got, err := DecodePacket(data)
	require.NoError(t, err)
	require.False(t, got.IsAck())
	def, ok := got.Message.(*wire.DefaultMessage)
	require.True(t, ok)
	assert.Equal(t, uint16(0x4455), def.Word)
	assert.Equal(t, []byte{0x01, 0x02}, def.RawData)
}

func TestSequenceZeroRoundTrip(t *testing.T) {
	// A wrapped sender sequence of zero is a legal value on the wire.
	data, err := EncodePacket(NewAck(0x00, 0x00))
	require.NoError(t, err)
	p, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Zero(t, p.SenderSequence)
	assert.Zero(t, p.ReceiverSequence)
}

func TestDecodePacketTooShort(t *testing.T) {
	_, err := DecodePacket([]byte{0x01})
	require.Error(t, err)
	assert.Equal(t, perr.PacketParseError, perr.KindOf(err))
}

func TestPacketString(t *testing.T) {
	assert.Contains(t, NewAck(1, 2).String(), "SimpleAck")
	p := &Packet{Message: &wire.DefaultMessage{Word: 0x0052}}
	assert.Contains(t, p.String(), "0x0052")
}
