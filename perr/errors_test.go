package perr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Cancelled, "Cancelled"},
		{Disconnected, "Disconnected"},
		{FramingError, "FramingError"},
		{EncodingError, "EncodingError"},
		{EncryptionError, "EncryptionError"},
		{PacketParseError, "PacketParseError"},
		{SessionNotFound, "SessionNotFound"},
		{UnexpectedResponse, "UnexpectedResponse"},
		{Timeout, "Timeout"},
		{Unknown, "Unknown"},
		{Kind(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := New(Timeout, "command %d timed out", 7)
	assert.Equal(t, Timeout, KindOf(err))

	wrapped := fmt.Errorf("send failed: %w", err)
	assert.Equal(t, Timeout, KindOf(wrapped))

	assert.Equal(t, Cancelled, KindOf(context.Canceled))
	assert.Equal(t, Cancelled, KindOf(fmt.Errorf("op: %w", context.DeadlineExceeded)))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("bad crc")
	err := Wrap(PacketParseError, cause, "frame rejected")
	require.True(t, errors.Is(err, cause))
	assert.Equal(t, PacketParseError, KindOf(err))
	assert.Contains(t, err.Error(), "frame rejected")
	assert.Contains(t, err.Error(), "bad crc")
}

func TestWithPacketHexDiagnostics(t *testing.T) {
	err := New(PacketParseError, "crc mismatch").WithPacket([]byte{0xDE, 0xAD})
	if !strings.Contains(err.Error(), "dead") {
		t.Errorf("expected hex packet in message, got %q", err.Error())
	}
}

func TestIsKind(t *testing.T) {
	err := New(Disconnected, "remote closed")
	assert.True(t, IsKind(err, Disconnected))
	assert.False(t, IsKind(err, Timeout))
}
