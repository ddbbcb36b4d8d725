package tlink

import (
	"bytes"
	"testing"

	"github.com/opd-ai/panellink/perr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStuff(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"plain bytes pass through", []byte{0x01, 0x02, 0x7C}, []byte{0x01, 0x02, 0x7C}},
		{"escape byte", []byte{0x7D}, []byte{0x7D, 0x00}},
		{"header delimiter", []byte{0x7E}, []byte{0x7D, 0x01}},
		{"packet delimiter", []byte{0x7F}, []byte{0x7D, 0x02}},
		{"mixed", []byte{0x10, 0x7D, 0x7E, 0x7F, 0x20}, []byte{0x10, 0x7D, 0x00, 0x7D, 0x01, 0x7D, 0x02, 0x20}},
		{"empty", nil, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stuff(tt.in))
		})
	}
}

func TestUnstuff(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    []byte
		wantErr bool
	}{
		{"plain", []byte{0x01, 0x02}, []byte{0x01, 0x02}, false},
		{"escaped escape", []byte{0x7D, 0x00}, []byte{0x7D}, false},
		{"escaped header delim", []byte{0x7D, 0x01}, []byte{0x7E}, false},
		{"escaped packet delim", []byte{0x7D, 0x02}, []byte{0x7F}, false},
		{"unknown escape code", []byte{0x7D, 0x03}, nil, true},
		{"trailing escape", []byte{0x01, 0x7D}, nil, true},
		{"raw header delimiter", []byte{0x01, 0x7E}, nil, true},
		{"raw packet delimiter", []byte{0x7F}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unstuff(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, perr.EncodingError, perr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		header  []byte
		payload []byte
	}{
		{"plain", []byte("4242"), []byte{0x01, 0x02, 0x03}},
		{"empty both", []byte{}, []byte{}},
		{"delimiters everywhere", []byte{0x7D, 0x7E, 0x7F}, []byte{0x7F, 0x7E, 0x7D, 0x7D}},
		{"empty payload", []byte{0xAA}, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeFrame(tt.header, tt.payload)
			header, payload, err := ParseFrame(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.header, header)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		kind perr.Kind
	}{
		{"missing terminator", []byte{0x01, 0x7E, 0x02}, perr.FramingError},
		{"missing header delimiter", []byte{0x01, 0x02, 0x7F}, perr.FramingError},
		{"empty", nil, perr.FramingError},
		{"single terminator", []byte{0x7F}, perr.FramingError},
		{"bad escape in payload", []byte{0x01, 0x7E, 0x7D, 0x09, 0x7F}, perr.EncodingError},
		{"trailing escape in payload", []byte{0x7E, 0x02, 0x7D, 0x7F}, perr.EncodingError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseFrame(tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, perr.KindOf(err))
		})
	}
}

func TestParseFrameTrailingEscapeAtEndOfInput(t *testing.T) {
	// 0x7D immediately before the terminator leaves the payload region
	// ending in a bare escape.
	_, _, err := ParseFrame([]byte{0xAA, 0x7E, 0x01, 0x7D, 0x7F})
	require.Error(t, err)
	assert.Equal(t, perr.EncodingError, perr.KindOf(err))
}

func TestCodecTryExtract(t *testing.T) {
	var c Codec

	packet, consumed := c.TryExtract([]byte{0x01, 0x7E, 0x02, 0x7F, 0x99})
	assert.Equal(t, []byte{0x01, 0x7E, 0x02, 0x7F}, packet)
	assert.Equal(t, 4, consumed)

	packet, consumed = c.TryExtract([]byte{0x01, 0x02})
	assert.Nil(t, packet)
	assert.Zero(t, consumed)

	// First delimiter wins even when another follows.
	packet, consumed = c.TryExtract([]byte{0x7F, 0x7F})
	assert.Equal(t, []byte{0x7F}, packet)
	assert.Equal(t, 1, consumed)
}

func TestDLSCodecTryExtract(t *testing.T) {
	plain := DLSCodec{}

	// Length bounds the packet; delimiter inside the window shortens it.
	buf := []byte{0x00, 0x04, 0x01, 0x7F, 0x03, 0x04}
	packet, consumed := plain.TryExtract(buf)
	assert.Equal(t, []byte{0x01, 0x7F}, packet)
	assert.Equal(t, 6, consumed)

	// Encrypted: the window is ciphertext, no delimiter scan.
	enc := DLSCodec{Encrypted: true}
	packet, consumed = enc.TryExtract(buf)
	assert.Equal(t, []byte{0x01, 0x7F, 0x03, 0x04}, packet)
	assert.Equal(t, 6, consumed)

	// Incomplete length prefix and incomplete body need more input.
	_, consumed = plain.TryExtract([]byte{0x00})
	assert.Zero(t, consumed)
	_, consumed = plain.TryExtract([]byte{0x00, 0x04, 0x01})
	assert.Zero(t, consumed)
}

func TestStreamReader(t *testing.T) {
	frameA := EncodeFrame([]byte{0xA1}, []byte{0x01})
	frameB := EncodeFrame([]byte{0xB2}, []byte{0x02, 0x7D})
	src := bytes.NewReader(append(append([]byte{}, frameA...), frameB...))

	r := NewStreamReader(src, Codec{})

	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, frameA, got)

	got, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, frameB, got)

	_, err = r.Next()
	require.Error(t, err)
	assert.Equal(t, perr.Disconnected, perr.KindOf(err))
}

func TestStreamReaderPartialReads(t *testing.T) {
	frame := EncodeFrame([]byte{0x11, 0x22}, []byte{0x33})
	r := NewStreamReader(oneByteReader{bytes.NewReader(frame)}, Codec{})

	got, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

// oneByteReader forces single-byte reads to exercise buffering.
type oneByteReader struct {
	src *bytes.Reader
}

func (r oneByteReader) Read(p []byte) (int, error) {
	return r.src.Read(p[:1])
}
