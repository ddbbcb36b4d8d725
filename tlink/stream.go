package tlink

import (
	"errors"
	"io"

	"github.com/opd-ai/panellink/perr"
	"github.com/sirupsen/logrus"
)

// readChunk is the size of a single transport read.
const readChunk = 4096

// StreamReader pulls whole TLink packets out of a streamed byte source.
// Bytes are buffered across reads; a packet is returned as soon as the
// extractor can bound one. A closed source is reported once as a
// Disconnected error, after any packets already buffered are drained.
type StreamReader struct {
	src       io.Reader
	extractor Extractor
	buf       []byte
	closed    bool
}

// NewStreamReader creates a StreamReader over src using the given
// extractor policy.
func NewStreamReader(src io.Reader, extractor Extractor) *StreamReader {
	return &StreamReader{src: src, extractor: extractor}
}

// Next returns the next whole packet. It blocks on the underlying reader
// until a packet boundary is seen.
func (r *StreamReader) Next() ([]byte, error) {
	for {
		if packet, consumed := r.extractor.TryExtract(r.buf); consumed > 0 {
			r.buf = r.buf[consumed:]
			return packet, nil
		}
		if r.closed {
			return nil, perr.New(perr.Disconnected, "byte source closed")
		}
		chunk := make([]byte, readChunk)
		n, err := r.src.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithFields(logrus.Fields{
					"function": "StreamReader.Next",
					"error":    err.Error(),
				}).Debug("byte source read failed")
			}
			r.closed = true
			if len(r.buf) == 0 {
				return nil, perr.Wrap(perr.Disconnected, err, "byte source closed")
			}
		}
	}
}
