// Package message defines the ITv2 message catalog: the concrete message
// types exchanged with a panel and their command-word registrations.
//
// Types register themselves with the wire registry at init time; the
// registry instantiates them from inbound command words and unknown words
// fall back to wire.DefaultMessage.
package message

import (
	"github.com/opd-ai/panellink/wire"
)

// Command words of the session-management messages.
const (
	WordConnectionPoll  uint16 = 0x0000
	WordStatusRequest   uint16 = 0x0052
	WordCommandResponse uint16 = 0x0500
	WordCommandError    uint16 = 0x0501
	WordRequestAccess   uint16 = 0x060A
	WordOpenSession     uint16 = 0x060E
	WordMultipleMessage uint16 = 0x0803
)

// EncryptionType selects the session key-derivation scheme announced in
// OpenSession.
type EncryptionType uint8

const (
	// EncryptionNone leaves the session in plaintext.
	EncryptionNone EncryptionType = 0x00
	// EncryptionType1 derives keys with single-pass hashing.
	EncryptionType1 EncryptionType = 0x01
	// EncryptionType2 derives keys with iterated stretching.
	EncryptionType2 EncryptionType = 0x02
)

// Valid reports whether the discriminant is a known encryption type.
func (e EncryptionType) Valid() bool { return e <= EncryptionType2 }

// ResponseCode is the panel's verdict on a command.
type ResponseCode uint8

// ResponseSuccess is the only non-rejection response code.
const ResponseSuccess ResponseCode = 0x00

// OpenSession opens the ITv2 session. The panel sends it first; the
// server mirrors it back during the handshake.
type OpenSession struct {
	wire.Command
	DeviceType      uint8          `wire:"u8"`
	DeviceID        uint16         `wire:"u16"`
	FirmwareVersion uint16         `wire:"u16"`
	ProtocolVersion uint16         `wire:"u16"`
	EncryptionType  EncryptionType `wire:"u8"`
}

// CommandWord implements wire.Message.
func (m *OpenSession) CommandWord() uint16 { return WordOpenSession }

// RequestAccess carries one side's encryption initializer.
type RequestAccess struct {
	wire.Command
	Initializer []byte `wire:"bytes,lenbytes=1"`
}

// CommandWord implements wire.Message.
func (m *RequestAccess) CommandWord() uint16 { return WordRequestAccess }

// CommandResponse completes a command transaction.
type CommandResponse struct {
	wire.Command
	Code ResponseCode `wire:"u8"`
}

// CommandWord implements wire.Message.
func (m *CommandResponse) CommandWord() uint16 { return WordCommandResponse }

// Rejected reports whether the panel refused the command. A rejection is
// still a completed round trip; the caller reads the code.
func (m *CommandResponse) Rejected() bool { return m.Code != ResponseSuccess }

// CommandError is the panel's NACK for a command it could not process.
// It completes the command transaction the same way CommandResponse does.
type CommandError struct {
	wire.Command
	Code uint8 `wire:"u8"`
}

// CommandWord implements wire.Message.
func (m *CommandError) CommandWord() uint16 { return WordCommandError }

// ConnectionPoll is the keep-alive notification.
type ConnectionPoll struct{}

// CommandWord implements wire.Message.
func (m *ConnectionPoll) CommandWord() uint16 { return WordConnectionPoll }

// StatusRequest asks the panel for its current status summary.
type StatusRequest struct {
	wire.Command
}

// CommandWord implements wire.Message.
func (m *StatusRequest) CommandWord() uint16 { return WordStatusRequest }

func init() {
	wire.Register(WordOpenSession, func() wire.Message { return &OpenSession{} })
	wire.Register(WordRequestAccess, func() wire.Message { return &RequestAccess{} })
	wire.Register(WordCommandResponse, func() wire.Message { return &CommandResponse{} })
	wire.Register(WordCommandError, func() wire.Message { return &CommandError{} })
	wire.Register(WordConnectionPoll, func() wire.Message { return &ConnectionPoll{} })
	wire.Register(WordStatusRequest, func() wire.Message { return &StatusRequest{} })
}
