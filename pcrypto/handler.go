// Package pcrypto implements the panel session encryption handlers.
//
// Both handler types run AES-128 in ECB mode over whole frames, with
// separate keys per direction seeded by the initializers exchanged in
// RequestAccess. The two types differ only in key derivation: Type1 uses
// a single SHA-256 pass over the access code and initializer, Type2
// stretches the access code with PBKDF2.
package pcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	"github.com/opd-ai/panellink/perr"
)

// BlockSize is the ECB block size in bytes.
const BlockSize = aes.BlockSize

// InitializerSize is the required initializer length in bytes.
const InitializerSize = 16

// Handler derives directional keys and transforms whole frames. Each
// configure method must be called exactly once per session.
type Handler interface {
	// ConfigureOutbound derives the outbound key from the initializer
	// received from the remote side.
	ConfigureOutbound(initializer []byte) error
	// ConfigureInbound generates a random initializer, derives the
	// inbound key, and returns the initializer to send to the remote.
	ConfigureInbound() ([]byte, error)
	// EncryptOutbound zero-pads plaintext to the block boundary and
	// encrypts it.
	EncryptOutbound(plaintext []byte) ([]byte, error)
	// DecryptInbound decrypts ciphertext; the caller's framing discards
	// the padding slack.
	DecryptInbound(ciphertext []byte) ([]byte, error)
}

// deriveFunc turns an access code and an initializer into an AES-128 key.
type deriveFunc func(accessCode, initializer []byte) []byte

// handler is the shared Type1/Type2 implementation.
type handler struct {
	accessCode []byte
	derive     deriveFunc
	outbound   cipher.Block
	inbound    cipher.Block
}

// NewType1 creates a Type1 handler: key = SHA-256(code ‖ initializer)
// truncated to 16 bytes.
func NewType1(accessCode []byte) Handler {
	return &handler{
		accessCode: append([]byte(nil), accessCode...),
		derive: func(code, initializer []byte) []byte {
			sum := sha256.Sum256(append(append([]byte(nil), code...), initializer...))
			return sum[:16]
		},
	}
}

// NewType2 creates a Type2 handler: key = PBKDF2-SHA256(code,
// initializer, 4096 iterations, 16 bytes).
func NewType2(accessCode []byte) Handler {
	return &handler{
		accessCode: append([]byte(nil), accessCode...),
		derive: func(code, initializer []byte) []byte {
			return pbkdf2.Key(code, initializer, 4096, 16, sha256.New)
		},
	}
}

func (h *handler) ConfigureOutbound(initializer []byte) error {
	if h.outbound != nil {
		return perr.New(perr.EncryptionError, "outbound key already configured")
	}
	if len(initializer) != InitializerSize {
		return perr.New(perr.EncryptionError, "initializer is %d bytes, want %d", len(initializer), InitializerSize)
	}
	if len(h.accessCode) == 0 {
		return perr.New(perr.EncryptionError, "no access code configured")
	}
	block, err := aes.NewCipher(h.derive(h.accessCode, initializer))
	if err != nil {
		return perr.Wrap(perr.EncryptionError, err, "outbound key setup failed")
	}
	h.outbound = block
	return nil
}

func (h *handler) ConfigureInbound() ([]byte, error) {
	if h.inbound != nil {
		return nil, perr.New(perr.EncryptionError, "inbound key already configured")
	}
	if len(h.accessCode) == 0 {
		return nil, perr.New(perr.EncryptionError, "no access code configured")
	}
	initializer := make([]byte, InitializerSize)
	if _, err := rand.Read(initializer); err != nil {
		return nil, perr.Wrap(perr.EncryptionError, err, "initializer generation failed")
	}
	block, err := aes.NewCipher(h.derive(h.accessCode, initializer))
	if err != nil {
		return nil, perr.Wrap(perr.EncryptionError, err, "inbound key setup failed")
	}
	h.inbound = block
	return initializer, nil
}

func (h *handler) EncryptOutbound(plaintext []byte) ([]byte, error) {
	if h.outbound == nil {
		return nil, perr.New(perr.EncryptionError, "outbound key not configured")
	}
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += BlockSize {
		h.outbound.Encrypt(out[i:i+BlockSize], padded[i:i+BlockSize])
	}
	return out, nil
}

func (h *handler) DecryptInbound(ciphertext []byte) ([]byte, error) {
	if h.inbound == nil {
		return nil, perr.New(perr.EncryptionError, "inbound key not configured")
	}
	if len(ciphertext)%BlockSize != 0 {
		return nil, perr.New(perr.EncryptionError, "ciphertext of %d bytes is not block aligned", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += BlockSize {
		h.inbound.Decrypt(out[i:i+BlockSize], ciphertext[i:i+BlockSize])
	}
	return out, nil
}

// pad zero-fills plaintext up to the next block boundary.
func pad(plaintext []byte) []byte {
	slack := len(plaintext) % BlockSize
	if slack == 0 {
		return plaintext
	}
	padded := make([]byte, len(plaintext)+BlockSize-slack)
	copy(padded, plaintext)
	return padded
}
