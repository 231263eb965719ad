package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidPayload = errors.New("invalid qr payload")

// Payload is what a ticket's QR code carries once decrypted.
type Payload struct {
	TicketCode    string `json:"ticket_code"`
	BookingNumber string `json:"booking_number"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// Seal encrypts the payload into a URL-safe string.
func (g *Generator) Seal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(gcm.Seal(nonce, nonce, data, nil)), nil
}

// Open reverses Seal. Anything tampered with or sealed under another
// secret fails with ErrInvalidPayload.
func (g *Generator) Open(sealed string) (Payload, error) {
	var p Payload
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return p, fmt.Errorf("decode: %w", ErrInvalidPayload)
	}
	gcm, err := g.aead()
	if err != nil {
		return p, err
	}
	if len(raw) < gcm.NonceSize() {
		return p, fmt.Errorf("short payload: %w", ErrInvalidPayload)
	}
	data, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return p, fmt.Errorf("decrypt: %w", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TicketCode == "" {
		return p, fmt.Errorf("content: %w", ErrInvalidPayload)
	}
	return p, nil
}

// PNG renders the sealed payload as a QR code image.
func (g *Generator) PNG(p Payload, size int) ([]byte, error) {
	sealed, err := g.Seal(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(sealed, qrcode.Medium, size)
}

func (g *Generator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
