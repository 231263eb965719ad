package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewID returns a random UUID for primary keys. Internal ids never leave the service.
func NewID() string {
	return uuid.NewString()
}

// NewReservationToken returns 64 hex characters from crypto/rand.
func NewReservationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reservation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewTicketCode returns "TK-" followed by 12 uppercase alphanumerics.
func NewTicketCode() (string, error) {
	return randomCode("TK-", 12)
}

// NewBookingNumber returns "BK-" followed by 13 uppercase alphanumerics.
func NewBookingNumber() (string, error) {
	return randomCode("BK-", 13)
}

func randomCode(prefix string, n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = codeAlphabet[idx.Int64()]
	}
	return prefix + string(buf), nil
}
