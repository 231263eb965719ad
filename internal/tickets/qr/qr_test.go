package qr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	g := NewGenerator("door-secret")
	in := Payload{TicketCode: "TK-ABCDEF123456", BookingNumber: "BK-ABCDEFGHJKLMN"}

	sealed, err := g.Seal(in)
	require.NoError(t, err)
	assert.NotContains(t, sealed, in.TicketCode)

	out, err := g.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	again, err := g.Seal(in)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")
}

func TestOpenRejectsForeignOrTampered(t *testing.T) {
	sealed, err := NewGenerator("a").Seal(Payload{TicketCode: "TK-1"})
	require.NoError(t, err)

	_, err = NewGenerator("b").Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewGenerator("a").Open("not base64 !!")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewGenerator("a").Open("")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	tampered := []byte(sealed)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}
	_, err = NewGenerator("a").Open(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPNG(t *testing.T) {
	png, err := NewGenerator("s").PNG(Payload{TicketCode: "TK-ABCDEF123456", BookingNumber: "BK-1"}, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
