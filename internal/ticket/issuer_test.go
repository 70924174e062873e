package ticket

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, opts ...Option) *Issuer {
	t.Helper()
	opts = append([]Option{WithQRSize(64)}, opts...)
	issuer, err := NewIssuer([]byte("test-secret"), opts...)
	require.NoError(t, err)
	return issuer
}

func TestIssuer_Mint(t *testing.T) {
	issuer := newTestIssuer(t)

	tickets, err := issuer.Mint("booking-1", "event-1", 4)
	require.NoError(t, err)
	require.Len(t, tickets, 4)

	ids := make(map[string]struct{})
	for _, tk := range tickets {
		assert.Equal(t, domain.TicketStatusActive, tk.Status)
		assert.Equal(t, "booking-1", tk.BookingID)
		assert.Equal(t, "event-1", tk.EventID)
		assert.True(t, strings.HasPrefix(tk.QRCodeDataURL, "data:image/png;base64,"))

		png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(tk.QRCodeDataURL, "data:image/png;base64,"))
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), png[:4])

		_, err = uuid.Parse(tk.UniqueID)
		assert.NoError(t, err)

		claims, err := issuer.Decode(tk.Payload)
		require.NoError(t, err)
		assert.Equal(t, tk.UniqueID, claims.TicketID)
		assert.Equal(t, "booking-1", claims.BookingID)

		ids[tk.UniqueID] = struct{}{}
	}
	assert.Len(t, ids, 4)
}

func TestIssuer_Mint_RejectsZeroCount(t *testing.T) {
	issuer := newTestIssuer(t)

	tickets, err := issuer.Mint("booking-1", "event-1", 0)
	assert.Nil(t, tickets)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestIssuer_Mint_AllOrNothing(t *testing.T) {
	t.Run("id source fails midway", func(t *testing.T) {
		calls := 0
		issuer := newTestIssuer(t, WithIDSource(func() (uuid.UUID, error) {
			calls++
			if calls == 3 {
				return uuid.Nil, errors.New("entropy exhausted")
			}
			return uuid.New(), nil
		}))

		tickets, err := issuer.Mint("booking-1", "event-1", 5)
		assert.Error(t, err)
		assert.Nil(t, tickets)
	})

	t.Run("duplicate id in batch", func(t *testing.T) {
		fixed := uuid.New()
		issuer := newTestIssuer(t, WithIDSource(func() (uuid.UUID, error) { return fixed, nil }))

		tickets, err := issuer.Mint("booking-1", "event-1", 2)
		assert.Error(t, err)
		assert.Nil(t, tickets)
	})

	t.Run("qr rendering fails", func(t *testing.T) {
		issuer := newTestIssuer(t, withQREncoder(func(string, int) ([]byte, error) {
			return nil, errors.New("too much data")
		}))

		tickets, err := issuer.Mint("booking-1", "event-1", 1)
		assert.Error(t, err)
		assert.Nil(t, tickets)
	})
}

func TestIssuer_Encode_Deterministic(t *testing.T) {
	issuer := newTestIssuer(t)
	c := Claims{Version: payloadVersion, TicketID: "t-1", BookingID: "b-1", EventID: "e-1"}

	first, err := issuer.Encode(c)
	require.NoError(t, err)
	second, err := issuer.Encode(c)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIssuer_Decode_RejectsTampering(t *testing.T) {
	issuer := newTestIssuer(t)
	payload, err := issuer.Encode(Claims{Version: payloadVersion, TicketID: "t-1", BookingID: "b-1", EventID: "e-1"})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	require.NoError(t, err)
	raw[2] ^= 0xff
	_, err = issuer.Decode(base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	other, err := NewIssuer([]byte("another-secret"))
	require.NoError(t, err)
	_, err = other.Decode(payload)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = issuer.Decode("not base64 !")
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestIssuer_Resolve(t *testing.T) {
	issuer := newTestIssuer(t)
	tickets, err := issuer.Mint("booking-1", "event-1", 1)
	require.NoError(t, err)
	tk := tickets[0]

	id, err := issuer.Resolve(tk.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, tk.UniqueID, id)

	id, err = issuer.Resolve(tk.Payload)
	require.NoError(t, err)
	assert.Equal(t, tk.UniqueID, id)

	_, err = issuer.Resolve("garbage")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer(nil)
	assert.Error(t, err)
}
