package ticket

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/zeebo/blake3"
)

const (
	payloadVersion = 1
	macSize        = 16
)

var ErrMalformedPayload = errors.New("malformed ticket payload")

// Claims is what a scannable payload carries.
type Claims struct {
	Version   uint8  `cbor:"1,keyasint"`
	TicketID  string `cbor:"2,keyasint"`
	BookingID string `cbor:"3,keyasint"`
	EventID   string `cbor:"4,keyasint"`
}

type Issuer struct {
	key     [32]byte
	encMode cbor.EncMode
	qrSize  int
	newID   func() (uuid.UUID, error)
	now     func() time.Time
	encode  func(content string, size int) ([]byte, error)
}

type Option func(*Issuer)

func WithQRSize(px int) Option {
	return func(i *Issuer) {
		if px > 0 {
			i.qrSize = px
		}
	}
}

func WithIDSource(fn func() (uuid.UUID, error)) Option {
	return func(i *Issuer) {
		i.newID = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func withQREncoder(fn func(content string, size int) ([]byte, error)) Option {
	return func(i *Issuer) {
		i.encode = fn
	}
}

// NewIssuer derives the payload MAC key from secret.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("ticket secret is empty")
	}
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("init cbor encoder: %w", err)
	}

	i := &Issuer{
		key:     blake3.Sum256(secret),
		encMode: encMode,
		qrSize:  256,
		newID:   uuid.NewRandom,
		now:     time.Now,
		encode: func(content string, size int) ([]byte, error) {
			return qrcode.Encode(content, qrcode.Medium, size)
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Mint creates count active tickets for a booking. Either every ticket is
// produced or none is.
func (i *Issuer) Mint(bookingID, eventID string, count int) ([]domain.Ticket, error) {
	if count < 1 {
		return nil, domain.Validationf("number of tickets must be at least 1")
	}

	now := i.now()
	seen := make(map[string]struct{}, count)
	tickets := make([]domain.Ticket, 0, count)
	for n := 0; n < count; n++ {
		id, err := i.newID()
		if err != nil {
			return nil, fmt.Errorf("generate ticket id: %w", err)
		}
		ticketID := id.String()
		if _, dup := seen[ticketID]; dup {
			return nil, fmt.Errorf("generate ticket id: duplicate %s in batch", ticketID)
		}
		seen[ticketID] = struct{}{}

		payload, err := i.Encode(Claims{Version: payloadVersion, TicketID: ticketID, BookingID: bookingID, EventID: eventID})
		if err != nil {
			return nil, fmt.Errorf("encode ticket %s: %w", ticketID, err)
		}
		png, err := i.encode(payload, i.qrSize)
		if err != nil {
			return nil, fmt.Errorf("render qr for ticket %s: %w", ticketID, err)
		}

		tickets = append(tickets, domain.Ticket{
			UniqueID:      ticketID,
			BookingID:     bookingID,
			EventID:       eventID,
			Payload:       payload,
			QRCodeDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			Status:        domain.TicketStatusActive,
			CreatedAt:     now,
		})
	}
	return tickets, nil
}

// Encode returns base64url(cbor(claims) || mac).
func (i *Issuer) Encode(c Claims) (string, error) {
	body, err := i.encMode.Marshal(c)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, len(body)+macSize)
	buf = append(buf, body...)
	buf = append(buf, i.mac(body)...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (i *Issuer) Decode(payload string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(raw) <= macSize {
		return Claims{}, ErrMalformedPayload
	}
	body, tag := raw[:len(raw)-macSize], raw[len(raw)-macSize:]
	if subtle.ConstantTimeCompare(tag, i.mac(body)) != 1 {
		return Claims{}, ErrMalformedPayload
	}

	var c Claims
	if err := cbor.Unmarshal(body, &c); err != nil {
		return Claims{}, ErrMalformedPayload
	}
	if c.Version != payloadVersion || c.TicketID == "" {
		return Claims{}, ErrMalformedPayload
	}
	return c, nil
}

// Resolve accepts either a bare ticket id or a scanned payload and returns
// the ticket id.
func (i *Issuer) Resolve(ref string) (string, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id.String(), nil
	}
	c, err := i.Decode(ref)
	if err != nil {
		return "", domain.Validationf("ticket reference is neither a ticket id nor a valid ticket code")
	}
	return c.TicketID, nil
}

func (i *Issuer) mac(body []byte) []byte {
	h, err := blake3.NewKeyed(i.key[:])
	if err != nil {
		panic("ticket: blake3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(body)
	return h.Sum(nil)[:macSize]
}
