package email

import (
	"context"
	"encoding/base64"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func confirmedBooking() *domain.Booking {
	return &domain.Booking{
		ID:              "b-1",
		UserEmail:       "guest@example.com",
		EventID:         "e-1",
		NumberOfTickets: 1,
		Status:          domain.BookingStatusConfirmed,
		Tickets: []domain.Ticket{{
			UniqueID:      "t-1",
			QRCodeDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
			Status:        domain.TicketStatusActive,
		}},
	}
}

// ============================ Тесты для шаблонов ============================

func TestOTPNotification(t *testing.T) {
	rec := &domain.OTPRecord{Code: "123456", Action: domain.OTPActionConfirmBooking, BookingID: "b-1"}
	n, err := OTPNotification("guest@example.com", rec, &domain.Event{Name: "Jazz Night"}, 10*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, domain.NotificationOTP, n.Kind)
	assert.Equal(t, "b-1", n.BookingID)
	assert.Contains(t, n.Subject, "Confirm Your Event Booking")
	assert.Contains(t, n.HTML, "123456")
	assert.Contains(t, n.Text, "confirm your booking for Jazz Night")
	assert.Contains(t, n.Text, "10 minutes")
}

func TestConfirmationNotification_AttachesQRCodes(t *testing.T) {
	n, err := ConfirmationNotification(confirmedBooking(), &domain.Event{Name: "Jazz Night", Location: "Main Hall"})
	require.NoError(t, err)

	require.Len(t, n.Attachments, 1)
	assert.Equal(t, pngBytes, n.Attachments[0].Content)
	assert.Equal(t, "ticket-t-1", n.Attachments[0].ContentID)
	assert.Contains(t, n.HTML, "cid:ticket-t-1")
	assert.Equal(t, "guest@example.com", n.To)
}

func TestConfirmationNotification_BadQRCode(t *testing.T) {
	b := confirmedBooking()
	b.Tickets[0].QRCodeDataURL = "https://example.com/qr.png"

	_, err := ConfirmationNotification(b, nil)
	assert.Error(t, err)
}

func TestCancellationNotification_Kinds(t *testing.T) {
	tests := []struct {
		reason string
		kind   domain.NotificationKind
	}{
		{domain.CancelReasonUser, domain.NotificationBookingCancelled},
		{domain.CancelReasonWithdrawn, domain.NotificationBookingWithdrawn},
		{domain.CancelReasonLapsed, domain.NotificationBookingLapsed},
		{domain.CancelReasonEventCancelled, domain.NotificationEventCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			b := confirmedBooking()
			b.CancelReason = tt.reason
			n, err := CancellationNotification(b, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, n.Kind)
			assert.Contains(t, n.Text, "b-1")
		})
	}
}

func TestCancellationNotification_EventCancelled(t *testing.T) {
	b := confirmedBooking()
	b.CancelReason = domain.CancelReasonEventCancelled

	n, err := CancellationNotification(b, &domain.Event{ID: "e-1", Name: "Opera Gala"})

	require.NoError(t, err)
	assert.Equal(t, "Elite Events: Event Cancellation - Opera Gala", n.Subject)
	assert.Contains(t, n.Text, "Opera Gala has been cancelled by the organizer")
	assert.Equal(t, "guest@example.com", n.To)
}

func TestReminderNotification(t *testing.T) {
	event := &domain.Event{
		ID:       "e-1",
		Name:     "Opera Gala",
		Location: "Grand Hall",
		StartsAt: time.Date(2026, 12, 5, 19, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 12, 5, 22, 0, 0, 0, time.UTC),
	}

	n, err := ReminderNotification(confirmedBooking(), event)

	require.NoError(t, err)
	assert.Equal(t, domain.NotificationEventReminder, n.Kind)
	assert.Equal(t, "Elite Events: Reminder - Opera Gala is Coming Soon!", n.Subject)
	assert.Contains(t, n.Text, "Saturday, December 5, 2026 19:00 UTC - 22:00 UTC")
	assert.Contains(t, n.Text, "Location: Grand Hall.")
	assert.Contains(t, n.HTML, "b-1")
	assert.Empty(t, n.Attachments)
}

// ============================ Тесты для Sender ============================

func TestSender_Send(t *testing.T) {
	s := NewSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "tickets@example.com"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	n, err := ConfirmationNotification(confirmedBooking(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), n))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "tickets@example.com", gotFrom)
	assert.Equal(t, []string{"guest@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "From: tickets@example.com\r\n"))
	assert.Contains(t, msg, "multipart/related")
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "Content-Id: <ticket-t-1>")
	assert.Contains(t, msg, base64.StdEncoding.EncodeToString(pngBytes))
}

func TestSender_SendFailure(t *testing.T) {
	s := NewSender(config.SMTPConfig{Host: "localhost", Port: 25, From: "tickets@example.com"})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := s.Notify(context.Background(), domain.Notification{Kind: domain.NotificationOTP, To: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSender_NoRecipient(t *testing.T) {
	s := NewSender(config.SMTPConfig{Host: "localhost", Port: 25})
	assert.Error(t, s.Send(context.Background(), domain.Notification{}))
}
