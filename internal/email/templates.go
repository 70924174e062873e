package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
)

const brand = "Elite Events"

var layout = template.Must(template.New("layout").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px;">
<h2 style="color: #333;">{{.Heading}}</h2>
{{range .Paragraphs}}<p style="font-size: 15px; color: #555;">{{.}}</p>
{{end}}{{if .Code}}<div style="font-size: 32px; font-weight: bold; letter-spacing: 6px; background-color: #f0f0f0; padding: 10px; display: inline-block; border-radius: 8px;">{{.Code}}</div>
{{end}}{{range .Tickets}}<div style="border: 1px dashed #999; border-radius: 8px; padding: 10px; margin: 10px 0;">
<p style="font-size: 14px; color: #333;">Ticket {{.ID}}</p>
<img src="cid:{{.ContentID}}" alt="QR code for ticket {{.ID}}" width="200" height="200">
</div>
{{end}}<p style="font-size: 12px; color: #aaa;">{{.Footer}}</p>
</div>`))

type ticketView struct {
	ID        string
	ContentID string
}

type page struct {
	Heading    string
	Paragraphs []string
	Code       string
	Tickets    []ticketView
	Footer     string
}

func render(p page) (string, error) {
	if p.Footer == "" {
		p.Footer = brand + ". This is an automated message, please do not reply."
	}
	var buf bytes.Buffer
	if err := layout.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

func plain(p page) string {
	var b strings.Builder
	b.WriteString(p.Heading)
	b.WriteString("\n\n")
	for _, para := range p.Paragraphs {
		b.WriteString(para)
		b.WriteString("\n")
	}
	if p.Code != "" {
		fmt.Fprintf(&b, "\nCode: %s\n", p.Code)
	}
	for _, t := range p.Tickets {
		fmt.Fprintf(&b, "Ticket: %s\n", t.ID)
	}
	return b.String()
}

func compose(kind domain.NotificationKind, to, bookingID, subject string, p page, attachments []domain.Attachment) (domain.Notification, error) {
	html, err := render(p)
	if err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		Kind:        kind,
		BookingID:   bookingID,
		To:          to,
		Subject:     subject,
		Text:        plain(p),
		HTML:        html,
		Attachments: attachments,
	}, nil
}

// OTPNotification asks the user to confirm an action with code.
func OTPNotification(to string, rec *domain.OTPRecord, event *domain.Event, ttl time.Duration) (domain.Notification, error) {
	subject := brand + ": Your verification code"
	what := "complete your request"
	switch rec.Action {
	case domain.OTPActionConfirmBooking:
		subject = brand + ": Confirm Your Event Booking - OTP"
		what = "confirm your booking"
	case domain.OTPActionConfirmCancel:
		subject = brand + ": Confirm Your Booking Cancellation - OTP"
		what = "confirm the cancellation of your booking"
	}
	if event != nil {
		what += " for " + event.Name
	}

	p := page{
		Heading: "Your one-time password",
		Paragraphs: []string{
			"Use the code below to " + what + ".",
			fmt.Sprintf("The code expires in %d minutes. Do not share it with anyone.", int(ttl.Minutes())),
		},
		Code: rec.Code,
	}
	return compose(domain.NotificationOTP, to, rec.BookingID, subject, p, nil)
}

// ConfirmationNotification delivers the tickets, one inline QR image each.
func ConfirmationNotification(b *domain.Booking, event *domain.Event) (domain.Notification, error) {
	p := page{
		Heading: "Your booking is confirmed",
		Paragraphs: []string{
			fmt.Sprintf("You have %d ticket(s) for %s.", b.NumberOfTickets, eventName(event)),
			"Show the QR code of each ticket at the entrance.",
		},
	}
	if event != nil {
		p.Paragraphs = append(p.Paragraphs, fmt.Sprintf("%s, %s.", event.Location, event.StartsAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST")))
	}

	attachments := make([]domain.Attachment, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		png, err := decodeDataURL(t.QRCodeDataURL)
		if err != nil {
			return domain.Notification{}, fmt.Errorf("ticket %s: %w", t.UniqueID, err)
		}
		cid := "ticket-" + t.UniqueID
		p.Tickets = append(p.Tickets, ticketView{ID: t.UniqueID, ContentID: cid})
		attachments = append(attachments, domain.Attachment{
			Filename:    "ticket-" + t.UniqueID + ".png",
			ContentType: "image/png",
			ContentID:   cid,
			Content:     png,
		})
	}
	return compose(domain.NotificationBookingConfirmed, b.UserEmail, b.ID, brand+": Booking Confirmed - Your Tickets", p, attachments)
}

// CancellationNotification tells the user how their booking ended.
func CancellationNotification(b *domain.Booking, event *domain.Event) (domain.Notification, error) {
	kind := domain.NotificationBookingCancelled
	subject := brand + ": Booking Cancellation Confirmed"
	p := page{Heading: "Your booking has been cancelled"}

	switch b.CancelReason {
	case domain.CancelReasonLapsed:
		kind = domain.NotificationBookingLapsed
		subject = brand + ": Booking Expired"
		p.Heading = "Your booking has expired"
		p.Paragraphs = append(p.Paragraphs, fmt.Sprintf("Booking %s for %s was not confirmed in time and has been released.", b.ID, eventName(event)))
	case domain.CancelReasonWithdrawn:
		kind = domain.NotificationBookingWithdrawn
		subject = brand + ": Booking Withdrawn"
		p.Heading = "Your booking has been withdrawn"
		p.Paragraphs = append(p.Paragraphs, fmt.Sprintf("Booking %s for %s was withdrawn before confirmation.", b.ID, eventName(event)))
	case domain.CancelReasonEventCancelled:
		kind = domain.NotificationEventCancelled
		subject = brand + ": Event Cancellation - " + eventName(event)
		p.Heading = "Your event has been cancelled"
		p.Paragraphs = append(p.Paragraphs,
			fmt.Sprintf("We regret to inform you that %s has been cancelled by the organizer.", eventName(event)),
			fmt.Sprintf("Your booking %s for %d ticket(s) has been cancelled automatically.", b.ID, b.NumberOfTickets),
			"We apologize for any inconvenience this may cause.",
		)
	default:
		p.Paragraphs = append(p.Paragraphs,
			fmt.Sprintf("Booking %s for %s has been cancelled.", b.ID, eventName(event)),
			fmt.Sprintf("%d ticket(s) are no longer valid for entry.", len(b.Tickets)),
		)
	}
	return compose(kind, b.UserEmail, b.ID, subject, p, nil)
}

// ReminderNotification reminds a confirmed attendee of the upcoming event.
func ReminderNotification(b *domain.Booking, event *domain.Event) (domain.Notification, error) {
	p := page{
		Heading: "See you soon",
		Paragraphs: []string{
			"Just a friendly reminder about the upcoming event you have booked: " + eventName(event) + ".",
		},
	}
	if event != nil {
		when := event.StartsAt.UTC().Format("Monday, January 2, 2006 15:04 MST")
		if !event.EndsAt.IsZero() {
			when += " - " + event.EndsAt.UTC().Format("15:04 MST")
		}
		p.Paragraphs = append(p.Paragraphs, "Date: "+when+".")
		if event.Location != "" {
			p.Paragraphs = append(p.Paragraphs, "Location: "+event.Location+".")
		}
	}
	p.Paragraphs = append(p.Paragraphs,
		fmt.Sprintf("You hold %d ticket(s) under booking %s. Bring the QR codes from your confirmation email.", b.NumberOfTickets, b.ID),
		"We look forward to seeing you there!",
	)
	return compose(domain.NotificationEventReminder, b.UserEmail, b.ID, brand+": Reminder - "+eventName(event)+" is Coming Soon!", p, nil)
}

func eventName(event *domain.Event) string {
	if event == nil || event.Name == "" {
		return "your event"
	}
	return event.Name
}

func decodeDataURL(url string) ([]byte, error) {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		return nil, fmt.Errorf("qr code is not a png data url")
	}
	png, err := base64.StdEncoding.DecodeString(url[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("decode qr code: %w", err)
	}
	return png, nil
}
