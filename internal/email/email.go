package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/logger"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender delivers notifications over SMTP.
type Sender struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
}

func NewSender(cfg config.SMTPConfig) *Sender {
	s := &Sender{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

func (s *Sender) Send(ctx context.Context, n domain.Notification) error {
	if n.To == "" {
		return errors.New("notification has no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := buildMessage(s.from, n)
	if err != nil {
		return err
	}
	if err := s.send(s.addr, s.auth, s.from, []string{n.To}, msg); err != nil {
		return fmt.Errorf("failed to send %s email to %s: %w", n.Kind, n.To, err)
	}

	logger.WithContext(ctx).Info("email sent", "kind", n.Kind, "to", n.To, "booking_id", n.BookingID)
	return nil
}

// Notify lets the sender act as the service's notification gateway directly.
func (s *Sender) Notify(ctx context.Context, n domain.Notification) error {
	return s.Send(ctx, n)
}

// LogSender only logs notifications. Used when no SMTP server is configured.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (LogSender) Notify(ctx context.Context, n domain.Notification) error {
	logger.WithContext(ctx).Info("notification",
		"kind", n.Kind,
		"to", n.To,
		"booking_id", n.BookingID,
		"subject", n.Subject,
		"attachments", len(n.Attachments),
	)
	return nil
}

func buildMessage(from string, n domain.Notification) ([]byte, error) {
	var buf bytes.Buffer
	related := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", n.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", n.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/related; boundary=%q\r\n\r\n", related.Boundary())

	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	if err := writePart(altWriter, "text/plain; charset=utf-8", n.Text); err != nil {
		return nil, err
	}
	if err := writePart(altWriter, "text/html; charset=utf-8", n.HTML); err != nil {
		return nil, err
	}
	if err := altWriter.Close(); err != nil {
		return nil, err
	}

	body, err := related.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	for _, a := range n.Attachments {
		header := textproto.MIMEHeader{
			"Content-Type":              {a.ContentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("inline; filename=%q", a.Filename)},
		}
		if a.ContentID != "" {
			header.Set("Content-ID", "<"+a.ContentID+">")
		}
		part, err := related.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write([]byte(wrap(base64.StdEncoding.EncodeToString(a.Content), 76))); err != nil {
			return nil, err
		}
	}

	if err := related.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(w *multipart.Writer, contentType, content string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return err
	}
	_, err = part.Write([]byte(content))
	return err
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
