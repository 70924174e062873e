package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	EventBookingInitiated = "booking_initiated"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventTicketScanned    = "ticket_scanned"
)

type BookingEvent struct {
	Type            string    `json:"type"`
	BookingID       string    `json:"booking_id"`
	EventID         string    `json:"event_id"`
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	Status          string    `json:"status"`
	NumberOfTickets int       `json:"number_of_tickets"`
	TicketIDs       []string  `json:"ticket_ids,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b *domain.Booking, at time.Time) BookingEvent {
	ev := BookingEvent{
		Type:            eventType,
		BookingID:       b.ID,
		EventID:         b.EventID,
		UserID:          b.UserID,
		Email:           b.UserEmail,
		Status:          string(b.Status),
		NumberOfTickets: b.NumberOfTickets,
		Reason:          b.CancelReason,
		OccurredAt:      at,
	}
	for _, t := range b.Tickets {
		ev.TicketIDs = append(ev.TicketIDs, t.UniqueID)
	}
	return ev
}

// NotificationPublisher hands notifications to the worker through Kafka.
type NotificationPublisher struct {
	producer *Producer
	topic    string
	retries  int
}

func NewNotificationPublisher(producer *Producer, topic string) *NotificationPublisher {
	return &NotificationPublisher{producer: producer, topic: topic, retries: 3}
}

func (n *NotificationPublisher) Notify(ctx context.Context, msg domain.Notification) error {
	key := msg.BookingID
	if key == "" {
		key = msg.To
	}
	return n.producer.PublishWithRetry(ctx, n.topic, key, msg, n.retries)
}

func DecodeNotification(msg kafka.Message) (domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return domain.Notification{}, fmt.Errorf("decode notification at offset %d: %w", msg.Offset, err)
	}
	if n.To == "" {
		return domain.Notification{}, fmt.Errorf("notification at offset %d has no recipient", msg.Offset)
	}
	return n, nil
}
