package domain

type NotificationKind string

const (
	NotificationOTP              NotificationKind = "otp"
	NotificationBookingConfirmed NotificationKind = "booking_confirmed"
	NotificationBookingCancelled NotificationKind = "booking_cancelled"
	NotificationBookingLapsed    NotificationKind = "booking_lapsed"
	NotificationBookingWithdrawn NotificationKind = "booking_withdrawn"
	NotificationEventCancelled   NotificationKind = "event_cancelled"
	NotificationEventReminder    NotificationKind = "event_reminder"
)

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	ContentID   string `json:"content_id,omitempty"`
	Content     []byte `json:"content"`
}

// Notification is the message handed to the notification gateway.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	BookingID   string           `json:"booking_id,omitempty"`
	To          string           `json:"to"`
	Subject     string           `json:"subject"`
	Text        string           `json:"text"`
	HTML        string           `json:"html"`
	Attachments []Attachment     `json:"attachments,omitempty"`
}
