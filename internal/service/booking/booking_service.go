package booking

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/email"
	"github.com/Domenick1991/eventbooking/internal/kafka"
	"github.com/Domenick1991/eventbooking/internal/logger"
	"github.com/Domenick1991/eventbooking/internal/metrics"
	"github.com/Domenick1991/eventbooking/internal/repository"
	"github.com/google/uuid"
)

type BookingUseCase interface {
	InitiateBooking(ctx context.Context, who domain.Identity, eventID string, tickets int) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, who domain.Identity, bookingID, code string) (*Outcome, error)
	InitiateCancellation(ctx context.Context, who domain.Identity, bookingID string) (*domain.Booking, error)
	ConfirmCancellation(ctx context.Context, who domain.Identity, bookingID, code string) (*Outcome, error)
	VerifyOTP(ctx context.Context, who domain.Identity, action domain.OTPAction, bookingID, code string) (*Outcome, error)
	ResendOTP(ctx context.Context, who domain.Identity, bookingID string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, who domain.Identity, bookingID string) (*Outcome, error)
	ListMyBookings(ctx context.Context, who domain.Identity) ([]domain.Booking, error)
	ListEventBookings(ctx context.Context, who domain.Identity, eventID string) ([]domain.Booking, error)
	ListAttendees(ctx context.Context, who domain.Identity, eventID string) (*AttendeeList, error)
	ScanTicket(ctx context.Context, who domain.Identity, eventID, ticketRef string) (*domain.Admission, error)
	CancelEvent(ctx context.Context, who domain.Identity, eventID string) (*EventCancellation, error)
	SendReminder(ctx context.Context, who domain.Identity, eventID string) (*ReminderReport, error)
	ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error)
}

type OTPStore interface {
	Issue(ctx context.Context, userID string, action domain.OTPAction, bookingID string) (*domain.OTPRecord, error)
	Verify(ctx context.Context, userID, code string) (*domain.OTPRecord, error)
	Revoke(ctx context.Context, userID string, action domain.OTPAction, bookingID string) error
	TTL() time.Duration
}

type TicketIssuer interface {
	Mint(bookingID, eventID string, count int) ([]domain.Ticket, error)
	Resolve(ref string) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type EventCache interface {
	InvalidateEvent(ctx context.Context, id string) error
}

// Outcome is a committed transition together with the event capacity seen
// right after it. Event is nil when it could not be re-read.
type Outcome struct {
	Booking *domain.Booking
	Event   *domain.Event
}

type Attendee struct {
	BookingID        string              `json:"booking_id"`
	UserID           string              `json:"user_id"`
	Email            string              `json:"email"`
	TicketID         string              `json:"unique_ticket_id"`
	TicketStatus     domain.TicketStatus `json:"ticket_status"`
	BookedAt         time.Time           `json:"booking_date"`
	TotalPriceCents  int64               `json:"total_price_cents"`
	TicketsInBooking int                 `json:"number_of_tickets_in_booking"`
}

type AttendeeList struct {
	EventID   string     `json:"event_id"`
	EventName string     `json:"event_name"`
	Total     int        `json:"total_attendees"`
	Attendees []Attendee `json:"attendees"`
}

// EventCancellation is what cancelling an event did to its bookings. Failed
// bookings are retried by cancelling the event again.
type EventCancellation struct {
	Event         *domain.Event `json:"-"`
	EventID       string        `json:"event_id"`
	Cancelled     []string      `json:"cancelled_booking_ids"`
	Withdrawn     []string      `json:"withdrawn_booking_ids"`
	Failed        []string      `json:"failed_booking_ids,omitempty"`
	SeatsReleased int           `json:"seats_released"`
}

type ReminderReport struct {
	EventID    string `json:"event_id"`
	Recipients int    `json:"recipients"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

type BookingService struct {
	bookings   repository.BookingRepository
	events     repository.EventRepository
	otps       OTPStore
	issuer     TicketIssuer
	notifier   Notifier
	producer   Producer
	topic      string
	cache      EventCache
	metrics    *metrics.Metrics
	pendingTTL time.Duration
	now        func() time.Time
	newID      func() string
}

type BookingServiceOption func(*BookingService)

func WithNotifier(n Notifier) BookingServiceOption {
	return func(s *BookingService) {
		s.notifier = n
	}
}

func WithProducer(p Producer, topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = p
		s.topic = topic
	}
}

func WithEventCache(c EventCache) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = c
	}
}

func WithMetrics(m *metrics.Metrics) BookingServiceOption {
	return func(s *BookingService) {
		s.metrics = m
	}
}

func WithPendingTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithIDSource(fn func() string) BookingServiceOption {
	return func(s *BookingService) {
		s.newID = fn
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	events repository.EventRepository,
	otps OTPStore,
	issuer TicketIssuer,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:   bookings,
		events:     events,
		otps:       otps,
		issuer:     issuer,
		pendingTTL: 30 * time.Minute,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) InitiateBooking(ctx context.Context, who domain.Identity, eventID string, tickets int) (*domain.Booking, error) {
	if !who.IsAttendee() {
		return nil, domain.Unauthorizedf("only attendees can book tickets")
	}
	if eventID == "" {
		return nil, domain.Validationf("event id is required")
	}
	if tickets < 1 {
		return nil, domain.Validationf("number of tickets must be at least 1")
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Cancelled() {
		return nil, domain.InvalidStatef("event %s has been cancelled", event.ID)
	}
	// Advisory only. Capacity is taken at confirmation.
	if event.AvailableCapacity < tickets {
		s.metrics.CapacityRejected("initiate")
		return nil, domain.CapacityExceeded(event.AvailableCapacity, tickets)
	}

	booking := &domain.Booking{
		ID:              s.newID(),
		UserID:          who.UserID,
		UserEmail:       who.Email,
		EventID:         event.ID,
		NumberOfTickets: tickets,
		TotalPriceCents: event.PriceCents * int64(tickets),
	}
	if err := s.bookings.CreatePending(ctx, booking); err != nil {
		return nil, err
	}
	s.metrics.Initiated()
	s.publish(ctx, kafka.EventBookingInitiated, booking)

	rec, err := s.otps.Issue(ctx, who.UserID, domain.OTPActionConfirmBooking, booking.ID)
	if err != nil {
		s.withdrawUnconfirmable(ctx, booking)
		return nil, err
	}
	s.sendOTP(ctx, who.Email, rec, event)

	logger.WithContext(ctx).Info("booking initiated", "booking_id", booking.ID, "event_id", event.ID, "tickets", tickets)
	return booking, nil
}

func (s *BookingService) ConfirmBooking(ctx context.Context, who domain.Identity, bookingID, code string) (*Outcome, error) {
	current, err := s.ownedBooking(ctx, who, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusPending {
		return nil, domain.InvalidStatef("booking is %s and cannot be confirmed", current.Status)
	}
	if err := s.consumeOTP(ctx, who, domain.OTPActionConfirmBooking, bookingID, code); err != nil {
		return nil, err
	}

	tickets, err := s.issuer.Mint(current.ID, current.EventID, current.NumberOfTickets)
	if err != nil {
		return nil, err
	}
	confirmed, err := s.bookings.Confirm(ctx, current.ID, tickets)
	if err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			s.metrics.CapacityRejected("confirm")
		}
		return nil, err
	}
	s.metrics.Confirmed(len(confirmed.Tickets))

	event := s.afterCommit(ctx, kafka.EventBookingConfirmed, confirmed)
	s.notify(ctx, domain.NotificationBookingConfirmed, func() (domain.Notification, error) {
		return email.ConfirmationNotification(confirmed, event)
	})

	logger.WithContext(ctx).Info("booking confirmed", "booking_id", confirmed.ID, "tickets", len(confirmed.Tickets))
	return &Outcome{Booking: confirmed, Event: event}, nil
}

// InitiateCancellation issues a confirm_cancel OTP. Only confirmed bookings
// hold capacity; pending ones are withdrawn with CancelBooking.
func (s *BookingService) InitiateCancellation(ctx context.Context, who domain.Identity, bookingID string) (*domain.Booking, error) {
	current, err := s.ownedBooking(ctx, who, bookingID)
	if err != nil {
		return nil, err
	}
	if err := cancellable(current); err != nil {
		return nil, err
	}

	rec, err := s.otps.Issue(ctx, who.UserID, domain.OTPActionConfirmCancel, current.ID)
	if err != nil {
		return nil, err
	}
	s.sendOTP(ctx, who.Email, rec, s.eventSnapshot(ctx, current.EventID))
	return current, nil
}

func (s *BookingService) ConfirmCancellation(ctx context.Context, who domain.Identity, bookingID, code string) (*Outcome, error) {
	current, err := s.ownedBooking(ctx, who, bookingID)
	if err != nil {
		return nil, err
	}
	if err := cancellable(current); err != nil {
		return nil, err
	}
	if err := s.consumeOTP(ctx, who, domain.OTPActionConfirmCancel, bookingID, code); err != nil {
		return nil, err
	}

	cancelled, err := s.bookings.Cancel(ctx, current.ID, domain.BookingStatusConfirmed, domain.CancelReasonUser)
	if err != nil {
		return nil, err
	}
	s.metrics.Cancelled(domain.CancelReasonUser)

	event := s.afterCommit(ctx, kafka.EventBookingCancelled, cancelled)
	s.notify(ctx, domain.NotificationBookingCancelled, func() (domain.Notification, error) {
		return email.CancellationNotification(cancelled, event)
	})

	logger.WithContext(ctx).Info("booking cancelled", "booking_id", cancelled.ID, "released", cancelled.NumberOfTickets)
	return &Outcome{Booking: cancelled, Event: event}, nil
}

func (s *BookingService) VerifyOTP(ctx context.Context, who domain.Identity, action domain.OTPAction, bookingID, code string) (*Outcome, error) {
	switch action {
	case domain.OTPActionConfirmBooking:
		return s.ConfirmBooking(ctx, who, bookingID, code)
	case domain.OTPActionConfirmCancel:
		return s.ConfirmCancellation(ctx, who, bookingID, code)
	default:
		return nil, domain.Validationf("invalid action type %q", action)
	}
}

// ResendOTP supersedes the live code of the booking's next step.
func (s *BookingService) ResendOTP(ctx context.Context, who domain.Identity, bookingID string) (*domain.Booking, error) {
	current, err := s.ownedBooking(ctx, who, bookingID)
	if err != nil {
		return nil, err
	}

	var action domain.OTPAction
	switch current.Status {
	case domain.BookingStatusPending:
		action = domain.OTPActionConfirmBooking
		// A code must not outlive the booking it confirms.
		lapsesAt := current.CreatedAt.Add(s.pendingTTL)
		if s.now().Add(s.otps.TTL()).After(lapsesAt) {
			return nil, domain.InvalidStatef("booking %s lapses at %s, too late for a new code: start a new booking",
				current.ID, lapsesAt.UTC().Format(time.RFC3339))
		}
	case domain.BookingStatusConfirmed:
		action = domain.OTPActionConfirmCancel
	default:
		return nil, domain.InvalidStatef("booking is %s, there is nothing to confirm", current.Status)
	}

	rec, err := s.otps.Issue(ctx, who.UserID, action, current.ID)
	if err != nil {
		return nil, err
	}
	s.sendOTP(ctx, who.Email, rec, s.eventSnapshot(ctx, current.EventID))
	return current, nil
}

// CancelBooking withdraws a booking that is still pending confirmation.
// Confirmed bookings are only cancelled through the OTP flow.
func (s *BookingService) CancelBooking(ctx context.Context, who domain.Identity, bookingID string) (*Outcome, error) {
	current, err := s.ownedBooking(ctx, who, bookingID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.BookingStatusPending:
	case domain.BookingStatusConfirmed:
		return nil, domain.InvalidStatef("confirmed bookings are cancelled with an OTP, use initiate-cancellation")
	default:
		return nil, domain.InvalidStatef("booking is already cancelled")
	}

	withdrawn, err := s.bookings.Cancel(ctx, current.ID, domain.BookingStatusPending, domain.CancelReasonWithdrawn)
	if err != nil {
		return nil, err
	}
	s.metrics.Cancelled(domain.CancelReasonWithdrawn)
	if err := s.otps.Revoke(ctx, withdrawn.UserID, domain.OTPActionConfirmBooking, withdrawn.ID); err != nil {
		logger.WithContext(ctx).Warn("failed to revoke otp of withdrawn booking", "booking_id", withdrawn.ID, "error", err)
	}

	event := s.afterCommit(ctx, kafka.EventBookingCancelled, withdrawn)
	s.notify(ctx, domain.NotificationBookingWithdrawn, func() (domain.Notification, error) {
		return email.CancellationNotification(withdrawn, event)
	})
	return &Outcome{Booking: withdrawn, Event: event}, nil
}

func (s *BookingService) ListMyBookings(ctx context.Context, who domain.Identity) ([]domain.Booking, error) {
	if !who.IsAttendee() {
		return nil, domain.Unauthorizedf("only attendees have bookings")
	}
	return s.bookings.ListByUser(ctx, who.UserID)
}

func (s *BookingService) ListEventBookings(ctx context.Context, who domain.Identity, eventID string) ([]domain.Booking, error) {
	if _, err := s.ownedEvent(ctx, who, eventID, "view bookings for"); err != nil {
		return nil, err
	}
	return s.bookings.ListByEvent(ctx, eventID, domain.BookingStatusConfirmed)
}

// ListAttendees returns one row per admissible ticket of the event.
func (s *BookingService) ListAttendees(ctx context.Context, who domain.Identity, eventID string) (*AttendeeList, error) {
	event, err := s.ownedEvent(ctx, who, eventID, "view attendees for")
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListByEvent(ctx, eventID, domain.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}

	list := &AttendeeList{EventID: event.ID, EventName: event.Name, Attendees: make([]Attendee, 0)}
	for _, b := range bookings {
		for _, t := range b.AdmissibleTickets() {
			list.Attendees = append(list.Attendees, Attendee{
				BookingID:        b.ID,
				UserID:           b.UserID,
				Email:            b.UserEmail,
				TicketID:         t.UniqueID,
				TicketStatus:     t.Status,
				BookedAt:         b.CreatedAt,
				TotalPriceCents:  b.TotalPriceCents,
				TicketsInBooking: b.NumberOfTickets,
			})
		}
	}
	list.Total = len(list.Attendees)
	return list, nil
}

// ScanTicket admits a ticket at the door. ticketRef is a ticket id or the
// payload read from its QR code.
func (s *BookingService) ScanTicket(ctx context.Context, who domain.Identity, eventID, ticketRef string) (*domain.Admission, error) {
	if _, err := s.ownedEvent(ctx, who, eventID, "scan tickets for"); err != nil {
		return nil, err
	}
	if ticketRef == "" {
		return nil, domain.Validationf("ticket id is required")
	}
	ticketID, err := s.issuer.Resolve(ticketRef)
	if err != nil {
		s.metrics.Scanned("malformed")
		return nil, err
	}

	admission, err := s.bookings.ScanTicket(ctx, eventID, ticketID, s.now())
	if err != nil {
		s.metrics.Scanned(scanOutcome(err))
		return nil, err
	}
	s.metrics.Scanned("admitted")
	s.publishEvent(ctx, admission.BookingID, kafka.BookingEvent{
		Type:       kafka.EventTicketScanned,
		BookingID:  admission.BookingID,
		EventID:    admission.EventID,
		UserID:     admission.UserID,
		Email:      admission.UserEmail,
		Status:     string(admission.Ticket.Status),
		TicketIDs:  []string{admission.Ticket.UniqueID},
		OccurredAt: s.now(),
	})

	logger.WithContext(ctx).Info("ticket scanned", "ticket_id", ticketID, "event_id", eventID)
	return admission, nil
}

// CancelEvent cancels the event and every booking still open on it.
// Confirmed bookings release their seats and tickets, pending ones are
// withdrawn, and each attendee is told. The event takes no new reservations
// once it is marked, so calling it again only retries failed bookings.
func (s *BookingService) CancelEvent(ctx context.Context, who domain.Identity, eventID string) (*EventCancellation, error) {
	if _, err := s.ownedEvent(ctx, who, eventID, "cancel"); err != nil {
		return nil, err
	}
	event, err := s.events.MarkCancelled(ctx, eventID, s.now())
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListByEvent(ctx, eventID, domain.BookingStatusConfirmed, domain.BookingStatusPending)
	if err != nil {
		return nil, err
	}

	report := &EventCancellation{EventID: eventID, Cancelled: make([]string, 0), Withdrawn: make([]string, 0)}
	for _, b := range bookings {
		cancelled, from, err := s.cancelForEvent(ctx, b)
		if err != nil {
			logger.WithContext(ctx).Error("failed to cancel booking of cancelled event", "booking_id", b.ID, "event_id", eventID, "error", err)
			report.Failed = append(report.Failed, b.ID)
			continue
		}
		if cancelled == nil {
			continue
		}

		s.metrics.Cancelled(domain.CancelReasonEventCancelled)
		s.publish(ctx, kafka.EventBookingCancelled, cancelled)
		if from == domain.BookingStatusPending {
			report.Withdrawn = append(report.Withdrawn, cancelled.ID)
			if err := s.otps.Revoke(ctx, cancelled.UserID, domain.OTPActionConfirmBooking, cancelled.ID); err != nil {
				logger.WithContext(ctx).Warn("failed to revoke otp of withdrawn booking", "booking_id", cancelled.ID, "error", err)
			}
		} else {
			report.Cancelled = append(report.Cancelled, cancelled.ID)
			report.SeatsReleased += cancelled.NumberOfTickets
		}
		s.notify(ctx, domain.NotificationEventCancelled, func() (domain.Notification, error) {
			return email.CancellationNotification(cancelled, event)
		})
	}

	s.invalidate(ctx, eventID)
	report.Event = event
	if fresh := s.eventSnapshot(ctx, eventID); fresh != nil {
		report.Event = fresh
	}

	logger.WithContext(ctx).Info("event cancelled", "event_id", eventID,
		"cancelled", len(report.Cancelled), "withdrawn", len(report.Withdrawn), "failed", len(report.Failed))
	return report, nil
}

// cancelForEvent cancels b from the status it was listed in. A booking that
// moved on since the listing is cancelled from its new status; a nil booking
// means it was already cancelled.
func (s *BookingService) cancelForEvent(ctx context.Context, b domain.Booking) (*domain.Booking, domain.BookingStatus, error) {
	cancelled, err := s.bookings.Cancel(ctx, b.ID, b.Status, domain.CancelReasonEventCancelled)
	if !errors.Is(err, domain.ErrInvalidState) {
		return cancelled, b.Status, err
	}

	current, getErr := s.bookings.GetByID(ctx, b.ID)
	if getErr != nil {
		return nil, b.Status, getErr
	}
	switch current.Status {
	case domain.BookingStatusCancelled:
		return nil, current.Status, nil
	case b.Status:
		return nil, b.Status, err
	}
	cancelled, err = s.bookings.Cancel(ctx, b.ID, current.Status, domain.CancelReasonEventCancelled)
	return cancelled, current.Status, err
}

// SendReminder emails every confirmed attendee of the event. A report with no
// recipients means there was nobody to remind.
func (s *BookingService) SendReminder(ctx context.Context, who domain.Identity, eventID string) (*ReminderReport, error) {
	event, err := s.ownedEvent(ctx, who, eventID, "send reminders for")
	if err != nil {
		return nil, err
	}
	if event.Cancelled() {
		return nil, domain.InvalidStatef("event %s has been cancelled", eventID)
	}
	bookings, err := s.bookings.ListByEvent(ctx, eventID, domain.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}

	report := &ReminderReport{EventID: eventID, Recipients: len(bookings)}
	for i := range bookings {
		b := &bookings[i]
		err := s.notify(ctx, domain.NotificationEventReminder, func() (domain.Notification, error) {
			return email.ReminderNotification(b, event)
		})
		if err != nil {
			report.Failed++
			continue
		}
		report.Sent++
	}

	logger.WithContext(ctx).Info("event reminders sent", "event_id", eventID, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

// ExpirePendingBookings lapses bookings left in pending_confirmation longer
// than the pending TTL. They never held capacity, so nothing is released.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	deadline := s.now().Add(-s.pendingTTL)
	lapsed, err := s.bookings.LapsePendingBefore(ctx, deadline)
	if err != nil {
		return nil, err
	}

	for i := range lapsed {
		b := &lapsed[i]
		s.metrics.Cancelled(domain.CancelReasonLapsed)
		if err := s.otps.Revoke(ctx, b.UserID, domain.OTPActionConfirmBooking, b.ID); err != nil {
			logger.WithContext(ctx).Warn("failed to revoke otp of lapsed booking", "booking_id", b.ID, "error", err)
		}
		s.publish(ctx, kafka.EventBookingCancelled, b)
		s.notify(ctx, domain.NotificationBookingLapsed, func() (domain.Notification, error) {
			return email.CancellationNotification(b, s.eventSnapshot(ctx, b.EventID))
		})
	}
	if len(lapsed) > 0 {
		logger.WithContext(ctx).Info("pending bookings lapsed", "count", len(lapsed), "deadline", deadline)
	}
	return lapsed, nil
}

func (s *BookingService) ownedBooking(ctx context.Context, who domain.Identity, bookingID string) (*domain.Booking, error) {
	if !who.IsAttendee() {
		return nil, domain.Unauthorizedf("only attendees can manage bookings")
	}
	if bookingID == "" {
		return nil, domain.Validationf("booking id is required")
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(who.UserID) {
		return nil, domain.Unauthorizedf("booking %s does not belong to you", bookingID)
	}
	return b, nil
}

// withdrawUnconfirmable withdraws a booking whose confirmation code could not
// be issued, so it does not sit pending until the reaper finds it.
func (s *BookingService) withdrawUnconfirmable(ctx context.Context, b *domain.Booking) {
	withdrawn, err := s.bookings.Cancel(ctx, b.ID, domain.BookingStatusPending, domain.CancelReasonWithdrawn)
	if err != nil {
		logger.WithContext(ctx).Error("failed to withdraw booking without otp", "booking_id", b.ID, "error", err)
		return
	}
	s.metrics.Cancelled(domain.CancelReasonWithdrawn)
	s.publish(ctx, kafka.EventBookingCancelled, withdrawn)
}

func (s *BookingService) ownedEvent(ctx context.Context, who domain.Identity, eventID, what string) (*domain.Event, error) {
	if !who.IsOrganizer() {
		return nil, domain.Unauthorizedf("only organizers can %s events", what)
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != who.UserID {
		return nil, domain.Unauthorizedf("not authorized to %s this event", what)
	}
	return event, nil
}

func cancellable(b *domain.Booking) error {
	switch b.Status {
	case domain.BookingStatusConfirmed:
		return nil
	case domain.BookingStatusPending:
		return domain.InvalidStatef("booking is still pending confirmation, withdraw it instead")
	default:
		return domain.InvalidStatef("booking is already cancelled")
	}
}

// consumeOTP verifies code and checks it was issued for this exact step.
// The code is spent whatever happens next.
func (s *BookingService) consumeOTP(ctx context.Context, who domain.Identity, action domain.OTPAction, bookingID, code string) error {
	if code == "" {
		return domain.Validationf("otp is required")
	}
	rec, err := s.otps.Verify(ctx, who.UserID, code)
	if err != nil {
		s.metrics.OTPVerified(otpOutcome(err))
		return err
	}
	if rec.Action != action || rec.BookingID != bookingID {
		s.metrics.OTPVerified("mismatched")
		return domain.MismatchedOTP()
	}
	s.metrics.OTPVerified("ok")
	return nil
}

// afterCommit runs the side effects of a committed transition. Failures are
// logged and never undo the transition.
func (s *BookingService) afterCommit(ctx context.Context, eventType string, b *domain.Booking) *domain.Event {
	s.invalidate(ctx, b.EventID)
	s.publish(ctx, eventType, b)
	return s.eventSnapshot(ctx, b.EventID)
}

func (s *BookingService) invalidate(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
		logger.WithContext(ctx).Warn("failed to invalidate event cache", "event_id", eventID, "error", err)
	}
}

func (s *BookingService) eventSnapshot(ctx context.Context, eventID string) *domain.Event {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		logger.WithContext(ctx).Warn("failed to reload event", "event_id", eventID, "error", err)
		return nil
	}
	return event
}

func (s *BookingService) sendOTP(ctx context.Context, to string, rec *domain.OTPRecord, event *domain.Event) {
	s.notify(ctx, domain.NotificationOTP, func() (domain.Notification, error) {
		return email.OTPNotification(to, rec, event, s.otps.TTL())
	})
}

// notify hands a notification to the gateway. Failures are counted and
// logged; callers that only inform the user ignore the returned error.
func (s *BookingService) notify(ctx context.Context, kind domain.NotificationKind, compose func() (domain.Notification, error)) error {
	if s.notifier == nil {
		return nil
	}
	n, err := compose()
	if err == nil {
		err = s.notifier.Notify(ctx, n)
	}
	if err != nil {
		s.metrics.NotificationFailed(string(kind))
		logger.WithContext(ctx).Error("failed to send notification", "kind", kind, "error", err)
	}
	return err
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) {
	s.publishEvent(ctx, b.ID, kafka.NewBookingEvent(eventType, b, s.now()))
}

func (s *BookingService) publishEvent(ctx context.Context, key string, event kafka.BookingEvent) {
	if s.producer == nil || s.topic == "" {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, key, event); err != nil {
		logger.WithContext(ctx).Warn("failed to publish booking event", "type", event.Type, "booking_id", key, "error", err)
	}
}

func otpOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrExpiredOTP):
		return "expired"
	case errors.Is(err, domain.ErrOTPAttemptsExceeded):
		return "locked"
	case errors.Is(err, domain.ErrInvalidOTP):
		return "invalid"
	default:
		return "error"
	}
}

func scanOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyScanned):
		return "already_scanned"
	case errors.Is(err, domain.ErrTicketCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

var _ BookingUseCase = (*BookingService)(nil)
