package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/service/booking"
	"github.com/Domenick1991/eventbooking/internal/service/events"
	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	events   events.EventUseCase
	bookings booking.BookingUseCase
}

type capacityRequest struct {
	TotalCapacity int `json:"total_capacity" binding:"required"`
}

type scanTicketRequest struct {
	UniqueTicketID string `json:"unique_ticket_id"`
	Payload        string `json:"payload"`
}

type eventResponse struct {
	ID                string     `json:"id"`
	OrganizerID       string     `json:"organizer_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Location          string     `json:"location,omitempty"`
	Category          string     `json:"category,omitempty"`
	StartsAt          time.Time  `json:"starts_at"`
	EndsAt            time.Time  `json:"ends_at"`
	PriceCents        int64      `json:"price_cents"`
	TotalCapacity     int        `json:"total_capacity"`
	AvailableCapacity int        `json:"available_capacity"`
	BookedCapacity    int        `json:"booked_capacity"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
}

type eventCancellationResponse struct {
	Event               eventResponse `json:"event"`
	CancelledBookingIDs []string      `json:"cancelled_booking_ids"`
	WithdrawnBookingIDs []string      `json:"withdrawn_booking_ids"`
	FailedBookingIDs    []string      `json:"failed_booking_ids,omitempty"`
	SeatsReleased       int           `json:"seats_released"`
}

type admissionResponse struct {
	UniqueTicketID string     `json:"unique_ticket_id"`
	BookingID      string     `json:"booking_id"`
	EventID        string     `json:"event_id"`
	AttendeeEmail  string     `json:"attendee_email"`
	Status         string     `json:"status"`
	ScannedAt      *time.Time `json:"scanned_at"`
}

func NewEventHandler(events events.EventUseCase, bookings booking.BookingUseCase) *EventHandler {
	return &EventHandler{events: events, bookings: bookings}
}

// Register mounts the event routes. Only the event page is public; auth is
// applied to the rest.
func (h *EventHandler) Register(router *gin.RouterGroup, auth ...gin.HandlerFunc) {
	router.GET("/:id", h.get)

	organizer := router.Group("", append(auth, RequireRole(domain.RoleOrganizer))...)
	organizer.POST("", h.create)
	organizer.GET("/mine", h.listMine)
	organizer.PUT("/:id/capacity", h.updateCapacity)
	organizer.GET("/:id/attendees", h.attendees)
	organizer.POST("/:id/scan-ticket", h.scanTicket)
	organizer.POST("/:id/cancel", h.cancel)
	organizer.POST("/:id/send-reminder", h.sendReminder)
}

func (h *EventHandler) create(c *gin.Context) {
	var req events.CreateEventInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid event payload")
		return
	}

	event, err := h.events.Create(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, "Event created.", toEventResponse(event))
}

func (h *EventHandler) get(c *gin.Context) {
	event, err := h.events.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "", toEventResponse(event))
}

func (h *EventHandler) listMine(c *gin.Context) {
	list, err := h.events.ListMine(c.Request.Context(), identityFrom(c))
	if err != nil {
		failWith(c, err)
		return
	}
	out := make([]eventResponse, 0, len(list))
	for i := range list {
		out = append(out, toEventResponse(&list[i]))
	}
	respond(c, http.StatusOK, "", out)
}

func (h *EventHandler) updateCapacity(c *gin.Context) {
	var req capacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "total_capacity is required")
		return
	}

	event, err := h.events.UpdateCapacity(c.Request.Context(), identityFrom(c), c.Param("id"), req.TotalCapacity)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Capacity updated.", toEventResponse(event))
}

func (h *EventHandler) attendees(c *gin.Context) {
	list, err := h.bookings.ListAttendees(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "", list)
}

func (h *EventHandler) scanTicket(c *gin.Context) {
	var req scanTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid scan payload")
		return
	}
	ref := req.UniqueTicketID
	if ref == "" {
		ref = req.Payload
	}

	admission, err := h.bookings.ScanTicket(c.Request.Context(), identityFrom(c), c.Param("id"), ref)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Ticket successfully scanned!", admissionResponse{
		UniqueTicketID: admission.Ticket.UniqueID,
		BookingID:      admission.BookingID,
		EventID:        admission.EventID,
		AttendeeEmail:  admission.UserEmail,
		Status:         string(admission.Ticket.Status),
		ScannedAt:      admission.Ticket.ScannedAt,
	})
}

// cancel calls the event off. Bookings that could not be cancelled are listed
// in failed_booking_ids; repeating the call retries them.
func (h *EventHandler) cancel(c *gin.Context) {
	report, err := h.bookings.CancelEvent(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}

	message := "Event cancelled and attendees notified."
	if len(report.Failed) > 0 {
		message = "Event cancelled, some bookings could not be cancelled yet. Retry to finish."
	}
	respond(c, http.StatusOK, message, eventCancellationResponse{
		Event:               toEventResponse(report.Event),
		CancelledBookingIDs: report.Cancelled,
		WithdrawnBookingIDs: report.Withdrawn,
		FailedBookingIDs:    report.Failed,
		SeatsReleased:       report.SeatsReleased,
	})
}

func (h *EventHandler) sendReminder(c *gin.Context) {
	report, err := h.bookings.SendReminder(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}

	switch {
	case report.Recipients == 0:
		respond(c, http.StatusOK, "No confirmed attendees to send reminders to.", report)
	case report.Failed > 0:
		respond(c, http.StatusOK, "Reminder emails sent, some could not be delivered.", report)
	default:
		respond(c, http.StatusOK, "Reminder emails sent to all confirmed attendees.", report)
	}
}

func toEventResponse(e *domain.Event) eventResponse {
	return eventResponse{
		ID:                e.ID,
		OrganizerID:       e.OrganizerID,
		Name:              e.Name,
		Description:       e.Description,
		Location:          e.Location,
		Category:          e.Category,
		StartsAt:          e.StartsAt,
		EndsAt:            e.EndsAt,
		PriceCents:        e.PriceCents,
		TotalCapacity:     e.TotalCapacity,
		AvailableCapacity: e.AvailableCapacity,
		BookedCapacity:    e.BookedCapacity(),
		CancelledAt:       e.CancelledAt,
	}
}
