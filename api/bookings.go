package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type initiateBookingRequest struct {
	EventID         string `json:"event_id" binding:"required"`
	NumberOfTickets int    `json:"number_of_tickets"`
}

type bookingRefRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
}

type verifyOTPRequest struct {
	BookingID  string `json:"booking_id" binding:"required"`
	OTP        string `json:"otp" binding:"required"`
	ActionType string `json:"action_type" binding:"required"`
}

type ticketResponse struct {
	UniqueID      string     `json:"unique_ticket_id"`
	Status        string     `json:"status"`
	Payload       string     `json:"payload,omitempty"`
	QRCodeDataURL string     `json:"qr_code_data_url,omitempty"`
	ScannedAt     *time.Time `json:"scanned_at,omitempty"`
}

type bookingResponse struct {
	ID              string           `json:"id"`
	EventID         string           `json:"event_id"`
	UserID          string           `json:"user_id"`
	UserEmail       string           `json:"user_email"`
	NumberOfTickets int              `json:"number_of_tickets"`
	Status          string           `json:"status"`
	TotalPriceCents int64            `json:"total_price_cents"`
	CancelReason    string           `json:"cancel_reason,omitempty"`
	Tickets         []ticketResponse `json:"tickets"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type outcomeResponse struct {
	Booking                bookingResponse `json:"booking"`
	EventAvailableCapacity *int            `json:"event_available_capacity,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

// Register mounts the booking routes. verify guards the OTP verification
// route on top of the group middleware.
func (h *BookingHandler) Register(router *gin.RouterGroup, verify ...gin.HandlerFunc) {
	attendee := router.Group("", RequireRole(domain.RoleAttendee))
	attendee.POST("/initiate-booking", h.initiateBooking)
	attendee.POST("/initiate-cancellation", h.initiateCancellation)
	attendee.POST("/verify-otp", append(verify, h.verifyOTP)...)
	attendee.POST("/:id/resend-otp", h.resendOTP)
	attendee.POST("/:id/cancel", h.cancel)
	attendee.GET("/my", h.listMine)

	router.GET("/event/:id", RequireRole(domain.RoleOrganizer), h.listForEvent)
}

func (h *BookingHandler) initiateBooking(c *gin.Context) {
	var req initiateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "event_id is required")
		return
	}

	b, err := h.service.InitiateBooking(c.Request.Context(), identityFrom(c), req.EventID, req.NumberOfTickets)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, "Booking initiated. OTP sent to your email for confirmation.", toBookingResponse(b))
}

func (h *BookingHandler) initiateCancellation(c *gin.Context) {
	var req bookingRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "booking_id is required")
		return
	}

	b, err := h.service.InitiateCancellation(c.Request.Context(), identityFrom(c), req.BookingID)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "OTP sent to your email to confirm the cancellation.", toBookingResponse(b))
}

func (h *BookingHandler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "booking_id, otp and action_type are required")
		return
	}

	action := domain.OTPAction(req.ActionType)
	out, err := h.service.VerifyOTP(c.Request.Context(), identityFrom(c), action, req.BookingID, req.OTP)
	if err != nil {
		failWith(c, err)
		return
	}

	message := "Booking confirmed successfully! Tickets sent to your email."
	if action == domain.OTPActionConfirmCancel {
		message = "Booking cancelled successfully."
	}
	respond(c, http.StatusOK, message, toOutcomeResponse(out))
}

func (h *BookingHandler) resendOTP(c *gin.Context) {
	b, err := h.service.ResendOTP(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "A new OTP has been sent to your email.", toBookingResponse(b))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	out, err := h.service.CancelBooking(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Booking withdrawn.", toOutcomeResponse(out))
}

func (h *BookingHandler) listMine(c *gin.Context) {
	bookings, err := h.service.ListMyBookings(c.Request.Context(), identityFrom(c))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "", toBookingResponses(bookings))
}

func (h *BookingHandler) listForEvent(c *gin.Context) {
	bookings, err := h.service.ListEventBookings(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "", toBookingResponses(bookings))
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	out := bookingResponse{
		ID:              b.ID,
		EventID:         b.EventID,
		UserID:          b.UserID,
		UserEmail:       b.UserEmail,
		NumberOfTickets: b.NumberOfTickets,
		Status:          string(b.Status),
		TotalPriceCents: b.TotalPriceCents,
		CancelReason:    b.CancelReason,
		Tickets:         make([]ticketResponse, 0, len(b.Tickets)),
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	for _, t := range b.Tickets {
		out.Tickets = append(out.Tickets, toTicketResponse(t))
	}
	return out
}

func toTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		UniqueID:      t.UniqueID,
		Status:        string(t.Status),
		Payload:       t.Payload,
		QRCodeDataURL: t.QRCodeDataURL,
		ScannedAt:     t.ScannedAt,
	}
}

func toBookingResponses(bookings []domain.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	return out
}

func toOutcomeResponse(out *booking.Outcome) outcomeResponse {
	resp := outcomeResponse{Booking: toBookingResponse(out.Booking)}
	if out.Event != nil {
		available := out.Event.AvailableCapacity
		resp.EventAvailableCapacity = &available
	}
	return resp
}
