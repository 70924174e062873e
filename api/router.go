package api

import (
	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/service/booking"
	"github.com/Domenick1991/eventbooking/internal/service/events"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the /api engine.
func NewRouter(cfg config.HTTPConfig, bookingSvc booking.BookingUseCase, eventSvc events.EventUseCase) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(), RequestID(), Logger(), CORS())
	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	api := router.Group("/api")

	NewBookingHandler(bookingSvc).Register(api.Group("/bookings", Identity()), PerUserRateLimit(cfg.OTPVerifyPerMin))
	NewEventHandler(eventSvc, bookingSvc).Register(api.Group("/events"), Identity())

	return router
}
