package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/Domenick1991/eventbooking/internal/logger"
	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type errorDetails struct {
	Remaining    *int `json:"remaining,omitempty"`
	AttemptsLeft *int `json:"attempts_left,omitempty"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

// failWith maps err to a status and a message the caller can act on.
// Anything that is not a *domain.Error is reported as a server error.
func failWith(c *gin.Context, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		_ = c.Error(err)
		logger.WithContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	out := envelope{Success: false, Message: de.Message}
	switch {
	case errors.Is(de, domain.ErrCapacityExceeded):
		remaining := de.Remaining
		out.Data = errorDetails{Remaining: &remaining}
	case errors.Is(de, domain.ErrInvalidOTP) && de.AttemptsLeft > 0:
		left := de.AttemptsLeft
		out.Data = errorDetails{AttemptsLeft: &left}
	}
	c.AbortWithStatusJSON(statusOf(de), out)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCapacityExceeded), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExpiredOTP):
		return http.StatusGone
	case errors.Is(err, domain.ErrOTPAttemptsExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidOTP), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
