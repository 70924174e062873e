package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidState        = errors.New("invalid state")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrInvalidOTP          = errors.New("invalid otp")
	ErrExpiredOTP          = errors.New("expired otp")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrValidation          = errors.New("validation error")

	// Refinements of ErrInvalidState for the nested ticket state machine.
	ErrAlreadyScanned  = fmt.Errorf("ticket already scanned: %w", ErrInvalidState)
	ErrTicketCancelled = fmt.Errorf("ticket cancelled: %w", ErrInvalidState)
)

// Error is an expected failure of a booking operation. Message is shown to
// the caller as is, so it has to say what to do next.
type Error struct {
	Kind         error
	Message      string
	Remaining    int
	AttemptsLeft int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// AsError extracts the *Error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) *Error {
	return &Error{Kind: ErrUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func InvalidStatef(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func CapacityExceeded(remaining, requested int) *Error {
	msg := fmt.Sprintf("not enough tickets available: %d requested, %d remaining", requested, remaining)
	if remaining == 0 {
		msg = "event is sold out"
	}
	return &Error{Kind: ErrCapacityExceeded, Message: msg, Remaining: remaining}
}

func InvalidOTP(attemptsLeft int) *Error {
	msg := "invalid OTP"
	if attemptsLeft > 0 {
		msg = fmt.Sprintf("invalid OTP. Attempts left: %d", attemptsLeft)
	}
	return &Error{Kind: ErrInvalidOTP, Message: msg, AttemptsLeft: attemptsLeft}
}

func MismatchedOTP() *Error {
	return &Error{Kind: ErrInvalidOTP, Message: "OTP was not issued for this action or booking, request a new one"}
}

func ExpiredOTP() *Error {
	return &Error{Kind: ErrExpiredOTP, Message: "OTP has expired, request a new one"}
}

func OTPAttemptsExceeded() *Error {
	return &Error{Kind: ErrOTPAttemptsExceeded, Message: "too many invalid attempts, all pending codes were revoked. Request a new OTP"}
}

func AlreadyScanned(at *time.Time) *Error {
	msg := "ticket has already been scanned"
	if at != nil {
		msg = fmt.Sprintf("ticket was already scanned at %s", at.UTC().Format(time.RFC3339))
	}
	return &Error{Kind: ErrAlreadyScanned, Message: msg}
}

func TicketCancelled() *Error {
	return &Error{Kind: ErrTicketCancelled, Message: "ticket has been cancelled and is not valid for entry"}
}
