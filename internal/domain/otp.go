package domain

import "time"

type OTPAction string

const (
	OTPActionConfirmBooking OTPAction = "confirm_booking"
	OTPActionConfirmCancel  OTPAction = "confirm_cancel"
	OTPActionRegister       OTPAction = "register"
	OTPActionResetPassword  OTPAction = "reset_password"
)

func (a OTPAction) Valid() bool {
	switch a {
	case OTPActionConfirmBooking, OTPActionConfirmCancel, OTPActionRegister, OTPActionResetPassword:
		return true
	}
	return false
}

// BookingAction reports whether the action gates a booking transition.
func (a OTPAction) BookingAction() bool {
	return a == OTPActionConfirmBooking || a == OTPActionConfirmCancel
}

type OTPRecord struct {
	UserID    string    `json:"user_id"`
	Code      string    `json:"code"`
	Action    OTPAction `json:"action"`
	BookingID string    `json:"booking_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *OTPRecord) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}
