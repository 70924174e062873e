package domain

type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
)

func (r Role) Valid() bool {
	return r == RoleAttendee || r == RoleOrganizer
}

// Identity is the caller as resolved by the upstream identity provider.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}

func (i Identity) IsOrganizer() bool {
	return i.Role == RoleOrganizer
}

func (i Identity) IsAttendee() bool {
	return i.Role == RoleAttendee
}
