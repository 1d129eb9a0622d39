package model

// Role user role within the platform
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether the role is one the coordinator accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// ClassStatus lifecycle state of a live class
type ClassStatus string

const (
	ClassScheduled ClassStatus = "SCHEDULED"
	ClassLive      ClassStatus = "LIVE"
	ClassEnded     ClassStatus = "ENDED"
)
