package model

import (
	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Actor is the identity the boundary layer attaches to a request. For the
// provider role SubjectID is the provider id; for patients the patient id.
type Actor struct {
	SubjectID uuid.UUID `json:"subject_id"`
	Role      Role      `json:"role"`
}

// Privileged reports whether the actor acts on behalf of the clinic.
func (a Actor) Privileged() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}
