// Package auth resolves bearer tokens into the authenticated principal that every
// scheduling operation receives as an explicit argument.
package auth

import (
	"strings"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

// Role is the coarse permission group of a user.
type Role string

const (
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalizes a role string, reporting false for unknown roles.
func ParseRole(value string) (Role, bool) {
	switch role := Role(strings.ToUpper(strings.TrimSpace(value))); role {
	case RoleDoctor, RolePatient, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// DoctorProfile links a user to the doctor calendar they own.
type DoctorProfile struct {
	ID string `json:"id"`
}

// PatientProfile links a user to their patient record and treating doctor.
type PatientProfile struct {
	ID       string `json:"id"`
	DoctorID string `json:"doctorId"`
}

// Principal is the verified identity behind a request.
type Principal struct {
	UserID  string          `json:"userId"`
	Role    Role            `json:"role"`
	Doctor  *DoctorProfile  `json:"doctor,omitempty"`
	Patient *PatientProfile `json:"patient,omitempty"`
}

// HasRole reports whether the principal holds any of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// DoctorID returns the calendar owner for doctor-side actions.
func (p Principal) DoctorID() (string, error) {
	if p.Doctor == nil || p.Doctor.ID == "" {
		return "", scheduling.ErrNotDoctor
	}
	return p.Doctor.ID, nil
}

// PatientIDs returns the patient id and the doctor the patient books with.
func (p Principal) PatientIDs() (patientID, doctorID string, err error) {
	if p.Patient == nil || p.Patient.ID == "" {
		return "", "", scheduling.ErrNotPatient
	}
	if p.Patient.DoctorID == "" {
		return "", "", scheduling.Validation("patient's doctor doesn't exist")
	}
	return p.Patient.ID, p.Patient.DoctorID, nil
}
