package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("patient not found")
	ErrDuplicatePatient    = errors.New("patient already exists")
	ErrPatientIDConflict   = errors.New("patient id already assigned")
	ErrResolverUnavailable = errors.New("duplicate check unavailable")
)

// Gender is the closed set of genders a patient can be registered with.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// ParseGender accepts any letter case.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	case "other":
		return GenderOther, nil
	}
	return "", fmt.Errorf("gender must be Male, Female, or Other")
}

// Patient maps to the patients table.
type Patient struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          string     `db:"patient_id" json:"patient_id"`
	FullName           string     `db:"full_name" json:"full_name"`
	ContactNumber      string     `db:"contact_number" json:"contact_number"`
	EmergencyNumber    *string    `db:"emergency_number" json:"emergency_contact_number,omitempty"`
	DateOfBirth        string     `db:"date_of_birth" json:"date_of_birth"`
	Age                int        `db:"age" json:"age"`
	Gender             Gender     `db:"gender" json:"gender"`
	RegisteredLocation string     `db:"registered_location" json:"registered_location"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	CreatedBy          string     `db:"created_by" json:"created_by"`
	RegistrationDate   time.Time  `db:"registration_date" json:"registration_date"`
	LastVisitDate      *time.Time `db:"last_visit_date" json:"last_visit_date,omitempty"`
	DeactivatedAt      *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// PatientDetail is a patient together with the number of appointments that
// reference it.
type PatientDetail struct {
	*Patient
	AppointmentCount int `json:"appointment_count"`
}

// RegistrationRequest is the payload used by staff screens and by the voice
// agent's create_patient tool.
type RegistrationRequest struct {
	FullName               string `json:"fullName"`
	ContactNumber          string `json:"contactNumber"`
	EmergencyContactNumber string `json:"emergencyContactNumber,omitempty"`
	DateOfBirth            string `json:"dateOfBirth"`
	Gender                 string `json:"gender"`
	Locality               string `json:"locality"`
	CreatedBy              string `json:"createdBy,omitempty"`
}

// RegistrationResult is returned for an accepted registration.
type RegistrationResult struct {
	Patient           *Patient `json:"patient"`
	FamilyMemberMatch bool     `json:"family_member_match"`
	// MatchedPatientID is the record that shares the contact number when
	// FamilyMemberMatch is set.
	MatchedPatientID string `json:"matched_patient_id,omitempty"`
}

// PatientUpdate carries the fields a caller may change. Identifier,
// registration date and creator are not part of it and cannot be changed.
type PatientUpdate struct {
	FullName               *string    `json:"full_name"`
	ContactNumber          *string    `json:"contact_number"`
	EmergencyContactNumber *string    `json:"emergency_contact_number"`
	DateOfBirth            *string    `json:"date_of_birth"`
	Gender                 *string    `json:"gender"`
	RegisteredLocation     *string    `json:"registered_location"`
	LastVisitDate          *time.Time `json:"last_visit_date"`
}

// Empty reports whether no field is set.
func (u PatientUpdate) Empty() bool {
	return u.FullName == nil && u.ContactNumber == nil && u.EmergencyContactNumber == nil &&
		u.DateOfBirth == nil && u.Gender == nil && u.RegisteredLocation == nil && u.LastVisitDate == nil
}

// ListFilter narrows patient listings. Search is a prefix of the name or
// patient id, or a full contact number.
type ListFilter struct {
	Search   string
	Location string
}

// DuplicateError is returned when a registration matches an existing patient
// exactly.
type DuplicateError struct {
	PatientID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("patient already exists: %s", e.PatientID)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicatePatient
}

// ValidationError lists every problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
