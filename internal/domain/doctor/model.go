package doctor

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("doctor not found")
	ErrDoctorIDConflict = errors.New("doctor id already assigned")
)

// Consultation modes a doctor can offer.
const (
	ModeAudio    = "audio"
	ModeInPerson = "in_person"
)

// Doctor maps to the doctors table.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DoctorID       string    `db:"doctor_id" json:"doctor_id"`
	Name           string    `db:"name" json:"name"`
	Specialty      string    `db:"specialty" json:"specialty"`
	Department     *string   `db:"department" json:"department,omitempty"`
	Gender         *string   `db:"gender" json:"gender,omitempty"`
	Location       *string   `db:"location" json:"location,omitempty"`
	Email          *string   `db:"email" json:"email,omitempty"`
	AvailableModes []string  `db:"available_modes" json:"available_modes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// DepartmentOrSpecialty is how the doctor is introduced to callers.
func (d *Doctor) DepartmentOrSpecialty() string {
	if d.Department != nil && *d.Department != "" {
		return *d.Department
	}
	return d.Specialty
}

type CreateRequest struct {
	DoctorID       string   `json:"doctor_id"`
	Name           string   `json:"name"`
	Specialty      string   `json:"specialty"`
	Department     string   `json:"department"`
	Gender         string   `json:"gender"`
	Location       string   `json:"location"`
	Email          string   `json:"email"`
	AvailableModes []string `json:"available_modes"`
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
