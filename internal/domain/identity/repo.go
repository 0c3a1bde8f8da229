package identity

import (
	"context"
	"time"
)

type PatientRepository interface {
	PatientFinder
	Create(ctx context.Context, p *Patient) error
	// GetByPatientID returns an active patient or ErrNotFound.
	GetByPatientID(ctx context.Context, patientID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Deactivate(ctx context.Context, patientID string, at time.Time) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error)
	CountActive(ctx context.Context) (int, error)
	CountRegistered(ctx context.Context, from, to time.Time) (int, error)
}

// AppointmentCounter reports how many appointments reference a patient.
type AppointmentCounter interface {
	CountByPatient(ctx context.Context, patientID string) (int, error)
}
