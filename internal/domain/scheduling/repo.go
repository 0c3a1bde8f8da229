package scheduling

import (
	"context"
	"time"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByAppointmentID(ctx context.Context, appointmentID string) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	CountByPatient(ctx context.Context, patientID string) (int, error)
	Count(ctx context.Context) (int, error)
	CountCreated(ctx context.Context, from, to time.Time) (int, error)
	// Distribution groups all appointments by one of the columns in
	// distributionColumns, largest group first.
	Distribution(ctx context.Context, column string) ([]Bucket, error)
}

// HistoryRepository is the append-only audit log of appointment changes.
type HistoryRepository interface {
	Append(ctx context.Context, e *HistoryEntry) error
	ListByAppointment(ctx context.Context, appointmentID string) ([]*HistoryEntry, error)
}

// PatientDirectory resolves the patients appointments refer to.
type PatientDirectory interface {
	ActiveContact(ctx context.Context, patientID string) (contact string, found bool, err error)
}

// DoctorDirectory resolves the doctors appointments refer to.
type DoctorDirectory interface {
	NameOf(ctx context.Context, doctorID string) (name string, found bool, err error)
}

// Notifier publishes a templated notification without blocking the caller.
type Notifier interface {
	Dispatch(ctx context.Context, templateID, recipient string, data map[string]string)
}
