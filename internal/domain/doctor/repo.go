package doctor

import "context"

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByDoctorID(ctx context.Context, doctorID string) (*Doctor, error)
	// List returns doctors ordered by name, narrowed to specialty when it is
	// not empty.
	List(ctx context.Context, specialty string) ([]*Doctor, error)
}
