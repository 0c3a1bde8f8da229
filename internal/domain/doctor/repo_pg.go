package doctor

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthops/healthops/internal/platform/db"
)

type doctorRepoPG struct {
	db db.Querier
}

func NewDoctorRepo(q db.Querier) DoctorRepository {
	return &doctorRepoPG{db: q}
}

const doctorCols = `id, doctor_id, name, specialty, department, gender, location, email, available_modes,
	created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.DoctorID, &d.Name, &d.Specialty, &d.Department, &d.Gender,
		&d.Location, &d.Email, &d.AvailableModes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	if d.AvailableModes == nil {
		d.AvailableModes = []string{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO doctors (id, doctor_id, name, specialty, department, gender, location, email, available_modes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		d.ID, d.DoctorID, d.Name, d.Specialty, d.Department, d.Gender, d.Location, d.Email, d.AvailableModes,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDoctorIDConflict
	}
	return err
}

func (r *doctorRepoPG) GetByDoctorID(ctx context.Context, doctorID string) (*Doctor, error) {
	d, err := scanDoctor(r.db.QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE doctor_id = $1`, doctorID))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return d, err
}

func (r *doctorRepoPG) List(ctx context.Context, specialty string) ([]*Doctor, error) {
	q := db.NewSearchQuery("doctors", doctorCols).
		Equal("specialty", specialty).
		OrderBy("name, doctor_id")
	sql, args := q.AllSQL()
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
