package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthops/healthops/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	db db.Querier
}

func NewPatientRepo(q db.Querier) PatientRepository {
	return &patientRepoPG{db: q}
}

const patientCols = `id, patient_id, full_name, contact_number, emergency_number, date_of_birth, age, gender,
	registered_location, is_active, created_by, registration_date, last_visit_date, deactivated_at,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.FullName, &p.ContactNumber, &p.EmergencyNumber,
		&p.DateOfBirth, &p.Age, &p.Gender, &p.RegisteredLocation, &p.IsActive, &p.CreatedBy,
		&p.RegistrationDate, &p.LastVisitDate, &p.DeactivatedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.db.QueryRow(ctx, `
		INSERT INTO patients (
			id, patient_id, full_name, full_name_key, contact_number, contact_suffix, emergency_number,
			date_of_birth, age, gender, registered_location, is_active, created_by, registration_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.FullName, NormalizeName(p.FullName), p.ContactNumber, ContactSuffix(p.ContactNumber),
		p.EmergencyNumber, p.DateOfBirth, p.Age, p.Gender, p.RegisteredLocation, p.IsActive, p.CreatedBy,
		p.RegistrationDate,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrPatientIDConflict
	}
	return err
}

func (r *patientRepoPG) GetByPatientID(ctx context.Context, patientID string) (*Patient, error) {
	p, err := scanPatient(r.db.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE patient_id = $1 AND is_active`, patientID))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.db.QueryRow(ctx, `
		UPDATE patients SET
			full_name = $2, full_name_key = $3, contact_number = $4, contact_suffix = $5,
			emergency_number = $6, date_of_birth = $7, age = $8, gender = $9,
			registered_location = $10, last_visit_date = $11, updated_at = NOW()
		WHERE patient_id = $1 AND is_active
		RETURNING updated_at`,
		p.PatientID, p.FullName, NormalizeName(p.FullName), p.ContactNumber, ContactSuffix(p.ContactNumber),
		p.EmergencyNumber, p.DateOfBirth, p.Age, p.Gender, p.RegisteredLocation, p.LastVisitDate,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *patientRepoPG) Deactivate(ctx context.Context, patientID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE patients SET is_active = FALSE, deactivated_at = $2, updated_at = $2
		WHERE patient_id = $1 AND is_active`, patientID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindActive issues one query without ORDER BY; among several matches the
// row PostgreSQL returns first wins.
func (r *patientRepoPG) FindActive(ctx context.Context, l Lookup) (*Patient, error) {
	q := db.NewSearchQuery("patients", patientCols).Where("is_active")
	switch l.Kind {
	case LookupPatientID:
		q.Where("patient_id = ?", l.PatientID)
	case LookupContactAndName:
		q.Where("contact_suffix = ?", l.ContactSuffix).Where("full_name_key = ?", l.NameKey)
	case LookupContact:
		q.Where("contact_suffix = ?", l.ContactSuffix)
	case LookupName:
		q.Where("full_name_key = ?", l.NameKey)
	default:
		return nil, fmt.Errorf("unsupported lookup %s", l.Kind)
	}

	sql, args := q.FirstSQL()
	p, err := scanPatient(r.db.QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return p, err
}

func listQuery(f ListFilter) *db.SearchQuery {
	q := db.NewSearchQuery("patients", patientCols).Where("is_active")
	if s := strings.TrimSpace(f.Search); s != "" {
		if suffix := ContactSuffix(s); suffix != "" {
			q.Where("contact_suffix = ?", suffix)
		} else {
			q.Where(`(full_name_key LIKE ? ESCAPE '\' OR patient_id LIKE ? ESCAPE '\')`,
				db.EscapeLike(NormalizeName(s))+"%", db.EscapeLike(strings.ToUpper(s))+"%")
		}
	}
	q.Equal("registered_location", strings.TrimSpace(f.Location))
	return q.OrderBy("registration_date DESC")
}

func (r *patientRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	q := listQuery(f)

	countSQL, countArgs := q.CountSQL()
	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL, dataArgs := q.DataSQL(limit, offset)
	rows, err := r.db.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE is_active`).Scan(&n)
	return n, err
}

func (r *patientRepoPG) CountRegistered(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM patients WHERE registration_date >= $1 AND registration_date <= $2`,
		from, to).Scan(&n)
	return n, err
}

// -- Daily Counter --

type counterRepoPG struct {
	db db.Querier
}

func NewCounterRepo(q db.Querier) CounterStore {
	return &counterRepoPG{db: q}
}

// Next is a single upsert, so concurrent callers for the same key always get
// distinct values.
func (r *counterRepoPG) Next(ctx context.Context, key string) (int, error) {
	var seq int
	err := r.db.QueryRow(ctx, `
		INSERT INTO patient_id_counters (counter_key, sequence, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (counter_key) DO UPDATE
			SET sequence = patient_id_counters.sequence + 1, updated_at = NOW()
		RETURNING sequence`, key).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return seq, nil
}
