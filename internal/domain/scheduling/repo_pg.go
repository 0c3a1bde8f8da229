package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthops/healthops/internal/platform/db"
)

type appointmentRepoPG struct {
	db db.Querier
}

func NewAppointmentRepo(q db.Querier) AppointmentRepository {
	return &appointmentRepoPG{db: q}
}

const apptCols = `id, appointment_id, patient_id, patient_name, department, preferred_date, preferred_time,
	appointment_type, status, symptoms, doctor_id, doctor_name, doctor_preference, location, booking_source,
	voice_call_id, cancellation_reason, cancelled_at, confirmed_at, completed_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.AppointmentID, &a.PatientID, &a.PatientName, &a.Department,
		&a.PreferredDate, &a.PreferredTime, &a.AppointmentType, &a.Status, &a.Symptoms,
		&a.DoctorID, &a.DoctorName, &a.DoctorPreference, &a.Location, &a.BookingSource,
		&a.VoiceCallID, &a.CancellationReason, &a.CancelledAt, &a.ConfirmedAt, &a.CompletedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, appointment_id, patient_id, patient_name, department, preferred_date, preferred_time,
			appointment_type, status, symptoms, doctor_id, doctor_name, doctor_preference, location,
			booking_source, voice_call_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		a.ID, a.AppointmentID, a.PatientID, a.PatientName, a.Department, a.PreferredDate, a.PreferredTime,
		a.AppointmentType, a.Status, a.Symptoms, a.DoctorID, a.DoctorName, a.DoctorPreference, a.Location,
		a.BookingSource, a.VoiceCallID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrAppointmentIDConflict
	}
	return err
}

func (r *appointmentRepoPG) GetByAppointmentID(ctx context.Context, appointmentID string) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE appointment_id = $1`, appointmentID))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.db.QueryRow(ctx, `
		UPDATE appointments SET
			patient_id = $2, patient_name = $3, department = $4, preferred_date = $5, preferred_time = $6,
			appointment_type = $7, status = $8, symptoms = $9, doctor_id = $10, doctor_name = $11,
			doctor_preference = $12, location = $13, cancellation_reason = $14, cancelled_at = $15,
			confirmed_at = $16, completed_at = $17, updated_at = NOW()
		WHERE appointment_id = $1
		RETURNING updated_at`,
		a.AppointmentID, a.PatientID, a.PatientName, a.Department, a.PreferredDate, a.PreferredTime,
		a.AppointmentType, a.Status, a.Symptoms, a.DoctorID, a.DoctorName, a.DoctorPreference, a.Location,
		a.CancellationReason, a.CancelledAt, a.ConfirmedAt, a.CompletedAt,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

// sortColumns whitelists the columns a listing may be ordered by.
var sortColumns = map[string]string{
	"preferred_date": "preferred_date",
	"created_at":     "created_at",
	"status":         "status",
	"department":     "department",
}

func listQuery(f ListFilter) *db.SearchQuery {
	q := db.NewSearchQuery("appointments", apptCols).
		Range("preferred_date", f.DateFrom, f.DateTo).
		In("status", f.Statuses).
		In("appointment_type", f.Types).
		In("department", f.Departments).
		Equal("location", strings.TrimSpace(f.Location)).
		Equal("patient_id", strings.TrimSpace(f.PatientID)).
		Equal("doctor_id", strings.TrimSpace(f.DoctorID))
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Where(`(patient_name ILIKE ? ESCAPE '\' OR appointment_id LIKE ? ESCAPE '\')`,
			db.EscapeLike(s)+"%", db.EscapeLike(strings.ToUpper(s))+"%")
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "ASC"
	}
	return q.OrderBy(col + " " + dir + ", appointment_id")
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
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

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) CountByPatient(ctx context.Context, patientID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) CountCreated(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE created_at >= $1 AND created_at <= $2`, from, to).Scan(&n)
	return n, err
}

var distributionColumns = map[string]bool{
	"status":           true,
	"department":       true,
	"appointment_type": true,
	"location":         true,
}

func (r *appointmentRepoPG) Distribution(ctx context.Context, column string) ([]Bucket, error) {
	if !distributionColumns[column] {
		return nil, fmt.Errorf("unsupported distribution column %q", column)
	}
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(`+column+`, ''), COUNT(*) AS n FROM appointments
		GROUP BY 1 ORDER BY n DESC, 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Value, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
