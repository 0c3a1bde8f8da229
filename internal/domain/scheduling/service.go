package scheduling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthops/healthops/internal/platform/auth"
	"github.com/healthops/healthops/internal/platform/notification"
)

const (
	maxIDAttempts = 3
	// DefaultCancelReason is recorded when a caller cancels without saying why.
	DefaultCancelReason = "cancelled by caller"
	voiceAgentActor     = "voice-agent"
)

type Service struct {
	appointments AppointmentRepository
	history      HistoryRepository
	patients     PatientDirectory
	doctors      DoctorDirectory
	notifier     Notifier
	logger       zerolog.Logger
	now          func() time.Time
	randomHex    func() (string, error)
}

func NewService(appointments AppointmentRepository, history HistoryRepository, patients PatientDirectory,
	doctors DoctorDirectory, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appointments,
		history:      history,
		patients:     patients,
		doctors:      doctors,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
		randomHex:    randomHex,
	}
}

func randomHex() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// newAppointmentID returns APT-<YYMMDD>-<6 hex digits>.
func (s *Service) newAppointmentID() (string, error) {
	suffix, err := s.randomHex()
	if err != nil {
		return "", fmt.Errorf("generate appointment id: %w", err)
	}
	return "APT-" + s.now().Format("060102") + "-" + suffix, nil
}

// actor names who made a change: the authenticated user, or the voice agent
// for unauthenticated tool callbacks.
func actor(ctx context.Context) string {
	if email := auth.EmailFromContext(ctx); email != "" {
		return email
	}
	return voiceAgentActor
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// record appends to the history log. The appointment row is the source of
// truth, so a failed append is logged rather than returned.
func (s *Service) record(ctx context.Context, e *HistoryEntry) {
	e.Timestamp = s.now().UTC()
	if err := s.history.Append(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", e.AppointmentID).
			Str("action", e.Action).
			Msg("failed to append appointment history")
	}
}

func (s *Service) validateBooking(req *BookingRequest) (AppointmentType, BookingSource, string, error) {
	var problems []string
	required := []struct{ name, value string }{
		{"patient_id", req.PatientID},
		{"patient_name", req.PatientName},
		{"department", req.Department},
		{"preferredDate", req.PreferredDate},
		{"preferredTime", req.PreferredTime},
		{"appointmentType", req.AppointmentType},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			problems = append(problems, f.name+" is required")
		}
	}

	typ, err := ParseAppointmentType(req.AppointmentType)
	if req.AppointmentType != "" && err != nil {
		problems = append(problems, err.Error())
	}

	source := SourceOnline
	switch {
	case req.BookingSource != "":
		if source, err = ParseBookingSource(req.BookingSource); err != nil {
			problems = append(problems, err.Error())
		}
	case req.VoiceCallID != "":
		source = SourceVoice
	}

	var clock string
	if req.PreferredDate != "" && req.PreferredTime != "" {
		if err := ValidateAppointmentTime(req.PreferredDate, req.PreferredTime, s.now()); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				problems = append(problems, verr.Problems...)
			}
		} else {
			clock, _ = parseClock(req.PreferredTime)
		}
	}

	if len(problems) > 0 {
		return "", "", "", &ValidationError{Problems: problems}
	}
	return typ, source, clock, nil
}

// resolveDoctor returns the doctor's directory name, or ErrDoctorNotFound.
func (s *Service) resolveDoctor(ctx context.Context, doctorID string) (string, error) {
	name, found, err := s.doctors.NameOf(ctx, doctorID)
	if err != nil {
		return "", fmt.Errorf("look up doctor: %w", err)
	}
	if !found {
		return "", fmt.Errorf("doctor %s: %w", doctorID, ErrDoctorNotFound)
	}
	return name, nil
}

// Book creates a scheduled appointment for an active patient.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	typ, source, clock, err := s.validateBooking(&req)
	if err != nil {
		return nil, err
	}

	contact, found, err := s.patients.ActiveContact(ctx, strings.TrimSpace(req.PatientID))
	if err != nil {
		return nil, fmt.Errorf("look up patient: %w", err)
	}
	if !found {
		return nil, ErrPatientNotFound
	}

	a := &Appointment{
		PatientID:        strings.TrimSpace(req.PatientID),
		PatientName:      strings.TrimSpace(req.PatientName),
		Department:       strings.TrimSpace(req.Department),
		PreferredDate:    strings.TrimSpace(req.PreferredDate),
		PreferredTime:    clock,
		AppointmentType:  typ,
		Status:           StatusScheduled,
		Symptoms:         optional(req.Symptoms),
		DoctorID:         optional(req.DoctorID),
		DoctorName:       optional(req.DoctorName),
		DoctorPreference: optional(req.DoctorPreference),
		Location:         optional(req.Location),
		BookingSource:    source,
		VoiceCallID:      optional(req.VoiceCallID),
	}
	if a.DoctorID != nil {
		name, err := s.resolveDoctor(ctx, *a.DoctorID)
		if err != nil {
			return nil, err
		}
		a.DoctorName = &name
	}

	for attempt := 1; ; attempt++ {
		if a.AppointmentID, err = s.newAppointmentID(); err != nil {
			return nil, err
		}
		err = s.appointments.Create(ctx, a)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrAppointmentIDConflict) || attempt == maxIDAttempts {
			return nil, fmt.Errorf("create appointment: %w", err)
		}
		s.logger.Warn().Str("appointment_id", a.AppointmentID).Msg("appointment id conflict, retrying")
	}

	s.record(ctx, &HistoryEntry{
		AppointmentID: a.AppointmentID,
		Action:        ActionCreated,
		NewStatus:     a.Status,
		UpdatedBy:     actor(ctx),
	})
	s.notifier.Dispatch(ctx, notification.TemplateAppointmentBooked, contact, map[string]string{
		"appointment_id": a.AppointmentID,
		"patient_name":   a.PatientName,
		"department":     a.Department,
		"date":           a.PreferredDate,
		"time":           a.PreferredTime,
	})

	s.logger.Info().
		Str("appointment_id", a.AppointmentID).
		Str("patient_id", a.PatientID).
		Str("booking_source", string(a.BookingSource)).
		Msg("appointment booked")
	return a, nil
}

// Reschedule moves an open appointment to a new date and time.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	if strings.TrimSpace(req.AppointmentID) == "" || strings.TrimSpace(req.PreferredDate) == "" ||
		strings.TrimSpace(req.PreferredTime) == "" {
		return nil, &ValidationError{Problems: []string{
			"appointment_id, preferred_date, and preferred_time are required",
		}}
	}

	a, err := s.appointments.GetByAppointmentID(ctx, strings.TrimSpace(req.AppointmentID))
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, fmt.Errorf("cannot reschedule %s appointment: %w", a.Status, ErrTerminalStatus)
	}
	if err := ValidateAppointmentTime(req.PreferredDate, req.PreferredTime, s.now()); err != nil {
		return nil, err
	}

	entry := &HistoryEntry{
		AppointmentID: a.AppointmentID,
		Action:        ActionRescheduled,
		OldStatus:     a.Status,
		NewStatus:     StatusRescheduled,
		OldDate:       a.PreferredDate,
		OldTime:       a.PreferredTime,
		UpdatedBy:     actor(ctx),
	}
	a.PreferredDate = strings.TrimSpace(req.PreferredDate)
	a.PreferredTime, _ = parseClock(req.PreferredTime)
	a.Status = StatusRescheduled
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}

	entry.NewDate, entry.NewTime = a.PreferredDate, a.PreferredTime
	s.record(ctx, entry)
	s.logger.Info().
		Str("appointment_id", a.AppointmentID).
		Str("preferred_date", a.PreferredDate).
		Str("preferred_time", a.PreferredTime).
		Msg("appointment rescheduled")
	return a, nil
}

// applyStatus moves a to next and stamps the matching timestamp. Leaving a
// terminal status is refused.
func (s *Service) applyStatus(a *Appointment, next AppointmentStatus, reason string) error {
	if a.Status.Terminal() {
		return fmt.Errorf("cannot change %s appointment to %s: %w", a.Status, next, ErrTerminalStatus)
	}
	now := s.now().UTC()
	switch next {
	case StatusCancelled:
		if strings.TrimSpace(reason) == "" {
			return ErrCancellationNeedsReason
		}
		r := strings.TrimSpace(reason)
		a.CancellationReason = &r
		a.CancelledAt = &now
	case StatusCompleted:
		a.CompletedAt = &now
	case StatusConfirmed:
		a.ConfirmedAt = &now
	}
	a.Status = next
	return nil
}

// UpdateStatus changes only the status and records the transition.
func (s *Service) UpdateStatus(ctx context.Context, appointmentID string, change StatusChange) (*Appointment, error) {
	next, err := ParseStatus(change.Status)
	if err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}
	if next == StatusCancelled && strings.TrimSpace(change.Reason) == "" {
		return nil, ErrCancellationNeedsReason
	}

	a, err := s.appointments.GetByAppointmentID(ctx, strings.TrimSpace(appointmentID))
	if err != nil {
		return nil, err
	}
	prev := a.Status
	if err := s.applyStatus(a, next, change.Reason); err != nil {
		return nil, err
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}

	updatedBy := change.UpdatedBy
	if updatedBy == "" {
		updatedBy = actor(ctx)
	}
	entry := &HistoryEntry{
		AppointmentID: a.AppointmentID,
		Action:        ActionStatusChanged,
		OldStatus:     prev,
		NewStatus:     next,
		UpdatedBy:     updatedBy,
	}
	if next == StatusCancelled {
		entry.Reason = *a.CancellationReason
	}
	s.record(ctx, entry)

	s.logger.Info().
		Str("appointment_id", a.AppointmentID).
		Str("old_status", string(prev)).
		Str("new_status", string(next)).
		Msg("appointment status changed")
	return a, nil
}

// Cancel is a status transition to cancelled; appointments are never
// deleted.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*Appointment, error) {
	if strings.TrimSpace(req.AppointmentID) == "" {
		return nil, &ValidationError{Problems: []string{"appointment_id is required"}}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultCancelReason
	}
	return s.UpdateStatus(ctx, req.AppointmentID, StatusChange{Status: string(StatusCancelled), Reason: reason})
}

// Update applies the set fields of u. Changed references are checked against
// the patient and doctor directories, and a changed date or time is checked
// against the booking window.
func (s *Service) Update(ctx context.Context, appointmentID string, u AppointmentUpdate) (*Appointment, error) {
	a, err := s.appointments.GetByAppointmentID(ctx, strings.TrimSpace(appointmentID))
	if err != nil {
		return nil, err
	}

	var fields, problems []string
	set := func(name string, dst *string, v *string) {
		if v == nil {
			return
		}
		*dst = strings.TrimSpace(*v)
		fields = append(fields, name)
	}
	setOptional := func(name string, dst **string, v *string) {
		if v == nil {
			return
		}
		*dst = optional(*v)
		fields = append(fields, name)
	}

	if u.PatientID != nil {
		_, found, err := s.patients.ActiveContact(ctx, strings.TrimSpace(*u.PatientID))
		if err != nil {
			return nil, fmt.Errorf("look up patient: %w", err)
		}
		if !found {
			problems = append(problems, fmt.Sprintf("Patient with ID %s not found", *u.PatientID))
		}
		set("patient_id", &a.PatientID, u.PatientID)
	}
	set("patient_name", &a.PatientName, u.PatientName)
	set("department", &a.Department, u.Department)
	setOptional("symptoms", &a.Symptoms, u.Symptoms)
	setOptional("doctor_preference", &a.DoctorPreference, u.DoctorPreference)
	setOptional("location", &a.Location, u.Location)
	setOptional("doctor_name", &a.DoctorName, u.DoctorName)

	if u.DoctorID != nil {
		setOptional("doctor_id", &a.DoctorID, u.DoctorID)
		if a.DoctorID != nil {
			name, err := s.resolveDoctor(ctx, *a.DoctorID)
			switch {
			case errors.Is(err, ErrDoctorNotFound):
				problems = append(problems, fmt.Sprintf("Doctor with ID %s not found", *a.DoctorID))
			case err != nil:
				return nil, err
			default:
				a.DoctorName = &name
			}
		}
	}

	if u.AppointmentType != nil {
		typ, err := ParseAppointmentType(*u.AppointmentType)
		if err != nil {
			problems = append(problems, err.Error())
		}
		a.AppointmentType = typ
		fields = append(fields, "appointment_type")
	}

	if u.PreferredDate != nil || u.PreferredTime != nil {
		set("preferred_date", &a.PreferredDate, u.PreferredDate)
		set("preferred_time", &a.PreferredTime, u.PreferredTime)
		if err := ValidateAppointmentTime(a.PreferredDate, a.PreferredTime, s.now()); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				problems = append(problems, verr.Problems...)
			}
		} else {
			a.PreferredTime, _ = parseClock(a.PreferredTime)
		}
	}

	prevStatus := a.Status
	if u.Status != nil {
		next, err := ParseStatus(*u.Status)
		if err != nil {
			problems = append(problems, err.Error())
		} else if next != a.Status {
			if err := s.applyStatus(a, next, ""); err != nil {
				if errors.Is(err, ErrTerminalStatus) {
					return nil, err
				}
				problems = append(problems, err.Error())
			}
		}
		fields = append(fields, "status")
	}

	if len(fields) == 0 {
		return nil, &ValidationError{Problems: []string{"No valid fields provided for update"}}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}

	entry := &HistoryEntry{
		AppointmentID: a.AppointmentID,
		Action:        ActionUpdated,
		UpdatedFields: fields,
		UpdatedBy:     actor(ctx),
	}
	if a.Status != prevStatus {
		entry.OldStatus, entry.NewStatus = prevStatus, a.Status
	}
	s.record(ctx, entry)

	s.logger.Info().
		Str("appointment_id", a.AppointmentID).
		Strs("updated_fields", fields).
		Msg("appointment updated")
	return a, nil
}

// Edit is Update with the appointment id carried in the request body.
func (s *Service) Edit(ctx context.Context, req EditRequest) (*Appointment, error) {
	if strings.TrimSpace(req.AppointmentID) == "" {
		return nil, &ValidationError{Problems: []string{"appointment_id is required"}}
	}
	return s.Update(ctx, req.AppointmentID, req.AppointmentUpdate)
}

func (s *Service) Get(ctx context.Context, appointmentID string) (*Appointment, error) {
	return s.appointments.GetByAppointmentID(ctx, strings.TrimSpace(appointmentID))
}

// History returns the change log of an appointment, newest first.
func (s *Service) History(ctx context.Context, appointmentID string) ([]*HistoryEntry, error) {
	a, err := s.appointments.GetByAppointmentID(ctx, strings.TrimSpace(appointmentID))
	if err != nil {
		return nil, err
	}
	return s.history.ListByAppointment(ctx, a.AppointmentID)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	var problems []string
	for _, d := range []string{f.DateFrom, f.DateTo} {
		if _, ok := parseDate(d); d != "" && !ok {
			problems = append(problems, "date_from and date_to must be YYYY-MM-DD")
			break
		}
	}
	for _, st := range f.Statuses {
		if _, err := ParseStatus(st); err != nil {
			problems = append(problems, err.Error())
		}
	}
	for _, t := range f.Types {
		if _, err := ParseAppointmentType(t); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if f.SortBy != "" {
		if _, ok := sortColumns[f.SortBy]; !ok {
			problems = append(problems, "sort_by must be one of preferred_date, created_at, status, department")
		}
	}
	if f.SortOrder != "" && !strings.EqualFold(f.SortOrder, "asc") && !strings.EqualFold(f.SortOrder, "desc") {
		problems = append(problems, "sort_order must be asc or desc")
	}
	if len(problems) > 0 {
		return nil, 0, &ValidationError{Problems: problems}
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// startOfWeek returns Monday 00:00 of the week containing t.
func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Stats summarizes all appointments. Today and this week count appointments
// created since local midnight and since Monday.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().In(time.Local)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	st := &Stats{GeneratedAt: now.UTC()}
	var err error
	if st.TotalAppointments, err = s.appointments.Count(ctx); err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	if st.TodayAppointments, err = s.appointments.CountCreated(ctx, today, now); err != nil {
		return nil, fmt.Errorf("count today's appointments: %w", err)
	}
	if st.WeekAppointments, err = s.appointments.CountCreated(ctx, startOfWeek(today), now); err != nil {
		return nil, fmt.Errorf("count this week's appointments: %w", err)
	}

	distributions := []struct {
		column string
		dst    *[]Bucket
	}{
		{"status", &st.StatusDistribution},
		{"department", &st.DepartmentDistribution},
		{"appointment_type", &st.TypeDistribution},
		{"location", &st.LocationDistribution},
	}
	for _, d := range distributions {
		buckets, err := s.appointments.Distribution(ctx, d.column)
		if err != nil {
			return nil, fmt.Errorf("%s distribution: %w", d.column, err)
		}
		if buckets == nil {
			buckets = []Bucket{}
		}
		*d.dst = buckets
	}
	return st, nil
}
