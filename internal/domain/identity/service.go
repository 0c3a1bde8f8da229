package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DOBLayout is the DD-MM-YYYY layout dates of birth are stored in.
const DOBLayout = "02-01-2006"

const (
	maxAge            = 150
	minLocalityLength = 5
	maxIDAttempts     = 3

	// Column widths of the patients table.
	maxContactDigits  = 15
	maxNameLength     = 255
	maxLocalityLength = 255
)

type Service struct {
	patients     PatientRepository
	appointments AppointmentCounter
	resolver     *Resolver
	ids          *IDGenerator
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(patients PatientRepository, counters CounterStore, appointments AppointmentCounter, failClosed bool, logger zerolog.Logger) *Service {
	return &Service{
		patients:     patients,
		appointments: appointments,
		resolver:     NewResolver(patients, failClosed, logger),
		ids:          NewIDGenerator(counters, logger),
		logger:       logger,
		now:          time.Now,
	}
}

// CalculateAge returns whole years between dob and now.
func CalculateAge(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// parseDOB validates a DD-MM-YYYY date and returns the derived age.
func (s *Service) parseDOB(value string) (int, string) {
	dob, err := time.ParseInLocation(DOBLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return 0, "Invalid date of birth format. Use DD-MM-YYYY"
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if dob.After(today) {
		return 0, "Date of birth cannot be in the future"
	}
	age := CalculateAge(dob, now)
	if age > maxAge {
		return 0, "Age calculated from date of birth exceeds 150 years"
	}
	return age, ""
}

func (s *Service) validateRegistration(req *RegistrationRequest) (Gender, int, error) {
	var problems []string
	required := []struct{ name, value string }{
		{"fullName", req.FullName},
		{"contactNumber", req.ContactNumber},
		{"dateOfBirth", req.DateOfBirth},
		{"gender", req.Gender},
		{"locality", req.Locality},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			problems = append(problems, f.name+" is required")
		}
	}

	if req.ContactNumber != "" && ContactDigits(req.ContactNumber) < MinContactDigits {
		problems = append(problems, "Contact number must be at least 10 digits")
	}
	if ContactDigits(req.ContactNumber) > maxContactDigits {
		problems = append(problems, "Contact number must be at most 15 digits")
	}
	if ContactDigits(req.EmergencyContactNumber) > maxContactDigits {
		problems = append(problems, "Emergency contact number must be at most 15 digits")
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.FullName)) > maxNameLength {
		problems = append(problems, "fullName must be at most 255 characters")
	}

	var age int
	if req.DateOfBirth != "" {
		var msg string
		if age, msg = s.parseDOB(req.DateOfBirth); msg != "" {
			problems = append(problems, msg)
		}
	}

	gender, err := ParseGender(req.Gender)
	if req.Gender != "" && err != nil {
		problems = append(problems, "Gender must be Male, Female, or Other")
	}

	if req.Locality != "" && len(strings.TrimSpace(req.Locality)) < minLocalityLength {
		problems = append(problems, "Locality isn't correct.")
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Locality)) > maxLocalityLength {
		problems = append(problems, "Locality must be at most 255 characters")
	}

	if len(problems) > 0 {
		return "", 0, &ValidationError{Problems: problems}
	}
	return gender, age, nil
}

// Register validates req, runs the duplicate check and stores a new patient.
// An exact match returns a *DuplicateError carrying the existing id; a
// family-member match is allowed and flagged on the result.
func (s *Service) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	gender, age, err := s.validateRegistration(&req)
	if err != nil {
		return nil, err
	}

	existing, err := s.resolver.Resolve(ctx, Query{ContactNumber: req.ContactNumber, FullName: req.FullName})
	if err != nil {
		return nil, err
	}

	result := &RegistrationResult{}
	switch Classify(existing, req.FullName, req.DateOfBirth) {
	case MatchExact:
		s.logger.Info().Str("patient_id", existing.PatientID).Msg("registration rejected as duplicate")
		return nil, &DuplicateError{PatientID: existing.PatientID}
	case MatchFamilyMember:
		s.logger.Info().
			Str("matched_patient_id", existing.PatientID).
			Msg("family member registration sharing a contact number")
		result.FamilyMemberMatch = true
		result.MatchedPatientID = existing.PatientID
	}

	now := s.now().UTC()
	p := &Patient{
		FullName:           strings.TrimSpace(req.FullName),
		ContactNumber:      SanitizeContact(req.ContactNumber),
		DateOfBirth:        strings.TrimSpace(req.DateOfBirth),
		Age:                age,
		Gender:             gender,
		RegisteredLocation: strings.TrimSpace(req.Locality),
		IsActive:           true,
		CreatedBy:          strings.TrimSpace(req.CreatedBy),
		RegistrationDate:   now,
	}
	if p.CreatedBy == "" {
		p.CreatedBy = "system"
	}
	if e := SanitizeContact(req.EmergencyContactNumber); e != "" {
		p.EmergencyNumber = &e
	}

	// A conflict draws a fresh id. Timestamp fallback ids repeat within the
	// same second, so a repeated id gets an attempt suffix.
	var last string
	for attempt := 1; ; attempt++ {
		id := s.ids.Generate(ctx)
		p.PatientID = id
		if id == last {
			p.PatientID = fmt.Sprintf("%s-%d", id, attempt)
		}
		last = id
		err = s.patients.Create(ctx, p)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrPatientIDConflict) || attempt == maxIDAttempts {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		s.logger.Warn().Str("patient_id", p.PatientID).Msg("patient id conflict, retrying")
	}

	s.logger.Info().Str("patient_id", p.PatientID).Msg("patient registered")
	result.Patient = p
	return result, nil
}

// Search resolves a partial identity. It returns nil when nothing matches.
func (s *Service) Search(ctx context.Context, q Query) (*Patient, error) {
	return s.resolver.Resolve(ctx, q)
}

func (s *Service) Get(ctx context.Context, patientID string) (*PatientDetail, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, &ValidationError{Problems: []string{"patient_id is required"}}
	}
	p, err := s.patients.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	count, err := s.appointments.CountByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	return &PatientDetail{Patient: p, AppointmentCount: count}, nil
}

// Update merges the set fields of u into the active patient.
func (s *Service) Update(ctx context.Context, patientID string, u PatientUpdate) (*Patient, error) {
	if u.Empty() {
		return nil, &ValidationError{Problems: []string{"Update data is required"}}
	}
	p, err := s.patients.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var problems []string
	if u.FullName != nil {
		if strings.TrimSpace(*u.FullName) == "" {
			problems = append(problems, "full_name cannot be empty")
		}
		if utf8.RuneCountInString(strings.TrimSpace(*u.FullName)) > maxNameLength {
			problems = append(problems, "full_name must be at most 255 characters")
		}
		p.FullName = strings.TrimSpace(*u.FullName)
	}
	if u.ContactNumber != nil {
		if ContactDigits(*u.ContactNumber) < MinContactDigits {
			problems = append(problems, "Contact number must be at least 10 digits")
		}
		if ContactDigits(*u.ContactNumber) > maxContactDigits {
			problems = append(problems, "Contact number must be at most 15 digits")
		}
		p.ContactNumber = SanitizeContact(*u.ContactNumber)
	}
	if u.EmergencyContactNumber != nil {
		if ContactDigits(*u.EmergencyContactNumber) > maxContactDigits {
			problems = append(problems, "Emergency contact number must be at most 15 digits")
		}
		if e := SanitizeContact(*u.EmergencyContactNumber); e != "" {
			p.EmergencyNumber = &e
		} else {
			p.EmergencyNumber = nil
		}
	}
	if u.DateOfBirth != nil {
		age, msg := s.parseDOB(*u.DateOfBirth)
		if msg != "" {
			problems = append(problems, msg)
		}
		p.DateOfBirth = strings.TrimSpace(*u.DateOfBirth)
		p.Age = age
	}
	if u.Gender != nil {
		g, err := ParseGender(*u.Gender)
		if err != nil {
			problems = append(problems, "Gender must be Male, Female, or Other")
		}
		p.Gender = g
	}
	if u.RegisteredLocation != nil {
		if len(strings.TrimSpace(*u.RegisteredLocation)) < minLocalityLength {
			problems = append(problems, "Locality isn't correct.")
		}
		if utf8.RuneCountInString(strings.TrimSpace(*u.RegisteredLocation)) > maxLocalityLength {
			problems = append(problems, "Locality must be at most 255 characters")
		}
		p.RegisteredLocation = strings.TrimSpace(*u.RegisteredLocation)
	}
	if u.LastVisitDate != nil {
		p.LastVisitDate = u.LastVisitDate
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.PatientID).Msg("patient updated")
	return p, nil
}

// Deactivate soft-deletes a patient. Deactivated patients are excluded from
// lookups and listings.
func (s *Service) Deactivate(ctx context.Context, patientID string) error {
	if err := s.patients.Deactivate(ctx, patientID, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", patientID).Msg("patient deactivated")
	return nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, f, limit, offset)
}

// ActiveContact returns the contact number of an active patient. found is
// false when no active patient has this id.
func (s *Service) ActiveContact(ctx context.Context, patientID string) (string, bool, error) {
	p, err := s.patients.GetByPatientID(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.ContactNumber, true, nil
}
