package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/healthops/healthops/internal/platform/voiceai"
)

const maxIDAttempts = 3

var validModes = []string{ModeAudio, ModeInPerson}

type Service struct {
	doctors DoctorRepository
	logger  zerolog.Logger
	newID   func() string
}

func NewService(doctors DoctorRepository, logger zerolog.Logger) *Service {
	return &Service{doctors: doctors, logger: logger, newID: generateDoctorID}
}

func generateDoctorID() string {
	return "DOC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Doctor, error) {
	var problems []string
	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(req.Specialty) == "" {
		problems = append(problems, "specialty is required")
	}
	modes := lo.Uniq(lo.Map(req.AvailableModes, func(m string, _ int) string {
		return strings.ToLower(strings.TrimSpace(m))
	}))
	if bad := lo.Without(modes, validModes...); len(bad) > 0 {
		problems = append(problems, fmt.Sprintf("unsupported available_modes %v, use audio or in_person", bad))
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	d := &Doctor{
		DoctorID:       strings.TrimSpace(req.DoctorID),
		Name:           strings.TrimSpace(req.Name),
		Specialty:      strings.TrimSpace(req.Specialty),
		Department:     optional(req.Department),
		Gender:         optional(req.Gender),
		Location:       optional(req.Location),
		Email:          optional(strings.ToLower(req.Email)),
		AvailableModes: modes,
	}

	// A caller-chosen id is never replaced; a generated one is retried.
	generated := d.DoctorID == ""
	for attempt := 1; ; attempt++ {
		if generated {
			d.DoctorID = s.newID()
		}
		err := s.doctors.Create(ctx, d)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDoctorIDConflict) && !generated {
			return nil, &ValidationError{Problems: []string{"doctor_id " + d.DoctorID + " already exists"}}
		}
		if !errors.Is(err, ErrDoctorIDConflict) || attempt == maxIDAttempts {
			return nil, fmt.Errorf("create doctor: %w", err)
		}
	}

	s.logger.Info().Str("doctor_id", d.DoctorID).Str("specialty", d.Specialty).Msg("doctor added")
	return d, nil
}

func (s *Service) Get(ctx context.Context, doctorID string) (*Doctor, error) {
	return s.doctors.GetByDoctorID(ctx, strings.TrimSpace(doctorID))
}

func (s *Service) List(ctx context.Context, specialty string) ([]*Doctor, error) {
	return s.doctors.List(ctx, strings.TrimSpace(specialty))
}

// NameOf returns the display name of a doctor. found is false for an unknown
// id.
func (s *Service) NameOf(ctx context.Context, doctorID string) (string, bool, error) {
	d, err := s.doctors.GetByDoctorID(ctx, doctorID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d.Name, true, nil
}

// Roster lists every doctor in the form the voice agent prompt uses.
func (s *Service) Roster(ctx context.Context) ([]voiceai.Doctor, error) {
	doctors, err := s.doctors.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return lo.Map(doctors, func(d *Doctor, _ int) voiceai.Doctor {
		return voiceai.Doctor{Name: d.Name, Department: d.DepartmentOrSpecialty()}
	}), nil
}
