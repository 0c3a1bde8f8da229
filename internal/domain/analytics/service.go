// Package analytics aggregates dashboard metrics across patients,
// appointments and calls.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

type PatientCounter interface {
	CountActive(ctx context.Context) (int, error)
	CountRegistered(ctx context.Context, from, to time.Time) (int, error)
}

type AppointmentCounter interface {
	Count(ctx context.Context) (int, error)
	CountCreated(ctx context.Context, from, to time.Time) (int, error)
}

type IntentCounter interface {
	IntentDistribution(ctx context.Context, from, to time.Time) (map[string]int, error)
}

type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

type Metrics struct {
	TotalPatients     int `json:"total_patients"`
	NewPatients       int `json:"new_patients"`
	TotalAppointments int `json:"total_appointments"`
	NewAppointments   int `json:"new_appointments"`
}

type CallAnalytics struct {
	IntentDistribution map[string]int `json:"intent_distribution"`
}

type Dashboard struct {
	DateRange     DateRange     `json:"date_range"`
	Metrics       Metrics       `json:"metrics"`
	CallAnalytics CallAnalytics `json:"call_analytics"`
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

type Service struct {
	patients     PatientCounter
	appointments AppointmentCounter
	intents      IntentCounter
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(patients PatientCounter, appointments AppointmentCounter, intents IntentCounter, logger zerolog.Logger) *Service {
	return &Service{
		patients:     patients,
		appointments: appointments,
		intents:      intents,
		logger:       logger,
		now:          time.Now,
	}
}

// Range resolves the dashboard window. Both bounds given select whole days
// from dateFrom to dateTo inclusive; otherwise the window runs from the first
// of the current month to now.
func (s *Service) Range(dateFrom, dateTo string) (DateRange, error) {
	now := s.now()
	if dateFrom == "" || dateTo == "" {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return DateRange{Start: start, End: now}, nil
	}

	var problems []string
	start, err := time.ParseInLocation(dateLayout, dateFrom, now.Location())
	if err != nil {
		problems = append(problems, "date_from must be YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, dateTo, now.Location())
	if err != nil {
		problems = append(problems, "date_to must be YYYY-MM-DD")
	}
	if len(problems) == 0 && end.Before(start) {
		problems = append(problems, "date_to must not be before date_from")
	}
	if len(problems) > 0 {
		return DateRange{}, &ValidationError{Problems: problems}
	}
	return DateRange{Start: start, End: end.AddDate(0, 0, 1).Add(-time.Nanosecond)}, nil
}

func (s *Service) Dashboard(ctx context.Context, dateFrom, dateTo string) (*Dashboard, error) {
	r, err := s.Range(dateFrom, dateTo)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{DateRange: r}
	if d.Metrics.TotalPatients, err = s.patients.CountActive(ctx); err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	if d.Metrics.NewPatients, err = s.patients.CountRegistered(ctx, r.Start, r.End); err != nil {
		return nil, fmt.Errorf("count new patients: %w", err)
	}
	if d.Metrics.TotalAppointments, err = s.appointments.Count(ctx); err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	if d.Metrics.NewAppointments, err = s.appointments.CountCreated(ctx, r.Start, r.End); err != nil {
		return nil, fmt.Errorf("count new appointments: %w", err)
	}
	dist, err := s.intents.IntentDistribution(ctx, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("intent distribution: %w", err)
	}
	if dist == nil {
		dist = map[string]int{}
	}
	d.CallAnalytics.IntentDistribution = dist

	s.logger.Debug().Time("from", r.Start).Time("to", r.End).Msg("dashboard generated")
	return d, nil
}
