package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound                = errors.New("appointment not found")
	ErrPatientNotFound         = errors.New("patient not found")
	ErrDoctorNotFound          = errors.New("doctor not found")
	ErrTerminalStatus          = errors.New("appointment is already closed")
	ErrAppointmentIDConflict   = errors.New("appointment id already assigned")
	ErrCancellationNeedsReason = errors.New("cancellation reason is required when cancelling an appointment")
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

var validStatuses = map[AppointmentStatus]bool{
	StatusScheduled:   true,
	StatusConfirmed:   true,
	StatusCancelled:   true,
	StatusCompleted:   true,
	StatusRescheduled: true,
}

func ParseStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !validStatuses[st] {
		return "", fmt.Errorf("invalid appointment status: %s", s)
	}
	return st, nil
}

// Terminal reports whether no further status change is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type AppointmentType string

const (
	TypeConsultation   AppointmentType = "Consultation"
	TypeFollowUp       AppointmentType = "Follow-up"
	TypeEmergency      AppointmentType = "Emergency"
	TypeCheckup        AppointmentType = "Checkup"
	TypeRoutineCheckup AppointmentType = "Routine Checkup"
)

var validTypes = map[AppointmentType]bool{
	TypeConsultation:   true,
	TypeFollowUp:       true,
	TypeEmergency:      true,
	TypeCheckup:        true,
	TypeRoutineCheckup: true,
}

func ParseAppointmentType(s string) (AppointmentType, error) {
	t := AppointmentType(strings.TrimSpace(s))
	if !validTypes[t] {
		return "", fmt.Errorf("invalid appointment type: %s", s)
	}
	return t, nil
}

// BookingSource records the channel an appointment was booked through.
type BookingSource string

const (
	SourceOnline  BookingSource = "online"
	SourceApp     BookingSource = "app"
	SourceWebsite BookingSource = "website"
	SourcePhone   BookingSource = "phone"
	SourceWalkIn  BookingSource = "walk-in"
	SourceVoice   BookingSource = "voice"
)

var validSources = map[BookingSource]bool{
	SourceOnline:  true,
	SourceApp:     true,
	SourceWebsite: true,
	SourcePhone:   true,
	SourceWalkIn:  true,
	SourceVoice:   true,
}

func ParseBookingSource(s string) (BookingSource, error) {
	src := BookingSource(strings.ToLower(strings.TrimSpace(s)))
	if !validSources[src] {
		return "", fmt.Errorf("invalid booking source: %s", s)
	}
	return src, nil
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	AppointmentID      string            `db:"appointment_id" json:"appointment_id"`
	PatientID          string            `db:"patient_id" json:"patient_id"`
	PatientName        string            `db:"patient_name" json:"patient_name"`
	Department         string            `db:"department" json:"department"`
	PreferredDate      string            `db:"preferred_date" json:"preferred_date"`
	PreferredTime      string            `db:"preferred_time" json:"preferred_time"`
	AppointmentType    AppointmentType   `db:"appointment_type" json:"appointment_type"`
	Status             AppointmentStatus `db:"status" json:"status"`
	Symptoms           *string           `db:"symptoms" json:"symptoms,omitempty"`
	DoctorID           *string           `db:"doctor_id" json:"doctor_id,omitempty"`
	DoctorName         *string           `db:"doctor_name" json:"doctor_name,omitempty"`
	DoctorPreference   *string           `db:"doctor_preference" json:"doctor_preference,omitempty"`
	Location           *string           `db:"location" json:"location,omitempty"`
	BookingSource      BookingSource     `db:"booking_source" json:"booking_source"`
	VoiceCallID        *string           `db:"voice_call_id" json:"voice_call_id,omitempty"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ConfirmedAt        *time.Time        `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// BookingRequest is the payload of the voice agent's schedule_appointment
// tool and of the staff booking screen.
type BookingRequest struct {
	PatientID        string `json:"patient_id"`
	PatientName      string `json:"patient_name"`
	Department       string `json:"department"`
	VoiceCallID      string `json:"uvx_id"`
	PreferredDate    string `json:"preferredDate"`
	PreferredTime    string `json:"preferredTime"`
	AppointmentType  string `json:"appointmentType"`
	Symptoms         string `json:"symptoms"`
	DoctorPreference string `json:"doctorPreference"`
	DoctorID         string `json:"doctorId"`
	DoctorName       string `json:"doctorName"`
	Location         string `json:"Location"`
	BookingSource    string `json:"bookingSource"`
}

type RescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	PreferredDate string `json:"preferred_date"`
	PreferredTime string `json:"preferred_time"`
}

type CancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// StatusChange is a request to move an appointment to Status.
type StatusChange struct {
	Status    string `json:"status"`
	Reason    string `json:"cancellation_reason"`
	UpdatedBy string `json:"-"`
}

// AppointmentUpdate carries the fields a partial update may set. nil means
// unchanged.
type AppointmentUpdate struct {
	PatientID        *string `json:"patient_id,omitempty"`
	PatientName      *string `json:"patient_name,omitempty"`
	Department       *string `json:"department,omitempty"`
	PreferredDate    *string `json:"preferred_date,omitempty"`
	PreferredTime    *string `json:"preferred_time,omitempty"`
	AppointmentType  *string `json:"appointment_type,omitempty"`
	Symptoms         *string `json:"symptoms,omitempty"`
	DoctorID         *string `json:"doctor_id,omitempty"`
	DoctorName       *string `json:"doctor_name,omitempty"`
	DoctorPreference *string `json:"doctor_preference,omitempty"`
	Status           *string `json:"status,omitempty"`
	Location         *string `json:"location,omitempty"`
}

// EditRequest is an AppointmentUpdate addressed by id in the body.
type EditRequest struct {
	AppointmentID string `json:"appointment_id"`
	AppointmentUpdate
}

// History actions.
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionStatusChanged = "status_changed"
	ActionRescheduled   = "rescheduled"
)

// HistoryEntry is one append-only record in the appointment history log.
type HistoryEntry struct {
	AppointmentID string            `bson:"appointment_id" json:"appointment_id"`
	Action        string            `bson:"action" json:"action"`
	OldStatus     AppointmentStatus `bson:"old_status,omitempty" json:"old_status,omitempty"`
	NewStatus     AppointmentStatus `bson:"new_status,omitempty" json:"new_status,omitempty"`
	Reason        string            `bson:"reason,omitempty" json:"reason,omitempty"`
	UpdatedFields []string          `bson:"updated_fields,omitempty" json:"updated_fields,omitempty"`
	OldDate       string            `bson:"old_date,omitempty" json:"old_date,omitempty"`
	OldTime       string            `bson:"old_time,omitempty" json:"old_time,omitempty"`
	NewDate       string            `bson:"new_date,omitempty" json:"new_date,omitempty"`
	NewTime       string            `bson:"new_time,omitempty" json:"new_time,omitempty"`
	UpdatedBy     string            `bson:"updated_by" json:"updated_by"`
	Timestamp     time.Time         `bson:"timestamp" json:"timestamp"`
}

// ListFilter narrows appointment listings. Slice fields match any of their
// values; empty fields are ignored.
type ListFilter struct {
	DateFrom    string
	DateTo      string
	Statuses    []string
	Types       []string
	Departments []string
	Location    string
	PatientID   string
	DoctorID    string
	Search      string
	SortBy      string
	SortOrder   string
}

// Bucket is one value of a distribution with its count.
type Bucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type Stats struct {
	TotalAppointments      int       `json:"total_appointments"`
	TodayAppointments      int       `json:"today_appointments"`
	WeekAppointments       int       `json:"week_appointments"`
	StatusDistribution     []Bucket  `json:"status_distribution"`
	DepartmentDistribution []Bucket  `json:"department_distribution"`
	TypeDistribution       []Bucket  `json:"appointment_type_distribution"`
	LocationDistribution   []Bucket  `json:"location_distribution"`
	GeneratedAt            time.Time `json:"generated_at"`
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
