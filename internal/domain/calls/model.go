package calls

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrCallbackNotFound     = errors.New("callback not found")
	ErrCallbackNotScheduled = errors.New("callback already executed or cancelled")
	ErrCallbackNotDue       = errors.New("callback is not due yet")
	ErrSummaryNotFound      = errors.New("call summary not found")
)

// Intent is the closed set of reasons a caller can have.
type Intent string

const (
	IntentAppointmentBooking Intent = "appointment_booking"
	IntentAppointmentQuery   Intent = "appointment_query"
	IntentGeneralInquiry     Intent = "general_inquiry"
	IntentEmergency          Intent = "emergency"
	IntentPrescriptionRefill Intent = "prescription_refill"
	IntentTestResults        Intent = "test_results"
	IntentOther              Intent = "other"
)

var knownIntents = map[Intent]bool{
	IntentAppointmentBooking: true,
	IntentAppointmentQuery:   true,
	IntentGeneralInquiry:     true,
	IntentEmergency:          true,
	IntentPrescriptionRefill: true,
	IntentTestResults:        true,
	IntentOther:              true,
}

func (i Intent) Valid() bool {
	return knownIntents[i]
}

// Detection is the outcome of classifying a caller's opening message.
type Detection struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	NextAction string  `json:"next_action"`
	Message    string  `json:"message"`
}

// Call log statuses.
const (
	CallInitiated  = "initiated"
	CallAnswered   = "answered"
	CallInProgress = "in_progress"
	CallCompleted  = "completed"
)

// CallLog is one document in the call log collection. Fields are filled
// progressively as the call moves through intent detection, summary and
// callback scheduling.
type CallLog struct {
	ID                string     `bson:"_id" json:"id"`
	CallSID           string     `bson:"call_sid,omitempty" json:"call_sid,omitempty"`
	CallID            string     `bson:"call_id,omitempty" json:"call_id,omitempty"`
	UltravoxCallID    string     `bson:"ultravox_call_id,omitempty" json:"ultravox_call_id,omitempty"`
	PhoneNumber       string     `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	CallType          string     `bson:"call_type,omitempty" json:"call_type,omitempty"`
	CallStatus        string     `bson:"call_status" json:"call_status"`
	CallIntent        Intent     `bson:"call_intent,omitempty" json:"call_intent,omitempty"`
	CallSummary       string     `bson:"call_summary,omitempty" json:"call_summary,omitempty"`
	CallOutcome       string     `bson:"call_outcome,omitempty" json:"call_outcome,omitempty"`
	PatientID         string     `bson:"patient_id,omitempty" json:"patient_id,omitempty"`
	PatientCreated    bool       `bson:"patient_created" json:"patient_created"`
	SummarySavedAt    *time.Time `bson:"summary_saved_at,omitempty" json:"summary_saved_at,omitempty"`
	CallbackScheduled bool       `bson:"callback_scheduled" json:"callback_scheduled"`
	CallbackID        string     `bson:"callback_id,omitempty" json:"callback_id,omitempty"`
	CallbackTime      *time.Time `bson:"callback_time,omitempty" json:"callback_time,omitempty"`
	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
}

// Summary is what the voice agent reports when a call ends.
type Summary struct {
	CallID    string    `json:"callId"`
	Summary   string    `json:"summary"`
	Intent    string    `json:"intent,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	PatientID string    `json:"patient_id,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// Callback statuses.
const (
	CallbackScheduled = "scheduled"
	CallbackExecuting = "executing"
	CallbackCompleted = "completed"
	CallbackFailed    = "failed"
)

type Callback struct {
	ID                 string     `bson:"_id" json:"id"`
	OriginalCallID     string     `bson:"original_call_id" json:"original_call_id"`
	PatientName        string     `bson:"patient_name" json:"patient_name"`
	ContactNumber      string     `bson:"contact_number" json:"contact_number"`
	CallbackTime       time.Time  `bson:"callback_time" json:"callback_time"`
	Reason             string     `bson:"reason" json:"reason"`
	Status             string     `bson:"status" json:"status"`
	CallbackType       string     `bson:"callback_type" json:"callback_type"`
	UltravoxCallID     string     `bson:"ultravox_call_id,omitempty" json:"ultravox_call_id,omitempty"`
	FailureReason      string     `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt          time.Time  `bson:"created_at" json:"created_at"`
	ExecutionStartedAt *time.Time `bson:"execution_started_at,omitempty" json:"execution_started_at,omitempty"`
	ExecutedAt         *time.Time `bson:"executed_at,omitempty" json:"executed_at,omitempty"`
	FailedAt           *time.Time `bson:"failed_at,omitempty" json:"failed_at,omitempty"`
}

type DetectIntentRequest struct {
	CallID      string `json:"call_id"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

type SaveSummaryRequest struct {
	CallID    string `json:"callId"`
	Summary   string `json:"summary"`
	Intent    string `json:"intent"`
	Outcome   string `json:"outcome"`
	PatientID string `json:"patient_id"`
}

type ScheduleCallbackRequest struct {
	CallID        string `json:"call_id"`
	PatientName   string `json:"patient_name"`
	ContactNumber string `json:"contact_number"`
	CallbackTime  string `json:"callback_time"`
	Reason        string `json:"reason"`
}

// StartedCall is returned when an outbound or inbound call is created.
type StartedCall struct {
	JoinURL        string `json:"join_url"`
	UltravoxCallID string `json:"ultravox_call_id"`
	CallType       string `json:"call_type"`
}

type LogFilter struct {
	CallType string
	DateFrom string
	DateTo   string
}

// IntentCount is one row of the intent distribution.
type IntentCount struct {
	Intent string `bson:"_id" json:"intent"`
	Count  int    `bson:"count" json:"count"`
}

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
