package voiceai

import (
	"fmt"
	"net/http"
	"strings"
)

// Variant selects which call configuration is built.
type Variant string

const (
	VariantGeneral     Variant = "general"
	VariantAppointment Variant = "appointment"
	VariantEmergency   Variant = "emergency"
)

// ParseVariant maps a call_type value onto a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantGeneral, VariantAppointment, VariantEmergency:
		return v, nil
	case "":
		return VariantGeneral, nil
	default:
		return "", fmt.Errorf("call_type must be one of general, appointment, emergency")
	}
}

const (
	defaultModel = "fixie-ai/ultravox-gemma3-27b-preview"
	defaultVoice = "Saavi-English-Indian"

	locationBody  = "PARAMETER_LOCATION_BODY"
	locationQuery = "PARAMETER_LOCATION_QUERY"
)

// Departments offered to the availability tool.
var Departments = []string{"Cardiology", "ent", "Dermatologist", "General", "orthopedics", "pediatrics", "neurology"}

// Builder assembles call configurations. PublicBaseURL is where the provider
// reaches this service's tool endpoints; AvailabilityURL is the external
// slot-lookup service.
type Builder struct {
	PublicBaseURL   string
	AvailabilityURL string
}

// Build returns the configuration for variant with a system prompt listing
// doctors.
func (b Builder) Build(variant Variant, doctors []Doctor) *CallConfig {
	prompt := SystemPrompt(doctors)
	tools := []SelectedTool{
		b.createPatientTool(),
		b.searchPatientTool(),
		b.availabilityTool(),
		b.scheduleAppointmentTool(),
		{ToolName: "hangUp"},
	}

	switch variant {
	case VariantEmergency:
		prompt = emergencyPreamble + prompt
	case VariantAppointment:
		tools = []SelectedTool{
			b.searchPatientTool(),
			b.availabilityTool(),
			b.scheduleAppointmentTool(),
			{ToolName: "hangUp"},
		}
	}

	return &CallConfig{
		SystemPrompt: prompt,
		Model:        defaultModel,
		Voice:        defaultVoice,
		InactivityMessages: []InactivityMessage{
			{Duration: "10s", Message: "Are you still there?"},
			{Duration: "5s", Message: "If there's nothing else, may I end the call?"},
			{Duration: "1s", Message: "Thank you for calling. Have a great day. Goodbye.", EndBehavior: "END_BEHAVIOR_HANG_UP_SOFT"},
		},
		ExperimentalSettings: ExperimentalSettings{
			BackgroundNoiseFilter: true,
			DynamicEndpointing:    true,
		},
		Temperature:  0.1,
		FirstSpeaker: "FIRST_SPEAKER_AGENT",
		LanguageHint: "en-IN",
		Medium:       Medium{Exotel: &struct{}{}},
		VADSettings: VADSettings{
			TurnEndpointDelay:           "0.480s",
			MinimumTurnDuration:         "0s",
			MinimumInterruptionDuration: "0.09s",
			FrameActivationThreshold:    0.1,
		},
		SelectedTools: tools,
	}
}

func bodyParam(name, description string, required bool) DynamicParameter {
	return DynamicParameter{
		Name:     name,
		Location: locationBody,
		Schema:   ParameterSchema{Type: "string", Description: description},
		Required: required,
	}
}

func httpTool(name, description, url string, automatic []AutomaticParameter, params ...DynamicParameter) SelectedTool {
	if automatic == nil {
		automatic = []AutomaticParameter{}
	}
	return SelectedTool{TemporaryTool: &TemporaryTool{
		ModelToolName:       name,
		Description:         description,
		AutomaticParameters: automatic,
		DynamicParameters:   params,
		HTTP:                ToolHTTP{BaseURLPattern: url, HTTPMethod: http.MethodPost},
	}}
}

func (b Builder) url(path string) string {
	return strings.TrimRight(b.PublicBaseURL, "/") + path
}

func (b Builder) createPatientTool() SelectedTool {
	return httpTool("create_patient",
		"Register a new patient. Use only after collecting every required detail from a caller who is not registered.",
		b.url("/patients/create"), nil,
		bodyParam("fullName", "Patient's full name", true),
		bodyParam("contactNumber", "Patient's primary contact number", true),
		bodyParam("dateOfBirth", "Date of birth as DD-MM-YYYY", true),
		bodyParam("gender", "Patient's gender", true),
		bodyParam("locality", "Patient's locality", true),
	)
}

func (b Builder) searchPatientTool() SelectedTool {
	return httpTool("search_patient",
		"Look up an existing patient by patient id, or by contact number and full name.",
		b.url("/patients/search"), nil,
		bodyParam("patientId", "Patient id to look up", false),
		bodyParam("contactNumber", "Contact number to look up", false),
		bodyParam("fullName", "Full name to look up", false),
	)
}

func (b Builder) availabilityTool() SelectedTool {
	department := bodyParam("department", "Medical department, for example Cardiology or General", true)
	department.Schema.Enum = Departments

	query := func(name, description, example string, required bool) DynamicParameter {
		return DynamicParameter{
			Name:     name,
			Location: locationQuery,
			Schema:   ParameterSchema{Type: "string", Description: description, Example: example},
			Required: required,
		}
	}

	return httpTool("checkDoctorAvailability",
		"List open slots for a doctor around the caller's preferred date and time.",
		strings.TrimRight(b.AvailabilityURL, "/")+"/available-slots", nil,
		bodyParam("doctor_name", "Full name of the doctor the caller chose", true),
		department,
		query("start_date", "Preferred date as YYYY-MM-DD, or the words today, tomorrow or dayaftertomorrow passed through unchanged", "2025-06-17", true),
		query("start_time", "Earliest acceptable time as HH:MM (24-hour)", "12:00", false),
		query("end_time", "Latest acceptable time as HH:MM (24-hour)", "18:00", false),
	)
}

func (b Builder) scheduleAppointmentTool() SelectedTool {
	appointmentType := bodyParam("appointmentType", "Type of appointment", true)
	appointmentType.Schema.Enum = []string{"Consultation", "Follow-up", "Emergency", "Checkup"}
	source := bodyParam("bookingSource", "Source of the booking", true)
	source.Schema.Enum = []string{"online", "app", "website", "phone", "walk-in"}

	return httpTool("schedule_appointment",
		"Book an appointment for a patient that already exists, using a slot returned by checkDoctorAvailability.",
		b.url("/healthcare/appointments/create"),
		[]AutomaticParameter{{Name: "uvx_id", Location: locationBody, KnownValue: "KNOWN_PARAM_CALL_ID"}},
		bodyParam("patient_id", "Patient id", true),
		bodyParam("patient_name", "Patient name", true),
		bodyParam("department", "Department for the appointment", true),
		bodyParam("preferredDate", "Appointment date as YYYY-MM-DD", true),
		bodyParam("preferredTime", "Appointment time as HH:MM", true),
		appointmentType,
		source,
		bodyParam("symptoms", "Symptoms or reason for the visit", false),
		bodyParam("doctorPreference", "Doctor the caller asked for, if any", false),
		bodyParam("doctorId", "Doctor id returned by checkDoctorAvailability", true),
		bodyParam("doctorName", "Doctor name returned by checkDoctorAvailability", true),
		bodyParam("Location", "Hospital location", true),
	)
}
