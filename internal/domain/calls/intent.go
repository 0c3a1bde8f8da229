package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/healthops/healthops/internal/platform/llm"
)

// Classifier answers a chat-completion request. *llm.Client satisfies it.
type Classifier interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type keywordRule struct {
	keywords []string
	result   Detection
}

// keywordRules are checked in order; the first rule with any keyword
// occurring in the message wins.
var keywordRules = []keywordRule{
	{
		keywords: []string{"emergency", "urgent", "pain", "accident", "immediate", "help", "critical", "serious"},
		result: Detection{
			Intent:     IntentEmergency,
			Confidence: 0.9,
			NextAction: "transfer_to_emergency",
			Message:    "Emergency detected. Transferring to emergency services.",
		},
	},
	{
		keywords: []string{"appointment", "book", "schedule", "doctor", "consultation", "visit", "checkup", "meet", "slot", "available"},
		result: Detection{
			Intent:     IntentAppointmentBooking,
			Confidence: 0.8,
			NextAction: "collect_patient_info",
			Message:    "Appointment booking intent detected. Will collect patient information.",
		},
	},
	{
		keywords: []string{"status", "when", "time", "reschedule", "cancel", "change", "confirm"},
		result: Detection{
			Intent:     IntentAppointmentQuery,
			Confidence: 0.7,
			NextAction: "get_appointment_details",
			Message:    "Appointment query detected. Will help with appointment information.",
		},
	},
}

// FallbackDetection is returned when neither keywords nor the classifier
// produce a usable answer.
var FallbackDetection = Detection{
	Intent:     IntentGeneralInquiry,
	Confidence: 0.5,
	NextAction: "general_assistance",
	Message:    "How can I help you today?",
}

const classifierPrompt = `Analyze the following healthcare call message and determine the intent.

Message: %q

Answer with a JSON object of exactly this shape:
{"intent": "<one of: appointment_booking, appointment_query, general_inquiry, emergency, prescription_refill, test_results, other>",
 "confidence": <number between 0.0 and 1.0>,
 "next_action": "<suggested next action>",
 "message": "<brief explanation>"}

Intent definitions:
- appointment_booking: patient wants to schedule a new appointment
- appointment_query: patient asking about existing appointments
- emergency: medical emergency requiring immediate attention
- prescription_refill: patient needs a prescription refill
- test_results: patient asking about lab or test results
- general_inquiry: general questions about hospital services
- other: does not fit the other categories`

type IntentDetector struct {
	classifier Classifier
	logger     zerolog.Logger
}

// NewIntentDetector returns a detector that consults classifier only when no
// keyword matches. classifier may be nil.
func NewIntentDetector(classifier Classifier, logger zerolog.Logger) *IntentDetector {
	return &IntentDetector{classifier: classifier, logger: logger}
}

// Detect classifies message. It never fails: every error path yields
// FallbackDetection.
func (d *IntentDetector) Detect(ctx context.Context, message string) Detection {
	lower := strings.ToLower(message)
	for _, rule := range keywordRules {
		if lo.SomeBy(rule.keywords, func(k string) bool { return strings.Contains(lower, k) }) {
			return rule.result
		}
	}
	if d.classifier == nil || strings.TrimSpace(message) == "" {
		return FallbackDetection
	}
	return d.classify(ctx, message)
}

func (d *IntentDetector) classify(ctx context.Context, message string) Detection {
	answer, err := d.classifier.Complete(ctx, llm.CompletionRequest{
		Messages:       []llm.Message{{Role: "user", Content: fmt.Sprintf(classifierPrompt, message)}},
		Temperature:    0.2,
		MaxTokens:      200,
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("intent classifier failed")
		return FallbackDetection
	}

	var out Detection
	if err := json.Unmarshal([]byte(stripCodeFence(answer)), &out); err != nil {
		d.logger.Warn().Err(err).Msg("intent classifier answer is not JSON")
		return FallbackDetection
	}
	if !out.Intent.Valid() {
		d.logger.Warn().Str("intent", string(out.Intent)).Msg("intent classifier answered an unknown intent")
		return FallbackDetection
	}
	out.Confidence = min(max(out.Confidence, 0), 1)
	if out.NextAction == "" {
		out.NextAction = FallbackDetection.NextAction
	}
	return out
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
