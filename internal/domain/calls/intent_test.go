package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthops/healthops/internal/platform/llm"
)

type fakeClassifier struct {
	answer string
	err    error
	calls  int
	last   llm.CompletionRequest
}

func (f *fakeClassifier) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.calls++
	f.last = req
	return f.answer, f.err
}

func TestDetect_KeywordPriority(t *testing.T) {
	cls := &fakeClassifier{}
	d := NewIntentDetector(cls, zerolog.Nop())

	tests := []struct {
		message string
		want    Intent
	}{
		// "pain" outranks "appointment".
		{"I need an appointment, my chest pain is bad", IntentEmergency},
		{"Can I BOOK a consultation?", IntentAppointmentBooking},
		{"Can you confirm the date", IntentAppointmentQuery},
		// "reschedule" contains "schedule".
		{"I want to reschedule", IntentAppointmentBooking},
		{"what is the status of my visit", IntentAppointmentBooking},
	}
	for _, tt := range tests {
		if got := d.Detect(context.Background(), tt.message); got.Intent != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.message, got.Intent, tt.want)
		}
	}
	if cls.calls != 0 {
		t.Errorf("expected keyword matches to skip the classifier, got %d calls", cls.calls)
	}
}

func TestDetect_ClassifierAnswer(t *testing.T) {
	cls := &fakeClassifier{answer: "```json\n{\"intent\":\"prescription_refill\",\"confidence\":1.4,\"next_action\":\"route_to_pharmacy\",\"message\":\"refill\"}\n```"}
	d := NewIntentDetector(cls, zerolog.Nop())

	got := d.Detect(context.Background(), "my tablets are running out")
	if got.Intent != IntentPrescriptionRefill || got.Confidence != 1 || got.NextAction != "route_to_pharmacy" {
		t.Errorf("unexpected detection %+v", got)
	}
	if cls.last.Temperature != 0.2 || cls.last.MaxTokens != 200 {
		t.Errorf("unexpected classifier request %+v", cls.last)
	}
}

func TestDetect_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		cls  Classifier
	}{
		{"classifier error", &fakeClassifier{err: errors.New("boom")}},
		{"not json", &fakeClassifier{answer: "I think they want a refill"}},
		{"unknown intent", &fakeClassifier{answer: `{"intent":"billing","confidence":0.9}`}},
		{"no classifier", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewIntentDetector(tt.cls, zerolog.Nop())
			if got := d.Detect(context.Background(), "my tablets are running out"); got != FallbackDetection {
				t.Errorf("expected fallback, got %+v", got)
			}
		})
	}
}

func TestDetect_BlankMessageSkipsClassifier(t *testing.T) {
	cls := &fakeClassifier{answer: `{"intent":"other","confidence":0.9}`}
	d := NewIntentDetector(cls, zerolog.Nop())
	if got := d.Detect(context.Background(), "   "); got != FallbackDetection || cls.calls != 0 {
		t.Errorf("expected fallback without classifier call, got %+v after %d calls", got, cls.calls)
	}
}

func TestParseCallbackTime(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, 6, 15, 10, 20, 30, 0, loc)

	tests := []struct {
		raw  string
		want time.Time
	}{
		{"today 15:30", time.Date(2025, 6, 15, 15, 30, 0, 0, loc)},
		{"Today", now.Add(time.Hour)},
		{"tomorrow 9:05", time.Date(2025, 6, 16, 9, 5, 0, 0, loc)},
		{"tomorrow", time.Date(2025, 6, 16, 10, 0, 0, 0, loc)},
		{"2025-06-20 11:45", time.Date(2025, 6, 20, 11, 45, 0, 0, loc)},
		{"today 25:00", now.Add(time.Hour)},
		{"next week sometime", now.Add(time.Hour)},
		{"", now.Add(time.Hour)},
	}
	for _, tt := range tests {
		if got := ParseCallbackTime(tt.raw, now); !got.Equal(tt.want) {
			t.Errorf("ParseCallbackTime(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
