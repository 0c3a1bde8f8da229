// Package notification renders outbound messages from named templates and
// publishes them as events for the delivery workers.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is the delivery channel of a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Built-in template ids.
const (
	TemplateOTPPasswordReset  = "otp-password-reset"
	TemplateAppointmentBooked = "appointment-booked"
	TemplateUserRegistered    = "user-registered"
)

// DispatchTimeout bounds a single background publish.
const DispatchTimeout = 5 * time.Second

// Event is the message written to the notification topic.
type Event struct {
	ID         string    `json:"id"`
	Type       Channel   `json:"type"`
	TemplateID string    `json:"template_id"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Type    Channel `json:"type"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateOTPPasswordReset,
			Name:    "Password Reset OTP",
			Subject: "Your password reset code",
			Body:    "Hello {{full_name}}, your one-time password is {{otp}}. It expires in {{ttl_minutes}} minutes.",
			Type:    ChannelEmail,
		},
		{
			ID:      TemplateAppointmentBooked,
			Name:    "Appointment Booked",
			Subject: "Appointment {{appointment_id}} confirmed",
			Body:    "Dear {{patient_name}}, your {{department}} appointment is booked for {{date}} at {{time}}.",
			Type:    ChannelSMS,
		},
		{
			ID:      TemplateUserRegistered,
			Name:    "User Registered",
			Subject: "Welcome to {{hospital_name}}",
			Body:    "Hello {{full_name}}, your {{role}} account has been created.",
			Type:    ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (*Template, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}

	out := *t
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Subject = strings.ReplaceAll(out.Subject, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, v)
	}
	return &out, nil
}

// Publisher delivers a rendered event to the transport.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Dispatcher renders templates and hands the events to a Publisher.
type Dispatcher struct {
	templates *TemplateEngine
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewDispatcher(templates *TemplateEngine, publisher Publisher, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		templates: templates,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Send renders templateID for recipient and publishes it synchronously.
func (d *Dispatcher) Send(ctx context.Context, templateID, recipient string, data map[string]string) (*Event, error) {
	if recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	t, err := d.templates.Render(templateID, data)
	if err != nil {
		return nil, err
	}
	evt := Event{
		ID:         uuid.New().String(),
		Type:       t.Type,
		TemplateID: templateID,
		Recipient:  recipient,
		Subject:    t.Subject,
		Body:       t.Body,
		CreatedAt:  d.now().UTC(),
	}
	if err := d.publisher.Publish(ctx, evt); err != nil {
		return nil, fmt.Errorf("publish %s: %w", templateID, err)
	}
	return &evt, nil
}

// Dispatch publishes in the background. The caller's cancellation does not
// reach the publish; failures are only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, templateID, recipient string, data map[string]string) {
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(bg, DispatchTimeout)
		defer cancel()
		if _, err := d.Send(ctx, templateID, recipient, data); err != nil {
			d.logger.Error().Err(err).
				Str("template_id", templateID).
				Str("recipient", recipient).
				Msg("notification dispatch failed")
		}
	}()
}

// Wait blocks until all background dispatches have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
