package calls

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/healthops/healthops/internal/platform/blobstore"
	"github.com/healthops/healthops/internal/platform/voiceai"
)

// ErrProvider wraps failures of the voice provider.
var ErrProvider = errors.New("voice provider request failed")

const (
	// logTimeout bounds background call-log writes.
	logTimeout = 5 * time.Second
	// callbackDialTimeout bounds the background call creation of a callback.
	callbackDialTimeout = 30 * time.Second
	// callbackEarlyWindow is how far ahead of its time a callback may run.
	callbackEarlyWindow = 5 * time.Minute

	callbackTypeHealthcare = "healthcare"
	summaryPrefix          = "call-summaries/"
	logDateLayout          = "2006-01-02"
)

type Service struct {
	logs      CallLogRepository
	callbacks CallbackRepository
	detector  *IntentDetector
	voice     VoiceProvider
	builder   voiceai.Builder
	roster    Roster
	archive   blobstore.BlobStore
	logger    zerolog.Logger

	now func() time.Time
	wg  sync.WaitGroup
}

func NewService(logs CallLogRepository, callbacks CallbackRepository, detector *IntentDetector,
	voice VoiceProvider, builder voiceai.Builder, roster Roster, archive blobstore.BlobStore,
	logger zerolog.Logger) *Service {
	return &Service{
		logs:      logs,
		callbacks: callbacks,
		detector:  detector,
		voice:     voice,
		builder:   builder,
		roster:    roster,
		archive:   archive,
		logger:    logger,
		now:       time.Now,
	}
}

// background runs fn detached from the request with its own deadline.
func (s *Service) background(ctx context.Context, timeout time.Duration, fn func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background log writes and callback dials finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) DetectIntent(ctx context.Context, req DetectIntentRequest) (Detection, error) {
	if strings.TrimSpace(req.CallID) == "" || strings.TrimSpace(req.PhoneNumber) == "" {
		return Detection{}, &ValidationError{Problems: []string{"call_id and phone_number required"}}
	}
	d := s.detector.Detect(ctx, req.Message)

	entry := &CallLog{
		CallID:      req.CallID,
		PhoneNumber: req.PhoneNumber,
		CallIntent:  d.Intent,
		CallStatus:  CallInProgress,
		CreatedAt:   s.now().UTC(),
	}
	s.background(ctx, logTimeout, func(ctx context.Context) {
		if err := s.logs.Insert(ctx, entry); err != nil {
			s.logger.Error().Err(err).Str("call_id", req.CallID).Msg("failed to log call intent")
		}
	})
	return d, nil
}

// callConfig builds the agent configuration. A roster failure degrades to a
// prompt without the doctor list.
func (s *Service) callConfig(ctx context.Context, variant voiceai.Variant) *voiceai.CallConfig {
	doctors, err := s.roster.Roster(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("doctor roster unavailable for call prompt")
	}
	return s.builder.Build(variant, doctors)
}

func (s *Service) createCall(ctx context.Context, variant voiceai.Variant) (*voiceai.Call, error) {
	call, err := s.voice.CreateCall(ctx, s.callConfig(ctx, variant))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return call, nil
}

// HandleInbound starts the agent for a call arriving on the hospital line.
func (s *Service) HandleInbound(ctx context.Context, callSID string) (*voiceai.Call, error) {
	call, err := s.createCall(ctx, voiceai.VariantGeneral)
	if err != nil {
		return nil, err
	}
	entry := &CallLog{
		CallSID:        callSID,
		UltravoxCallID: call.CallID,
		CallType:       string(voiceai.VariantGeneral),
		CallStatus:     CallAnswered,
		CreatedAt:      s.now().UTC(),
	}
	// A logging failure does not refuse the call.
	if err := s.logs.Insert(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("call_id", call.CallID).Msg("failed to log inbound call")
	}
	s.logger.Info().Str("call_sid", callSID).Str("call_id", call.CallID).Msg("inbound call answered")
	return call, nil
}

func countDigits(s string) int {
	return lo.CountBy([]rune(s), unicode.IsDigit)
}

// StartCall creates an agent session of the given call type for phone.
func (s *Service) StartCall(ctx context.Context, phone, callType string) (*StartedCall, error) {
	var problems []string
	if countDigits(phone) < 10 {
		problems = append(problems, "Valid phone number required")
	}
	variant, err := voiceai.ParseVariant(callType)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	call, err := s.createCall(ctx, variant)
	if err != nil {
		return nil, err
	}
	entry := &CallLog{
		UltravoxCallID: call.CallID,
		PhoneNumber:    phone,
		CallType:       string(variant),
		CallStatus:     CallInitiated,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.logs.Insert(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("call_id", call.CallID).Msg("failed to log started call")
	}
	s.logger.Info().Str("call_id", call.CallID).Str("call_type", string(variant)).Msg("healthcare call started")
	return &StartedCall{JoinURL: call.JoinURL, UltravoxCallID: call.CallID, CallType: string(variant)}, nil
}

func summaryKey(callID string) string {
	return summaryPrefix + callID + ".json"
}

// SaveSummary records the agent's end-of-call summary on the call log and
// archives it as JSON.
func (s *Service) SaveSummary(ctx context.Context, req SaveSummaryRequest) (*Summary, error) {
	callID := strings.TrimSpace(req.CallID)
	if callID == "" || strings.TrimSpace(req.Summary) == "" {
		return nil, &ValidationError{Problems: []string{"callId and summary are required"}}
	}
	if err := blobstore.ValidateKey(summaryKey(callID)); err != nil {
		return nil, &ValidationError{Problems: []string{"callId contains invalid characters"}}
	}

	sum := &Summary{
		CallID:    callID,
		Summary:   req.Summary,
		Intent:    req.Intent,
		Outcome:   req.Outcome,
		PatientID: strings.TrimSpace(req.PatientID),
		SavedAt:   s.now().UTC(),
	}
	if err := s.logs.SaveSummary(ctx, callID, sum); err != nil {
		return nil, err
	}

	body, err := json.Marshal(sum)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	if _, err := s.archive.Put(ctx, summaryKey(callID), "application/json", bytes.NewReader(body)); err != nil {
		s.logger.Error().Err(err).Str("call_id", callID).Msg("failed to archive call summary")
	}
	s.logger.Info().Str("call_id", callID).Msg("call summary saved")
	return sum, nil
}

// Summary returns the archived summary document for callID.
func (s *Service) Summary(ctx context.Context, callID string) ([]byte, error) {
	key := summaryKey(strings.TrimSpace(callID))
	if err := blobstore.ValidateKey(key); err != nil {
		return nil, ErrSummaryNotFound
	}
	rc, _, err := s.archive.Get(ctx, key)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, ErrSummaryNotFound
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *Service) ScheduleCallback(ctx context.Context, req ScheduleCallbackRequest) (*Callback, error) {
	missing := lo.SomeBy([]string{req.CallID, req.PatientName, req.ContactNumber, req.CallbackTime, req.Reason},
		func(v string) bool { return strings.TrimSpace(v) == "" })
	if missing {
		return nil, &ValidationError{Problems: []string{
			"All fields (call_id, patient_name, contact_number, callback_time, reason) are required",
		}}
	}

	now := s.now()
	cb := &Callback{
		OriginalCallID: req.CallID,
		PatientName:    strings.TrimSpace(req.PatientName),
		ContactNumber:  strings.TrimSpace(req.ContactNumber),
		CallbackTime:   ParseCallbackTime(req.CallbackTime, now).UTC(),
		Reason:         req.Reason,
		Status:         CallbackScheduled,
		CallbackType:   callbackTypeHealthcare,
		CreatedAt:      now.UTC(),
	}
	if err := s.callbacks.Create(ctx, cb); err != nil {
		return nil, err
	}
	if err := s.logs.MarkCallbackScheduled(ctx, req.CallID, cb.ID, cb.CallbackTime); err != nil {
		s.logger.Error().Err(err).Str("call_id", req.CallID).Msg("failed to mark callback on call log")
	}
	s.logger.Info().Str("callback_id", cb.ID).Time("callback_time", cb.CallbackTime).Msg("callback scheduled")
	return cb, nil
}

func (s *Service) Callbacks(ctx context.Context, status string) ([]*Callback, error) {
	if status = strings.TrimSpace(status); status == "" {
		status = CallbackScheduled
	}
	return s.callbacks.ListByStatus(ctx, status)
}

// ExecuteCallback claims a due callback and dials it in the background. The
// outcome lands on the callback as completed or failed.
func (s *Service) ExecuteCallback(ctx context.Context, id string) (*Callback, error) {
	cb, err := s.callbacks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cb.Status != CallbackScheduled {
		return nil, ErrCallbackNotScheduled
	}
	now := s.now().UTC()
	if cb.CallbackTime.After(now.Add(callbackEarlyWindow)) {
		return nil, ErrCallbackNotDue
	}
	claimed, err := s.callbacks.MarkExecuting(ctx, cb.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrCallbackNotScheduled
	}
	cb.Status = CallbackExecuting
	cb.ExecutionStartedAt = &now

	s.background(ctx, callbackDialTimeout, func(ctx context.Context) {
		s.dialCallback(ctx, cb.ID, cb.PatientName)
	})
	return cb, nil
}

func (s *Service) dialCallback(ctx context.Context, id, patientName string) {
	log := s.logger.With().Str("callback_id", id).Logger()
	call, err := s.createCall(ctx, voiceai.VariantGeneral)
	if err != nil {
		log.Error().Err(err).Msg("callback dial failed")
		if err := s.callbacks.MarkFailed(ctx, id, err.Error(), s.now().UTC()); err != nil {
			log.Error().Err(err).Msg("failed to mark callback failed")
		}
		return
	}
	if err := s.callbacks.MarkCompleted(ctx, id, call.CallID, s.now().UTC()); err != nil {
		log.Error().Err(err).Msg("failed to mark callback completed")
		return
	}
	log.Info().Str("patient_name", patientName).Str("call_id", call.CallID).Msg("callback executed")
}

// CallLogs lists logs newest first. date_to is inclusive of the whole day.
func (s *Service) CallLogs(ctx context.Context, f LogFilter, limit, offset int) ([]*CallLog, int, error) {
	var problems []string
	var from, to *time.Time
	if f.DateFrom != "" {
		t, err := time.ParseInLocation(logDateLayout, f.DateFrom, time.Local)
		if err != nil {
			problems = append(problems, "date_from must be YYYY-MM-DD")
		} else {
			from = &t
		}
	}
	if f.DateTo != "" {
		t, err := time.ParseInLocation(logDateLayout, f.DateTo, time.Local)
		if err != nil {
			problems = append(problems, "date_to must be YYYY-MM-DD")
		} else {
			end := t.AddDate(0, 0, 1)
			to = &end
		}
	}
	if len(problems) > 0 {
		return nil, 0, &ValidationError{Problems: problems}
	}
	return s.logs.List(ctx, f, from, to, limit, offset)
}

// IntentDistribution counts call logs per intent created within [from, to].
func (s *Service) IntentDistribution(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := s.logs.IntentDistribution(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(rows, func(r IntentCount) (string, int) { return r.Intent, r.Count }), nil
}
