package calls

import (
	"context"
	"time"

	"github.com/healthops/healthops/internal/platform/voiceai"
)

type CallLogRepository interface {
	Insert(ctx context.Context, l *CallLog) error
	// SaveSummary updates the log for ultravoxCallID, creating a completed
	// log when none exists.
	SaveSummary(ctx context.Context, ultravoxCallID string, s *Summary) error
	MarkCallbackScheduled(ctx context.Context, ultravoxCallID, callbackID string, at time.Time) error
	List(ctx context.Context, f LogFilter, from, to *time.Time, limit, offset int) ([]*CallLog, int, error)
	IntentDistribution(ctx context.Context, from, to time.Time) ([]IntentCount, error)
}

type CallbackRepository interface {
	Create(ctx context.Context, cb *Callback) error
	Get(ctx context.Context, id string) (*Callback, error)
	ListByStatus(ctx context.Context, status string) ([]*Callback, error)
	// MarkExecuting moves a scheduled callback to executing. It reports false
	// when the callback was no longer scheduled.
	MarkExecuting(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id, ultravoxCallID string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
}

// VoiceProvider creates live calls. *voiceai.Client satisfies it.
type VoiceProvider interface {
	CreateCall(ctx context.Context, cfg *voiceai.CallConfig) (*voiceai.Call, error)
}

// Roster supplies the doctors named in the agent prompt.
type Roster interface {
	Roster(ctx context.Context) ([]voiceai.Doctor, error)
}
