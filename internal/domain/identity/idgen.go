package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CounterStore atomically increments and returns a named counter, creating it
// at 1 when absent.
type CounterStore interface {
	Next(ctx context.Context, key string) (int, error)
}

// IDGenerator issues PAT-<YYMMDD>-<seq> identifiers from a per-day counter.
type IDGenerator struct {
	counters CounterStore
	now      func() time.Time
	logger   zerolog.Logger
}

func NewIDGenerator(counters CounterStore, logger zerolog.Logger) *IDGenerator {
	return &IDGenerator{counters: counters, now: time.Now, logger: logger}
}

// CounterKey is the counter record used for day t.
func CounterKey(t time.Time) string {
	return "patient_counter_" + t.Format("20060102")
}

// Generate returns PAT-<YYMMDD>-<seq:03d>. If the counter cannot be
// incremented it falls back to PAT-<YYMMDD>-T<HHMMSS>, which is only unique
// per second.
func (g *IDGenerator) Generate(ctx context.Context) string {
	now := g.now()
	day := now.Format("060102")

	seq, err := g.counters.Next(ctx, CounterKey(now))
	if err == nil {
		id := fmt.Sprintf("PAT-%s-%03d", day, seq)
		g.logger.Debug().Str("patient_id", id).Msg("patient id generated")
		return id
	}

	id := fmt.Sprintf("PAT-%s-T%s", day, now.Format("150405"))
	g.logger.Warn().Err(err).Str("patient_id", id).Msg("patient counter unavailable, using timestamp id")
	return id
}
