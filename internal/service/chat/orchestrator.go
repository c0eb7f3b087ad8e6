package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/magic-mirror/backend/internal/metrics"
	"github.com/zhouzirui/magic-mirror/backend/internal/model/chat"
	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/voice"
)

// FallbackPrefix 主通道失败时，回退 TTS 朗读的固定前缀
const FallbackPrefix = "Desculpe, não consegui me conectar ao meu cérebro mágico. Vou apenas repetir o que você disse: "

// Chat outcomes reported to metrics.
const (
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomePrimary  = "primary"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// ErrEmptyMessage is returned when the message text is blank.
var ErrEmptyMessage = errors.New("message is required")

// RejectionError carries the reason a turn was refused by the usage guard or
// the content filter.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// RelayError is returned when both channels failed.
type RelayError struct {
	Primary  error
	Fallback error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("primary channel failed: %v; fallback channel failed: %v", e.Primary, e.Fallback)
}

func (e *RelayError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// Guard decides whether a new turn may start.
type Guard interface {
	Allowed(ctx context.Context, now time.Time) (bool, string)
}

// Filter decides whether a message is acceptable.
type Filter interface {
	Check(ctx context.Context, text string) (bool, string)
}

// Options 编排器可选项
type Options struct {
	// ChargeFailedTurns keeps the counter increment when both channels fail.
	ChargeFailedTurns bool
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// Reply is an opened audio stream ready to be forwarded. Audio must be closed
// by the caller.
type Reply struct {
	SessionID string
	Channel   string
	Audio     io.ReadCloser
}

// Orchestrator sequences guard, filter, primary channel and fallback channel
// for one chat turn.
type Orchestrator struct {
	store    *Store
	guard    Guard
	filter   Filter
	primary  voice.Channel
	fallback voice.Channel
	metrics  *metrics.Metrics
	log      zerolog.Logger

	chargeFailed bool
	now          func() time.Time
}

// NewOrchestrator wires the collaborators. primary may be nil when no agent is
// configured; every turn then goes straight to the fallback.
func NewOrchestrator(store *Store, guard Guard, filter Filter, primary, fallback voice.Channel, m *metrics.Metrics, log zerolog.Logger, opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:        store,
		guard:        guard,
		filter:       filter,
		primary:      primary,
		fallback:     fallback,
		metrics:      m,
		log:          log,
		chargeFailed: opts.ChargeFailedTurns,
		now:          now,
	}
}

// Today returns the current day key.
func (o *Orchestrator) Today() string {
	return o.now().Format(chat.DateLayout)
}

// Handle runs one chat turn and returns the audio to stream.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		o.metrics.RecordOutcome(OutcomeInvalid)
		return nil, ErrEmptyMessage
	}

	if sessionID = strings.TrimSpace(sessionID); sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := o.now()
	if ok, reason := o.guard.Allowed(ctx, now); !ok {
		o.metrics.RecordOutcome(OutcomeRejected)
		return nil, &RejectionError{Reason: reason}
	}
	if ok, reason := o.filter.Check(ctx, message); !ok {
		o.metrics.RecordOutcome(OutcomeRejected)
		return nil, &RejectionError{Reason: reason}
	}

	day := now.Format(chat.DateLayout)
	count := o.store.RecordUserTurn(ctx, day, sessionID, message)
	logger := o.log.With().Str("session_id", sessionID).Str("day", day).Logger()
	logger.Info().Int("interactions_today", count).Msg("chat turn accepted")

	transcript, _ := o.store.Transcript(ctx, day, sessionID)
	audio, primaryErr := o.open(ctx, o.primary, voicemodel.Request{
		SessionID:  sessionID,
		Text:       message,
		Transcript: transcript,
	})
	if primaryErr == nil {
		o.metrics.RecordOutcome(OutcomePrimary)
		return &Reply{SessionID: sessionID, Channel: o.primary.Name(), Audio: audio}, nil
	}

	logger.Warn().
		Err(primaryErr).
		Str("kind", string(voice.KindOf(primaryErr))).
		Msg("primary channel failed, falling back to tts")

	fallbackText := FallbackPrefix + message
	audio, fallbackErr := o.open(ctx, o.fallback, voicemodel.Request{
		SessionID: sessionID,
		Text:      fallbackText,
	})
	if fallbackErr != nil {
		if !o.chargeFailed {
			o.store.Release(ctx, day)
		}
		o.metrics.RecordOutcome(OutcomeFailed)
		logger.Error().Err(fallbackErr).Msg("fallback channel failed")
		return nil, &RelayError{Primary: primaryErr, Fallback: fallbackErr}
	}

	o.store.AppendTurn(ctx, day, sessionID, chat.Turn{Role: chat.RoleAssistant, Content: fallbackText})
	o.metrics.RecordOutcome(OutcomeFallback)
	return &Reply{SessionID: sessionID, Channel: o.fallback.Name(), Audio: audio}, nil
}

// open makes a single attempt against a channel; no retries.
func (o *Orchestrator) open(ctx context.Context, ch voice.Channel, req voicemodel.Request) (io.ReadCloser, error) {
	if ch == nil {
		return nil, &voice.UpstreamError{
			Channel: voice.ChannelAgent,
			Kind:    voice.KindUnavailable,
			Err:     errors.New("channel is not configured"),
		}
	}

	start := time.Now()
	audio, err := ch.Open(ctx, req)
	o.metrics.RecordChannel(ch.Name(), err, time.Since(start))
	return audio, err
}
