package chat_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/magic-mirror/backend/internal/metrics"
	"github.com/zhouzirui/magic-mirror/backend/internal/model/chat"
	"github.com/zhouzirui/magic-mirror/backend/internal/model/controls"
	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
	chatservice "github.com/zhouzirui/magic-mirror/backend/internal/service/chat"
	controlsservice "github.com/zhouzirui/magic-mirror/backend/internal/service/controls"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/policy"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/voice"
)

type fakeChannel struct {
	name  string
	audio string
	err   error

	mu       sync.Mutex
	requests []voicemodel.Request
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Open(_ context.Context, req voicemodel.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.audio)), nil
}

func (f *fakeChannel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var noon = time.Date(2026, 10, 17, 12, 0, 0, 0, time.Local)

type fixture struct {
	store    *chatservice.Store
	controls *controlsservice.Service
	primary  *fakeChannel
	fallback *fakeChannel
	orch     *chatservice.Orchestrator
}

func newFixture(t *testing.T, initial controls.Controls, opts chatservice.Options) *fixture {
	t.Helper()
	ctrl, err := controlsservice.NewService(initial)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	store := chatservice.NewStore()
	primary := &fakeChannel{name: voice.ChannelAgent, audio: "agent-audio"}
	fallback := &fakeChannel{name: voice.ChannelTTS, audio: "tts-audio"}
	if opts.Now == nil {
		opts.Now = func() time.Time { return noon }
	}
	orch := chatservice.NewOrchestrator(store, policy.NewGuard(ctrl, store), policy.NewFilter(ctrl),
		primary, fallback, metrics.New(), zerolog.Nop(), opts)
	return &fixture{store: store, controls: ctrl, primary: primary, fallback: fallback, orch: orch}
}

func defaultControls() controls.Controls {
	return controls.Controls{
		DailyLimit:       50,
		BlockedWords:     []string{"bobo"},
		TimeRestrictions: controls.TimeRestrictions{StartHour: 8, EndHour: 20},
	}
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read err: %v", err)
	}
	return string(data)
}

func TestHandlePrimarySuccess(t *testing.T) {
	f := newFixture(t, defaultControls(), chatservice.Options{ChargeFailedTurns: true})
	ctx := context.Background()

	reply, err := f.orch.Handle(ctx, "s1", "  olá espelho  ")
	if err != nil {
		t.Fatalf("Handle err: %v", err)
	}
	if reply.Channel != voice.ChannelAgent || reply.SessionID != "s1" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if got := readAll(t, reply.Audio); got != "agent-audio" {
		t.Fatalf("unexpected audio %q", got)
	}

	turns, err := f.store.Transcript(ctx, "2026-10-17", "s1")
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != chat.RoleUser || turns[0].Content != "olá espelho" {
		t.Fatalf("expected only the user turn, got %+v", turns)
	}
	if f.store.Count(ctx, "2026-10-17") != 1 {
		t.Fatal("expected counter to be incremented")
	}
	if f.fallback.calls() != 0 {
		t.Fatal("fallback must not be called")
	}
	if len(f.primary.requests[0].Transcript) != 1 {
		t.Fatalf("expected transcript to be forwarded, got %+v", f.primary.requests[0])
	}
}

func TestHandleFallsBackToTTS(t *testing.T) {
	f := newFixture(t, defaultControls(), chatservice.Options{ChargeFailedTurns: true})
	f.primary.err = &voice.UpstreamError{Channel: voice.ChannelAgent, Kind: voice.KindUnavailable, Err: errors.New("dial refused")}
	ctx := context.Background()

	reply, err := f.orch.Handle(ctx, "s1", "hello")
	if err != nil {
		t.Fatalf("Handle err: %v", err)
	}
	if reply.Channel != voice.ChannelTTS {
		t.Fatalf("expected tts channel, got %s", reply.Channel)
	}
	if got := readAll(t, reply.Audio); got != "tts-audio" {
		t.Fatalf("unexpected audio %q", got)
	}

	if want := chatservice.FallbackPrefix + "hello"; f.fallback.requests[0].Text != want {
		t.Fatalf("unexpected fallback text %q", f.fallback.requests[0].Text)
	}

	turns, _ := f.store.Transcript(ctx, "2026-10-17", "s1")
	if len(turns) != 2 {
		t.Fatalf("expected two turns, got %+v", turns)
	}
	if turns[0].Role != chat.RoleUser || turns[0].Content != "hello" {
		t.Fatalf("unexpected user turn %+v", turns[0])
	}
	if turns[1].Role != chat.RoleAssistant || !strings.Contains(turns[1].Content, "hello") {
		t.Fatalf("unexpected assistant turn %+v", turns[1])
	}
}

func TestHandleWithoutPrimaryUsesFallback(t *testing.T) {
	ctrl, _ := controlsservice.NewService(defaultControls())
	store := chatservice.NewStore()
	fallback := &fakeChannel{name: voice.ChannelTTS, audio: "tts"}
	orch := chatservice.NewOrchestrator(store, policy.NewGuard(ctrl, store), policy.NewFilter(ctrl),
		nil, fallback, nil, zerolog.Nop(), chatservice.Options{Now: func() time.Time { return noon }})

	reply, err := orch.Handle(context.Background(), "s1", "oi")
	if err != nil {
		t.Fatalf("Handle err: %v", err)
	}
	reply.Audio.Close()
	if reply.Channel != voice.ChannelTTS {
		t.Fatalf("expected tts channel, got %s", reply.Channel)
	}
}

func TestHandleBothChannelsFail(t *testing.T) {
	f := newFixture(t, defaultControls(), chatservice.Options{ChargeFailedTurns: true})
	f.primary.err = errors.New("agent down")
	f.fallback.err = errors.New("tts down")
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, "s1", "hello")
	var relayErr *chatservice.RelayError
	if !errors.As(err, &relayErr) {
		t.Fatalf("expected RelayError, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "agent down") || !strings.Contains(msg, "tts down") {
		t.Fatalf("expected both causes in %q", msg)
	}

	// 默认不回滚
	if f.store.Count(ctx, "2026-10-17") != 1 {
		t.Fatal("expected failed turn to stay charged")
	}
	turns, _ := f.store.Transcript(ctx, "2026-10-17", "s1")
	if len(turns) != 1 {
		t.Fatalf("expected only the user turn, got %+v", turns)
	}
}

func TestHandleBothChannelsFailReleasesQuota(t *testing.T) {
	f := newFixture(t, defaultControls(), chatservice.Options{ChargeFailedTurns: false})
	f.primary.err = errors.New("agent down")
	f.fallback.err = errors.New("tts down")
	ctx := context.Background()

	if _, err := f.orch.Handle(ctx, "s1", "hello"); err == nil {
		t.Fatal("expected error")
	}
	if f.store.Count(ctx, "2026-10-17") != 0 {
		t.Fatal("expected counter to be released")
	}
}

func TestHandleBlockedWordHasNoSideEffects(t *testing.T) {
	f := newFixture(t, defaultControls(), chatservice.Options{ChargeFailedTurns: true})
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, "s1", "você é BOBO")
	var rejection *chatservice.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if !strings.Contains(rejection.Reason, "bobo") {
		t.Fatalf("unexpected reason %q", rejection.Reason)
	}
	if f.store.Count(ctx, "2026-10-17") != 0 {
		t.Fatal("counter must not change")
	}
	if _, err := f.store.Transcript(ctx, "2026-10-17", "s1"); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected no transcript, got %v", err)
	}
	if f.primary.calls() != 0 {
		t.Fatal("primary must not be called")
	}
}

func TestHandleGuardRejections(t *testing.T) {
	ctx := context.Background()

	late := newFixture(t, defaultControls(), chatservice.Options{
		Now: func() time.Time { return time.Date(2026, 10, 17, 21, 0, 0, 0, time.Local) },
	})
	_, err := late.orch.Handle(ctx, "s1", "oi")
	var rejection *chatservice.RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != policy.ReasonOutsideHours {
		t.Fatalf("expected outside hours, got %v", err)
	}

	limited := defaultControls()
	limited.DailyLimit = 1
	f := newFixture(t, limited, chatservice.Options{})
	if _, err := f.orch.Handle(ctx, "s1", "oi"); err != nil {
		t.Fatalf("first turn err: %v", err)
	}
	_, err = f.orch.Handle(ctx, "s1", "de novo")
	if !errors.As(err, &rejection) || rejection.Reason != policy.ReasonDailyLimit {
		t.Fatalf("expected daily limit, got %v", err)
	}
	if f.store.Count(ctx, "2026-10-17") != 1 {
		t.Fatal("rejected turn must not be counted")
	}
}

func TestHandleEmptyMessage(t *testing.T) {
	f := newFixture(t, defaultControls(), chatservice.Options{})
	if _, err := f.orch.Handle(context.Background(), "s1", "   "); !errors.Is(err, chatservice.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestHandleGeneratesSessionID(t *testing.T) {
	f := newFixture(t, defaultControls(), chatservice.Options{})
	reply, err := f.orch.Handle(context.Background(), "", "oi")
	if err != nil {
		t.Fatalf("Handle err: %v", err)
	}
	reply.Audio.Close()
	if reply.SessionID == "" {
		t.Fatal("expected generated session id")
	}
	if f.primary.requests[0].SessionID != reply.SessionID {
		t.Fatal("channel should receive the generated session id")
	}
}
