// Package policy evaluates the parental controls against an incoming chat turn.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/magic-mirror/backend/internal/model/chat"
	"github.com/zhouzirui/magic-mirror/backend/internal/model/controls"
)

// Rejection reasons surfaced to the caller.
const (
	ReasonOutsideHours = "outside allowed hours"
	ReasonDailyLimit   = "daily limit reached"
)

// ControlsSource supplies the current parental controls.
type ControlsSource interface {
	Get(ctx context.Context) controls.Controls
}

// Counter supplies the interaction counter of a day.
type Counter interface {
	Count(ctx context.Context, day string) int
}

// Guard decides whether a new chat turn may start.
type Guard struct {
	controls ControlsSource
	counter  Counter
}

// NewGuard creates a usage guard.
func NewGuard(controls ControlsSource, counter Counter) *Guard {
	return &Guard{controls: controls, counter: counter}
}

// Allowed checks the time window first, then today's quota. It never mutates state.
func (g *Guard) Allowed(ctx context.Context, now time.Time) (bool, string) {
	current := g.controls.Get(ctx)

	if !current.TimeRestrictions.Contains(now.Hour()) {
		return false, ReasonOutsideHours
	}

	if g.counter.Count(ctx, now.Format(chat.DateLayout)) >= current.DailyLimit {
		return false, ReasonDailyLimit
	}

	return true, ""
}

// Filter rejects messages that contain a blocked word.
type Filter struct {
	controls ControlsSource
}

// NewFilter creates a content filter.
func NewFilter(controls ControlsSource) *Filter {
	return &Filter{controls: controls}
}

// Check matches case-insensitively; the first blocked word found wins.
func (f *Filter) Check(ctx context.Context, text string) (bool, string) {
	lowered := strings.ToLower(text)
	for _, word := range f.controls.Get(ctx).BlockedWords {
		if word == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(word)) {
			return false, fmt.Sprintf("message contains blocked word: %s", word)
		}
	}
	return true, ""
}
