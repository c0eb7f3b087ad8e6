package controls_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	model "github.com/zhouzirui/magic-mirror/backend/internal/model/controls"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/controls"
)

func newService(t *testing.T) *controls.Service {
	t.Helper()
	svc, err := controls.NewService(model.Controls{
		DailyLimit:       3,
		BlockedWords:     []string{"bobo"},
		TimeRestrictions: model.TimeRestrictions{StartHour: 8, EndHour: 20},
	})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc
}

func TestNewServiceRejectsInvalid(t *testing.T) {
	_, err := controls.NewService(model.Controls{TimeRestrictions: model.TimeRestrictions{StartHour: 10, EndHour: 9}})
	if !errors.Is(err, model.ErrInvalidControls) {
		t.Fatalf("expected ErrInvalidControls, got %v", err)
	}
}

func TestUpdateBlockedWordsRoundTrip(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Update(ctx, model.Patch{BlockedWords: []string{"x", "y"}}); err != nil {
		t.Fatalf("Update err: %v", err)
	}

	got := svc.Get(ctx)
	if !reflect.DeepEqual(got.BlockedWords, []string{"x", "y"}) {
		t.Fatalf("unexpected blocked words: %v", got.BlockedWords)
	}
	if got.DailyLimit != 3 {
		t.Fatalf("daily limit should be untouched, got %d", got.DailyLimit)
	}
}

func TestUpdateInvalidKeepsCurrent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	negative := -5
	if _, err := svc.Update(ctx, model.Patch{DailyLimit: &negative}); !errors.Is(err, model.ErrInvalidControls) {
		t.Fatalf("expected ErrInvalidControls, got %v", err)
	}
	if got := svc.Get(ctx).DailyLimit; got != 3 {
		t.Fatalf("daily limit changed after rejected update: %d", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	snapshot := svc.Get(ctx)
	snapshot.BlockedWords[0] = "mutated"

	if got := svc.Get(ctx).BlockedWords[0]; got != "bobo" {
		t.Fatalf("snapshot mutation leaked into service: %s", got)
	}
}
