package controls

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidControls 表示控制参数不合法。
var ErrInvalidControls = errors.New("invalid parental controls")

// TimeRestrictions is the half-open window [StartHour, EndHour) in which chat is allowed.
type TimeRestrictions struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether hour falls inside the window. EndHour 24 means until midnight.
func (t TimeRestrictions) Contains(hour int) bool {
	return hour >= t.StartHour && hour < t.EndHour
}

// Validate checks the window bounds.
func (t TimeRestrictions) Validate() error {
	if t.StartHour < 0 || t.StartHour > 23 {
		return fmt.Errorf("%w: start_hour %d out of range 0-23", ErrInvalidControls, t.StartHour)
	}
	if t.EndHour < 1 || t.EndHour > 24 {
		return fmt.Errorf("%w: end_hour %d out of range 1-24", ErrInvalidControls, t.EndHour)
	}
	if t.StartHour >= t.EndHour {
		return fmt.Errorf("%w: start_hour %d must be before end_hour %d", ErrInvalidControls, t.StartHour, t.EndHour)
	}
	return nil
}

// Controls is the global parental-control record.
type Controls struct {
	DailyLimit       int              `json:"daily_limit"`
	BlockedWords     []string         `json:"blocked_words"`
	TimeRestrictions TimeRestrictions `json:"time_restrictions"`
}

// Clone returns a deep copy.
func (c Controls) Clone() Controls {
	c.BlockedWords = append([]string{}, c.BlockedWords...)
	return c
}

// Validate checks every field.
func (c Controls) Validate() error {
	if c.DailyLimit < 0 {
		return fmt.Errorf("%w: daily_limit must not be negative", ErrInvalidControls)
	}
	return c.TimeRestrictions.Validate()
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	DailyLimit       *int                   `json:"daily_limit,omitempty"`
	BlockedWords     []string               `json:"blocked_words,omitempty"`
	TimeRestrictions *TimeRestrictionsPatch `json:"time_restrictions,omitempty"`
}

// TimeRestrictionsPatch 时间窗口的局部更新，未给出的边界保持原值
type TimeRestrictionsPatch struct {
	StartHour *int `json:"start_hour,omitempty"`
	EndHour   *int `json:"end_hour,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.DailyLimit == nil && p.BlockedWords == nil &&
		(p.TimeRestrictions == nil || (p.TimeRestrictions.StartHour == nil && p.TimeRestrictions.EndHour == nil))
}

// Apply returns c with the patch applied. It does not validate.
func (p Patch) Apply(c Controls) Controls {
	next := c.Clone()
	if p.DailyLimit != nil {
		next.DailyLimit = *p.DailyLimit
	}
	if p.BlockedWords != nil {
		next.BlockedWords = normalizeWords(p.BlockedWords)
	}
	if tr := p.TimeRestrictions; tr != nil {
		if tr.StartHour != nil {
			next.TimeRestrictions.StartHour = *tr.StartHour
		}
		if tr.EndHour != nil {
			next.TimeRestrictions.EndHour = *tr.EndHour
		}
	}
	return next
}

// normalizeWords trims entries and drops blanks and duplicates, keeping order.
func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
