package promo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInactive is returned when the promotion has been switched off.
	ErrInactive = errors.New("promotion inactive")
	// ErrWrongWeekday indicates the promotion does not run on the evaluated weekday.
	ErrWrongWeekday = errors.New("promotion not scheduled for weekday")
	// ErrOutsideWindow indicates the evaluated time of day is outside the promotion window.
	ErrOutsideWindow = errors.New("promotion outside time window")
	// ErrUserTypeMismatch is returned when the promotion requires a different user type.
	ErrUserTypeMismatch = errors.New("promotion requires another user type")
)

// ClockTime is a time of day expressed in minutes after midnight.
type ClockTime int

// ParseClock parses an "HH:MM" string.
func ParseClock(value string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the time of day of t in its own location, truncated to the minute.
func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Rule captures a time-windowed category discount. The window [Start, End]
// is inclusive at minute precision: an End of 10:00 still matches 10:00:59.
type Rule struct {
	ID               string
	Name             string
	PercentBps       int32
	Start            ClockTime
	End              ClockTime
	Weekdays         []time.Weekday
	Categories       []string
	Subcategories    []string
	RequiredUserType string
	Active           bool
}

// Item represents a cart line evaluated against the rule set.
type Item struct {
	ItemID      string
	Category    string
	Subcategory string
	Subtotal    int64
}

// Applied records the promotion that won a single line.
type Applied struct {
	ItemID   string `json:"itemId"`
	RuleID   string `json:"promotionId"`
	Discount int64  `json:"discount"`
}

// AppliesAt checks the activity flag, weekday, time window and user type requirement.
func (r Rule) AppliesAt(now time.Time, userType string) error {
	if !r.Active {
		return ErrInactive
	}
	if !r.runsOn(now.Weekday()) {
		return ErrWrongWeekday
	}
	clock := ClockOf(now)
	if clock < r.Start || clock > r.End {
		return ErrOutsideWindow
	}
	if r.RequiredUserType != "" && !strings.EqualFold(r.RequiredUserType, userType) {
		return ErrUserTypeMismatch
	}
	return nil
}

func (r Rule) runsOn(day time.Weekday) bool {
	for _, d := range r.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// MatchesItem reports whether the line falls under the rule's category scope.
func (r Rule) MatchesItem(it Item) bool {
	if !containsFold(r.Categories, it.Category) {
		return false
	}
	if len(r.Subcategories) > 0 && !containsFold(r.Subcategories, it.Subcategory) {
		return false
	}
	return true
}

func containsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

// Compute determines the discount for an eligible subtotal.
func Compute(eligible int64, r Rule) int64 {
	if eligible <= 0 || r.PercentBps <= 0 {
		return 0
	}
	discount := (eligible * int64(r.PercentBps)) / 10000
	if discount > eligible {
		discount = eligible
	}
	return discount
}

// BestPerLine evaluates every running rule against every item. Each line takes only the
// highest-percentage matching rule; the per-line discounts are then summed.
func BestPerLine(rules []Rule, items []Item, now time.Time, userType string) (int64, []Applied) {
	running := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.AppliesAt(now, userType) == nil {
			running = append(running, r)
		}
	}
	if len(running) == 0 {
		return 0, nil
	}
	var total int64
	var applied []Applied
	for _, it := range items {
		if it.Subtotal <= 0 {
			continue
		}
		var best *Rule
		for i := range running {
			if !running[i].MatchesItem(it) {
				continue
			}
			if best == nil || running[i].PercentBps > best.PercentBps {
				best = &running[i]
			}
		}
		if best == nil {
			continue
		}
		discount := Compute(it.Subtotal, *best)
		if discount <= 0 {
			continue
		}
		total += discount
		applied = append(applied, Applied{ItemID: it.ItemID, RuleID: best.ID, Discount: discount})
	}
	return total, applied
}
