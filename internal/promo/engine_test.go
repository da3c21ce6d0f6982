package promo

import (
	"errors"
	"testing"
	"time"
)

func happyHour() Rule {
	return Rule{
		ID:         "happy_hour_matutino",
		Name:       "Happy hour matutino",
		PercentBps: 1500,
		Start:      mustClock("07:00"),
		End:        mustClock("10:00"),
		Weekdays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Categories: []string{"Café"},
		Active:     true,
	}
}

// 2024-01-15 was a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2024, time.January, 15, hour, minute, 0, 0, time.UTC)
}

func TestAppliesAtWindow(t *testing.T) {
	r := happyHour()
	if err := r.AppliesAt(monday(8, 0), ""); err != nil {
		t.Fatalf("expected rule to apply, got %v", err)
	}
	if err := r.AppliesAt(monday(10, 0), ""); err != nil {
		t.Fatalf("window end is inclusive, got %v", err)
	}
	if err := r.AppliesAt(monday(10, 0).Add(59*time.Second), ""); err != nil {
		t.Fatalf("the whole end minute is inside the window, got %v", err)
	}
	if err := r.AppliesAt(monday(6, 59).Add(59*time.Second), ""); !errors.Is(err, ErrOutsideWindow) {
		t.Fatalf("expected ErrOutsideWindow before start, got %v", err)
	}
	if err := r.AppliesAt(monday(10, 1), ""); !errors.Is(err, ErrOutsideWindow) {
		t.Fatalf("expected ErrOutsideWindow, got %v", err)
	}
	sunday := monday(8, 0).AddDate(0, 0, -1)
	if err := r.AppliesAt(sunday, ""); !errors.Is(err, ErrWrongWeekday) {
		t.Fatalf("expected ErrWrongWeekday, got %v", err)
	}
	r.Active = false
	if err := r.AppliesAt(monday(8, 0), ""); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestAppliesAtUserType(t *testing.T) {
	r := happyHour()
	r.RequiredUserType = "student"
	if err := r.AppliesAt(monday(8, 0), ""); !errors.Is(err, ErrUserTypeMismatch) {
		t.Fatalf("expected ErrUserTypeMismatch, got %v", err)
	}
	if err := r.AppliesAt(monday(8, 0), "Student"); err != nil {
		t.Fatalf("expected match ignoring case, got %v", err)
	}
}

func TestMatchesItemSubcategory(t *testing.T) {
	r := happyHour()
	r.Subcategories = []string{"Espresso"}
	if !r.MatchesItem(Item{Category: "café", Subcategory: "espresso"}) {
		t.Fatal("expected espresso to match")
	}
	if r.MatchesItem(Item{Category: "Café", Subcategory: "Filtrado"}) {
		t.Fatal("expected other subcategory to be excluded")
	}
	if r.MatchesItem(Item{Category: "Panadería", Subcategory: "Espresso"}) {
		t.Fatal("expected other category to be excluded")
	}
}

func TestBestPerLineDoesNotStack(t *testing.T) {
	small := happyHour()
	big := happyHour()
	big.ID = "cafe_20"
	big.PercentBps = 2000
	items := []Item{
		{ItemID: "52", Category: "Café", Subtotal: 6000},
		{ItemID: "80", Category: "Panadería", Subtotal: 4000},
	}
	total, applied := BestPerLine([]Rule{small, big}, items, monday(8, 0), "")
	if total != 1200 {
		t.Fatalf("expected 1200 discount from the 20%% rule only, got %d", total)
	}
	if len(applied) != 1 || applied[0].RuleID != "cafe_20" || applied[0].ItemID != "52" {
		t.Fatalf("unexpected applied lines: %+v", applied)
	}
}

func TestBestPerLineSumsAcrossLines(t *testing.T) {
	items := []Item{
		{ItemID: "52", Category: "Café", Subtotal: 6000},
		{ItemID: "53", Category: "Café", Subtotal: 3333},
	}
	total, applied := BestPerLine([]Rule{happyHour()}, items, monday(9, 30), "")
	// 900 + floor(499.95)
	if total != 1399 {
		t.Fatalf("expected 1399, got %d", total)
	}
	if len(applied) != 2 {
		t.Fatalf("expected two applied lines, got %d", len(applied))
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("07:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c != 450 || c.String() != "07:30" {
		t.Fatalf("unexpected clock %d (%s)", c, c)
	}
	if _, err := ParseClock("7h"); err == nil {
		t.Fatal("expected parse error")
	}
}

func mustClock(v string) ClockTime {
	c, err := ParseClock(v)
	if err != nil {
		panic(err)
	}
	return c
}
