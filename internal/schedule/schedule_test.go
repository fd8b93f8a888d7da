package schedule

import (
	"context"
	"testing"
	"time"
)

type fixedZones struct {
	loc *time.Location
}

func (z fixedZones) GetTimezone(ctx context.Context, userID string) (*time.Location, error) {
	return z.loc, nil
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestRelativeDateOffset(t *testing.T) {
	due := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	at, ok, err := RelativeDate{}.ScheduleTime(context.Background(), "u1", Context{
		Date:          due,
		OffsetMinutes: -60,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !ok {
		t.Fatal("expected a schedule time")
	}
	want := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}
}

func TestRelativeDateNoAnchor(t *testing.T) {
	_, ok, err := RelativeDate{}.ScheduleTime(context.Background(), "u1", Context{OffsetMinutes: -60})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ok {
		t.Fatal("expected none without an anchor date")
	}
}

func TestDayTimeSameDayStillAhead(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	s := DayTime{Zones: fixedZones{loc}}

	// Monday 2025-03-10 08:00 local; template fires Mondays at 09:00.
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	at, ok, err := s.ScheduleTime(context.Background(), "u1", Context{
		Days:          []int{1},
		OffsetMinutes: 540,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !ok {
		t.Fatal("expected a schedule time")
	}
	want := time.Date(2025, 3, 10, 9, 0, 0, 0, loc).UTC()
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}
	if at.Location() != time.UTC {
		t.Fatalf("expected UTC instant, got %v", at.Location())
	}
}

func TestDayTimeSameDayAlreadyPassedRollsForward(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	s := DayTime{Zones: fixedZones{loc}}

	// Monday 10:00 local, Mondays at 09:00 -> next Monday.
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, loc)
	at, ok, err := s.ScheduleTime(context.Background(), "u1", Context{
		Days:          []int{1},
		OffsetMinutes: 540,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !ok {
		t.Fatal("expected a schedule time")
	}
	want := time.Date(2025, 3, 17, 9, 0, 0, 0, loc).UTC()
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}
}

func TestDayTimePicksNearestEligibleDay(t *testing.T) {
	s := DayTime{Zones: fixedZones{time.UTC}}

	// Monday; eligible Wednesday and Friday -> Wednesday.
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	at, ok, err := s.ScheduleTime(context.Background(), "u1", Context{
		Days:          []int{3, 5},
		OffsetMinutes: 600,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !ok {
		t.Fatal("expected a schedule time")
	}
	want := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}
}

func TestDayTimeEmptyDays(t *testing.T) {
	s := DayTime{Zones: fixedZones{time.UTC}}
	_, ok, err := s.ScheduleTime(context.Background(), "u1", Context{OffsetMinutes: 540})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ok {
		t.Fatal("expected none for empty day set")
	}
}

func TestDayTimeAnchorAfterNow(t *testing.T) {
	s := DayTime{Zones: fixedZones{time.UTC}}

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) // Monday 09:00
	anchor := now.Add(time.Millisecond)
	at, ok, err := s.ScheduleTime(context.Background(), "u1", Context{
		Days:          []int{1},
		OffsetMinutes: 540,
		Date:          anchor,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !ok {
		t.Fatal("expected a schedule time")
	}
	// Anchored just past this Monday's fire time, so next Monday.
	want := time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}
}

func TestTimeBasedDefaultDelay(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	at, ok, err := TimeBased{}.ScheduleTime(context.Background(), "u1", Context{Now: now})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !ok {
		t.Fatal("expected a schedule time")
	}
	if !at.Equal(now.Add(10 * time.Second)) {
		t.Fatalf("unexpected time %v", at)
	}
}
