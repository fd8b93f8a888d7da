// Package schedule holds the "when" strategies: each computes the next
// absolute instant a notification should fire from a template's
// scheduling parameters plus contextual data. Strategies are pure given
// their inputs and the user's timezone.
package schedule

import (
	"context"
	"time"

	"pushplan/internal/models"
)

// Timezones resolves a user's IANA zone. Implementations fall back to
// UTC when no zone is recorded.
type Timezones interface {
	GetTimezone(ctx context.Context, userID string) (*time.Location, error)
}

// Context carries the inputs a strategy may consult. Which fields are
// read depends on the strategy.
type Context struct {
	// Date anchors relative offsets (the entity's due date for
	// relative_date, the scan start for day_time). Zero means absent.
	Date          time.Time
	OffsetMinutes int
	Days          []int
	Now           time.Time
}

func (c Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// RelativeDate fires at an anchor date plus a signed minute offset.
type RelativeDate struct{}

func (RelativeDate) Type() models.SchedulerType { return models.SchedulerRelativeDate }

func (RelativeDate) ScheduleTime(ctx context.Context, userID string, sc Context) (time.Time, bool, error) {
	if sc.Date.IsZero() {
		return time.Time{}, false, nil
	}
	return sc.Date.Add(time.Duration(sc.OffsetMinutes) * time.Minute), true, nil
}

// DayTime fires on the next eligible weekday at a fixed offset past the
// user's local midnight. Today counts only while the target local time
// is still ahead; a time already passed rolls the scan forward, which
// can land on the same weekday next week.
type DayTime struct {
	Zones Timezones
}

func (DayTime) Type() models.SchedulerType { return models.SchedulerDayTime }

func (s DayTime) ScheduleTime(ctx context.Context, userID string, sc Context) (time.Time, bool, error) {
	if len(sc.Days) == 0 {
		return time.Time{}, false, nil
	}

	loc, err := s.Zones.GetTimezone(ctx, userID)
	if err != nil {
		return time.Time{}, false, err
	}

	eligible := make(map[time.Weekday]bool, len(sc.Days))
	for _, d := range sc.Days {
		eligible[time.Weekday(d)] = true
	}

	now := sc.now()
	start := now
	if !sc.Date.IsZero() && sc.Date.After(now) {
		start = sc.Date
	}
	local := start.In(loc)
	offset := time.Duration(sc.OffsetMinutes) * time.Minute

	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		if !eligible[day.Weekday()] {
			continue
		}
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		at := midnight.Add(offset)
		if at.Before(start) {
			continue
		}
		return at.UTC(), true, nil
	}
	return time.Time{}, false, nil
}

// TimeBased fires a short fixed delay from now. Used by simple
// absolute-time templates.
type TimeBased struct {
	Delay time.Duration
}

func (TimeBased) Type() models.SchedulerType { return models.SchedulerTimeBased }

func (s TimeBased) ScheduleTime(ctx context.Context, userID string, sc Context) (time.Time, bool, error) {
	delay := s.Delay
	if delay == 0 {
		delay = 10 * time.Second
	}
	return sc.now().Add(delay), true, nil
}
