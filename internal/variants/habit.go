package variants

import (
	"context"

	"pushplan/internal/models"
	"pushplan/internal/schedule"
)

// HabitDue reminds on the weekdays a habit itself is scheduled for,
// taking the day set from the live habit record. Recurring: each send
// schedules the next occurrence.
type HabitDue struct {
	base
}

func NewHabitDue(deps Deps) *HabitDue {
	return &HabitDue{base{deps: deps}}
}

func (v *HabitDue) Type() models.VariantType { return models.VariantHabitDue }

func (v *HabitDue) SchedulerType() models.SchedulerType { return models.SchedulerDayTime }

func (v *HabitDue) AttemptSchedule(ctx context.Context, userID string, tpl *models.Template, entityID string, sc schedule.Context) error {
	record, err := v.deps.Entities.GetEntityData(ctx, userID, models.EntityHabit, entityID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	sc.Days = daysField(record, "days")
	sc.OffsetMinutes = tpl.Scheduler.OffsetMinutes
	if len(sc.Days) == 0 {
		sc.Days = tpl.Scheduler.Days
	}
	return v.persist(ctx, v.Type(), v.SchedulerType(), userID, tpl, entityID, sc)
}

func (v *HabitDue) GetContent(ctx context.Context, inst *models.Instance) (*models.Content, error) {
	tpl, record, ok, err := v.fire(ctx, inst)
	if err != nil || !ok {
		return nil, err
	}
	if boolField(record, "paused") || boolField(record, "completed_today") {
		return nil, nil
	}
	return v.render(ctx, inst.UserID, tpl, record), nil
}

func (v *HabitDue) OnPostSend(ctx context.Context, inst *models.Instance) error {
	return v.rescheduleAfter(ctx, v, inst)
}

// HabitTimedReminder reminds at template-configured days/times,
// independent of the habit's own schedule. Recurring.
type HabitTimedReminder struct {
	base
}

func NewHabitTimedReminder(deps Deps) *HabitTimedReminder {
	return &HabitTimedReminder{base{deps: deps}}
}

func (v *HabitTimedReminder) Type() models.VariantType { return models.VariantHabitTimedReminder }

func (v *HabitTimedReminder) SchedulerType() models.SchedulerType { return models.SchedulerDayTime }

func (v *HabitTimedReminder) AttemptSchedule(ctx context.Context, userID string, tpl *models.Template, entityID string, sc schedule.Context) error {
	sc.Days = tpl.Scheduler.Days
	sc.OffsetMinutes = tpl.Scheduler.OffsetMinutes
	return v.persist(ctx, v.Type(), v.SchedulerType(), userID, tpl, entityID, sc)
}

func (v *HabitTimedReminder) GetContent(ctx context.Context, inst *models.Instance) (*models.Content, error) {
	tpl, record, ok, err := v.fire(ctx, inst)
	if err != nil || !ok {
		return nil, err
	}
	if boolField(record, "paused") || boolField(record, "completed_today") {
		return nil, nil
	}
	return v.render(ctx, inst.UserID, tpl, record), nil
}

func (v *HabitTimedReminder) OnPostSend(ctx context.Context, inst *models.Instance) error {
	return v.rescheduleAfter(ctx, v, inst)
}
