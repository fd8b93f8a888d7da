package variants

import (
	"context"

	"pushplan/internal/models"
	"pushplan/internal/schedule"
)

// ClearInboxReminder nags about a non-empty inbox panel at
// template-configured days/times. An empty panel vetoes the send.
// Recurring.
type ClearInboxReminder struct {
	base
}

func NewClearInboxReminder(deps Deps) *ClearInboxReminder {
	return &ClearInboxReminder{base{deps: deps}}
}

func (v *ClearInboxReminder) Type() models.VariantType { return models.VariantClearInboxReminder }

func (v *ClearInboxReminder) SchedulerType() models.SchedulerType { return models.SchedulerDayTime }

func (v *ClearInboxReminder) AttemptSchedule(ctx context.Context, userID string, tpl *models.Template, entityID string, sc schedule.Context) error {
	sc.Days = tpl.Scheduler.Days
	sc.OffsetMinutes = tpl.Scheduler.OffsetMinutes
	return v.persist(ctx, v.Type(), v.SchedulerType(), userID, tpl, entityID, sc)
}

func (v *ClearInboxReminder) GetContent(ctx context.Context, inst *models.Instance) (*models.Content, error) {
	tpl, record, ok, err := v.fire(ctx, inst)
	if err != nil || !ok {
		return nil, err
	}
	if count, ok := intField(record, "item_count"); !ok || count <= 0 {
		return nil, nil
	}
	return v.render(ctx, inst.UserID, tpl, record), nil
}

func (v *ClearInboxReminder) OnPostSend(ctx context.Context, inst *models.Instance) error {
	return v.rescheduleAfter(ctx, v, inst)
}
