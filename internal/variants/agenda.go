package variants

import (
	"context"

	"pushplan/internal/models"
	"pushplan/internal/schedule"
)

// AgendaItemDue fires relative to an agenda item's due date. It is
// non-recurring: once delivered the chain ends unless the due date
// changes and the caller schedules again.
type AgendaItemDue struct {
	base
}

func NewAgendaItemDue(deps Deps) *AgendaItemDue {
	return &AgendaItemDue{base{deps: deps}}
}

func (v *AgendaItemDue) Type() models.VariantType { return models.VariantAgendaItemDue }

func (v *AgendaItemDue) SchedulerType() models.SchedulerType { return models.SchedulerRelativeDate }

func (v *AgendaItemDue) AttemptSchedule(ctx context.Context, userID string, tpl *models.Template, entityID string, sc schedule.Context) error {
	if sc.Date.IsZero() {
		record, err := v.deps.Entities.GetEntityData(ctx, userID, models.EntityAgendaItem, entityID)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}
		due, ok := timeField(record, "due_at")
		if !ok {
			// Items without a due date never schedule.
			return nil
		}
		sc.Date = due
	}
	sc.OffsetMinutes = tpl.Scheduler.OffsetMinutes
	return v.persist(ctx, v.Type(), v.SchedulerType(), userID, tpl, entityID, sc)
}

func (v *AgendaItemDue) GetContent(ctx context.Context, inst *models.Instance) (*models.Content, error) {
	tpl, record, ok, err := v.fire(ctx, inst)
	if err != nil || !ok {
		return nil, err
	}
	if boolField(record, "completed") {
		return nil, nil
	}
	return v.render(ctx, inst.UserID, tpl, record), nil
}

func (v *AgendaItemDue) OnPostSend(ctx context.Context, inst *models.Instance) error {
	return nil
}
