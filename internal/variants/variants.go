// Package variants holds the "what/whether" strategies. Each variant
// binds one (scheduler, variant, entity) triple: it validates the
// pairing and persists instances on AttemptSchedule, re-fetches the
// live entity at fire time in GetContent (returning nil to silently
// cancel), and decides recurrence in OnPostSend.
package variants

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pushplan/internal/content"
	"pushplan/internal/engine"
	"pushplan/internal/entity"
	"pushplan/internal/models"
	"pushplan/internal/schedule"
	"pushplan/internal/storage"
)

// Deps are the collaborators every variant needs.
type Deps struct {
	Coordinator *engine.Coordinator
	Templates   storage.TemplateStore
	Entities    entity.Provider
	Zones       schedule.Timezones
	Log         zerolog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

type base struct {
	deps Deps
}

func (b *base) now() time.Time {
	if b.deps.Now != nil {
		return b.deps.Now()
	}
	return time.Now()
}

// persist validates the template against the variant's declared pairing,
// consults the scheduler, and writes a new instance when the scheduler
// yields a fire time.
func (b *base) persist(ctx context.Context, vt models.VariantType, st models.SchedulerType, userID string, tpl *models.Template, entityID string, sc schedule.Context) error {
	if !tpl.Active {
		b.deps.Log.Debug().Str("template_id", tpl.ID).Msg("template inactive, not scheduling")
		return nil
	}
	if tpl.Variant.Type != vt {
		return fmt.Errorf("template %s declares variant %q, handler is %q", tpl.ID, tpl.Variant.Type, vt)
	}
	if err := b.deps.Coordinator.ValidatePairing(tpl.Scheduler.Type, vt); err != nil {
		return err
	}

	sched, err := b.deps.Coordinator.Scheduler(st)
	if err != nil {
		return err
	}

	if sc.Now.IsZero() {
		sc.Now = b.now()
	}

	at, ok, err := sched.ScheduleTime(ctx, userID, sc)
	if err != nil {
		return fmt.Errorf("failed to compute schedule time: %w", err)
	}
	if !ok {
		b.deps.Log.Debug().Str("template_id", tpl.ID).Msg("scheduler yielded no fire time")
		return nil
	}

	_, err = b.deps.Coordinator.ScheduleNotification(ctx, engine.ScheduleRequest{
		Variant:    vt,
		TemplateID: tpl.ID,
		UserID:     userID,
		EntityType: tpl.TargetEntityType,
		EntityID:   entityID,
		At:         at,
	})
	return err
}

// fire loads the pieces a GetContent needs. A false ok means the
// instance should be silently cancelled: template gone or deactivated,
// or entity gone.
func (b *base) fire(ctx context.Context, inst *models.Instance) (*models.Template, map[string]any, bool, error) {
	tpl, err := b.deps.Templates.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return nil, nil, false, err
	}
	if tpl == nil || !tpl.Active {
		return nil, nil, false, nil
	}

	record, err := b.deps.Entities.GetEntityData(ctx, inst.UserID, inst.EntityType, inst.EntityID)
	if err != nil {
		return nil, nil, false, err
	}
	if record == nil {
		return nil, nil, false, nil
	}

	return tpl, record, true, nil
}

// render resolves the template's content text against the base
// time-derived variables, the template-declared variables, and the live
// entity record.
func (b *base) render(ctx context.Context, userID string, tpl *models.Template, record map[string]any) *models.Content {
	loc, err := b.deps.Zones.GetTimezone(ctx, userID)
	if err != nil {
		b.deps.Log.Warn().Err(err).Str("user_id", userID).Msg("timezone lookup failed, using UTC")
		loc = time.UTC
	}

	vars := content.BaseVars(b.now(), loc)
	for k, v := range tpl.Variant.Variables {
		vars[k] = v
	}

	title, missingTitle := content.Render(tpl.Variant.Title, vars, record)
	body, missingBody := content.Render(tpl.Variant.Body, vars, record)
	if len(missingTitle)+len(missingBody) > 0 {
		b.deps.Log.Debug().
			Str("template_id", tpl.ID).
			Strs("missing", append(missingTitle, missingBody...)).
			Msg("unresolved template variables")
	}

	return &models.Content{Title: title, Body: body}
}

// rescheduleAfter re-anchors a recurring chain just past the last fire
// so the same occurrence is never picked twice. The chain ends quietly
// when the template or entity is gone.
func (b *base) rescheduleAfter(ctx context.Context, h engine.Handler, inst *models.Instance) error {
	tpl, err := b.deps.Templates.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return err
	}
	if tpl == nil || !tpl.Active {
		b.deps.Log.Info().Str("instance_id", inst.ID).Msg("template gone, recurrence chain ends")
		return nil
	}

	record, err := b.deps.Entities.GetEntityData(ctx, inst.UserID, inst.EntityType, inst.EntityID)
	if err != nil {
		return err
	}
	if record == nil {
		b.deps.Log.Info().Str("instance_id", inst.ID).Msg("entity gone, recurrence chain ends")
		return nil
	}

	anchor := inst.ScheduledTime.Add(time.Millisecond)
	return h.AttemptSchedule(ctx, inst.UserID, tpl, inst.EntityID, schedule.Context{Date: anchor})
}

func boolField(record map[string]any, key string) bool {
	v, ok := record[key].(bool)
	return ok && v
}

func intField(record map[string]any, key string) (int, bool) {
	switch v := record[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func daysField(record map[string]any, key string) []int {
	raw, ok := record[key].([]any)
	if !ok {
		return nil
	}
	var days []int
	for _, item := range raw {
		if f, ok := item.(float64); ok {
			days = append(days, int(f))
		}
	}
	return days
}

func timeField(record map[string]any, key string) (time.Time, bool) {
	s, ok := record[key].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
