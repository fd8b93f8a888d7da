// Package engine is the scheduling and delivery core: the strategy
// registries, the durable instance bookkeeping, and the two-loop
// delivery runner.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pushplan/internal/models"
	"pushplan/internal/schedule"
	"pushplan/internal/storage"
)

// Scheduler computes the next absolute instant a notification should
// fire, or reports none.
type Scheduler interface {
	Type() models.SchedulerType
	ScheduleTime(ctx context.Context, userID string, sc schedule.Context) (time.Time, bool, error)
}

// Handler is a variant strategy: it decides whether a template
// schedules at all, what a fired instance says, and what happens after
// a send. GetContent returning nil, nil is the cancellation mechanism:
// the instance is silently dropped, never retried.
type Handler interface {
	Type() models.VariantType
	SchedulerType() models.SchedulerType
	GetContent(ctx context.Context, inst *models.Instance) (*models.Content, error)
	AttemptSchedule(ctx context.Context, userID string, tpl *models.Template, entityID string, sc schedule.Context) error
	OnPostSend(ctx context.Context, inst *models.Instance) error
}

// ScheduleRequest is the data persisted for a new instance.
type ScheduleRequest struct {
	Variant    models.VariantType
	TemplateID string
	UserID     string
	EntityType models.EntityType
	EntityID   string
	At         time.Time
}

// Coordinator owns the strategy registries and persists notification
// instances. Registries are populated once at process start; a lookup
// miss afterwards is a configuration error.
type Coordinator struct {
	store      storage.InstanceStore
	schedulers map[models.SchedulerType]Scheduler
	handlers   map[models.VariantType]Handler
	log        zerolog.Logger
}

func NewCoordinator(store storage.InstanceStore, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		schedulers: make(map[models.SchedulerType]Scheduler),
		handlers:   make(map[models.VariantType]Handler),
		log:        log,
	}
}

func (c *Coordinator) RegisterScheduler(s Scheduler) {
	c.schedulers[s.Type()] = s
}

func (c *Coordinator) RegisterHandler(h Handler) {
	c.handlers[h.Type()] = h
}

// Scheduler returns the strategy registered for the type.
func (c *Coordinator) Scheduler(t models.SchedulerType) (Scheduler, error) {
	s, ok := c.schedulers[t]
	if !ok {
		return nil, fmt.Errorf("no scheduler registered for type %q", t)
	}
	return s, nil
}

// Handler returns the variant registered for the type.
func (c *Coordinator) Handler(t models.VariantType) (Handler, error) {
	h, ok := c.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for variant %q", t)
	}
	return h, nil
}

// ValidatePairing checks that a template's scheduler/variant tags name
// registered strategies and that the variant requires that scheduler.
// Used at template write time so misconfigured templates never fire.
func (c *Coordinator) ValidatePairing(s models.SchedulerType, v models.VariantType) error {
	h, err := c.Handler(v)
	if err != nil {
		return err
	}
	if _, err := c.Scheduler(s); err != nil {
		return err
	}
	if h.SchedulerType() != s {
		return fmt.Errorf("variant %q requires scheduler %q, template declares %q", v, h.SchedulerType(), s)
	}
	return nil
}

// ScheduleNotification persists a new instance: an id derived from the
// variant tag, the instance hash, and membership in the per-user and
// global sorted sets.
func (c *Coordinator) ScheduleNotification(ctx context.Context, req ScheduleRequest) (string, error) {
	id := string(req.Variant) + "-" + strings.Split(uuid.NewString(), "-")[0]

	inst := &models.Instance{
		ID:            id,
		TemplateID:    req.TemplateID,
		UserID:        req.UserID,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		Variant:       req.Variant,
		ScheduledTime: req.At.UTC(),
	}

	if err := c.store.PutInstance(ctx, inst); err != nil {
		return "", fmt.Errorf("failed to schedule notification: %w", err)
	}

	c.log.Info().
		Str("instance_id", id).
		Str("template_id", req.TemplateID).
		Str("user_id", req.UserID).
		Time("scheduled_time", inst.ScheduledTime).
		Msg("notification scheduled")

	return id, nil
}

// RemoveNotification deletes an instance from the hash and both sorted
// sets. Removing an already-gone instance is a logged no-op.
func (c *Coordinator) RemoveNotification(ctx context.Context, id string) error {
	inst, err := c.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	if inst == nil {
		c.log.Info().Str("instance_id", id).Msg("remove: instance already gone")
		return nil
	}

	if err := c.store.RemoveInstance(ctx, id); err != nil {
		return fmt.Errorf("failed to remove notification: %w", err)
	}

	c.log.Info().Str("instance_id", id).Msg("notification removed")
	return nil
}
