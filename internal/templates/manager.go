// Package templates manages notification template rows: CRUD,
// parent/child inheritance, customization tracking, and per-entity sync
// state.
package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pushplan/internal/models"
	"pushplan/internal/storage"
)

// PairingValidator rejects scheduler/variant combinations no registered
// variant declares. Satisfied by engine.Coordinator.
type PairingValidator interface {
	ValidatePairing(s models.SchedulerType, v models.VariantType) error
}

type Manager struct {
	store   storage.TemplateStore
	sync    storage.SyncStateStore
	pairing PairingValidator
	log     zerolog.Logger
	now     func() time.Time
}

func NewManager(store storage.TemplateStore, sync storage.SyncStateStore, pairing PairingValidator, log zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		sync:    sync,
		pairing: pairing,
		log:     log,
		now:     time.Now,
	}
}

func (m *Manager) validate(tpl *models.Template) error {
	if err := tpl.Scheduler.Validate(); err != nil {
		return err
	}
	if err := tpl.Variant.Validate(); err != nil {
		return err
	}
	if err := m.pairing.ValidatePairing(tpl.Scheduler.Type, tpl.Variant.Type); err != nil {
		return err
	}
	if tpl.TargetLevel == models.TargetGlobal && tpl.TargetID != "" {
		return fmt.Errorf("global template cannot target an entity")
	}
	return nil
}

// Create validates and persists a new template. The id is assigned here
// when the caller leaves it empty.
func (m *Manager) Create(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	if err := m.validate(tpl); err != nil {
		return nil, err
	}

	tpl = tpl.Clone()
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.CreatedAt = m.now()
	tpl.UpdatedAt = tpl.CreatedAt

	if err := m.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	m.log.Info().Str("template_id", tpl.ID).Str("user_id", tpl.UserID).Msg("template created")
	return tpl, nil
}

// Update holds the mutable template fields; nil members are left
// untouched.
type Update struct {
	Scheduler *models.SchedulerData
	Variant   *models.VariantData
	Active    *bool
}

// Apply writes the non-nil fields onto the template.
func (u Update) apply(tpl *models.Template) {
	if u.Scheduler != nil {
		tpl.Scheduler = *u.Scheduler
	}
	if u.Variant != nil {
		tpl.Variant = *u.Variant
	}
	if u.Active != nil {
		tpl.Active = *u.Active
	}
}

// Update mutates a template and marks it customized. Updating a
// parent/defaults template propagates the trigger, content and active
// fields to every non-customized child.
func (m *Manager) Update(ctx context.Context, id string, upd Update) (*models.Template, error) {
	tpl, err := m.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("template %s not found", id)
	}

	upd.apply(tpl)
	if err := m.validate(tpl); err != nil {
		return nil, err
	}
	tpl.Customized = true
	tpl.UpdatedAt = m.now()

	if err := m.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	if tpl.IsParent() {
		if err := m.updateChildTemplates(ctx, tpl); err != nil {
			return nil, err
		}
	}

	return tpl, nil
}

func (m *Manager) updateChildTemplates(ctx context.Context, parent *models.Template) error {
	all, err := m.store.TemplatesByUser(ctx, parent.UserID)
	if err != nil {
		return err
	}

	for _, child := range all {
		if child.InheritedFrom != parent.ID || child.IsParent() || child.Customized {
			continue
		}
		child.Scheduler = parent.Scheduler
		child.Variant = parent.Variant
		child.Active = parent.Active
		child.UpdatedAt = m.now()
		if err := m.store.SaveTemplate(ctx, child); err != nil {
			return err
		}
		m.log.Info().
			Str("template_id", child.ID).
			Str("parent_id", parent.ID).
			Msg("parent update propagated to child")
	}
	return nil
}

// Delete removes a template. Deleting a parent does not cascade to its
// children.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.DeleteTemplate(ctx, id)
}

// Get returns the raw row, nil when missing.
func (m *Manager) Get(ctx context.Context, id string) (*models.Template, error) {
	return m.store.GetTemplate(ctx, id)
}

// GetAllByUser lists a user's raw template rows.
func (m *Manager) GetAllByUser(ctx context.Context, userID string) ([]*models.Template, error) {
	return m.store.TemplatesByUser(ctx, userID)
}

// GetEffectiveTemplatesForEntity resolves the templates that govern one
// entity: the parent defaults verbatim while the entity is synced, the
// entity's own rows once sync is broken.
func (m *Manager) GetEffectiveTemplatesForEntity(ctx context.Context, userID string, et models.EntityType, entityID string) ([]*models.Template, error) {
	broken, err := m.sync.IsSyncBroken(ctx, userID, et, entityID)
	if err != nil {
		return nil, err
	}

	all, err := m.store.TemplatesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var effective []*models.Template
	for _, tpl := range all {
		if tpl.TargetEntityType != et {
			continue
		}
		if broken {
			if tpl.TargetID == entityID {
				effective = append(effective, tpl)
			}
		} else if tpl.IsParent() {
			effective = append(effective, tpl)
		}
	}
	return effective, nil
}

// BreakEntitySync copies every parent defaults template into an
// entity-scoped child and records the broken state. Children start
// customized so later parent edits leave them alone until the user
// re-syncs.
func (m *Manager) BreakEntitySync(ctx context.Context, userID string, et models.EntityType, entityID string) error {
	all, err := m.store.TemplatesByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, parent := range all {
		if !parent.IsParent() || parent.TargetEntityType != et {
			continue
		}
		child := parent.Clone()
		child.ID = uuid.NewString()
		child.TargetID = entityID
		child.InheritedFrom = parent.ID
		child.Customized = true
		child.CreatedAt = m.now()
		child.UpdatedAt = child.CreatedAt
		if err := m.store.SaveTemplate(ctx, child); err != nil {
			return err
		}
	}

	if err := m.sync.MarkSyncBroken(ctx, userID, et, entityID); err != nil {
		return err
	}

	m.log.Info().
		Str("user_id", userID).
		Str("entity_type", string(et)).
		Str("entity_id", entityID).
		Msg("entity sync broken")
	return nil
}

// EnableEntitySync deletes the entity's own template rows and clears
// the broken marker, reverting the entity to implicit inheritance.
func (m *Manager) EnableEntitySync(ctx context.Context, userID string, et models.EntityType, entityID string) error {
	all, err := m.store.TemplatesByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, tpl := range all {
		if tpl.TargetEntityType == et && tpl.TargetID == entityID {
			if err := m.store.DeleteTemplate(ctx, tpl.ID); err != nil {
				return err
			}
		}
	}

	if err := m.sync.ClearSyncBroken(ctx, userID, et, entityID); err != nil {
		return err
	}

	m.log.Info().
		Str("user_id", userID).
		Str("entity_type", string(et)).
		Str("entity_id", entityID).
		Msg("entity sync enabled")
	return nil
}

// SyncWithParent re-couples a single broken child to its parent: with
// sync true the parent's current trigger and content are copied back
// and the customized flag cleared; with sync false the child is only
// marked customized.
func (m *Manager) SyncWithParent(ctx context.Context, templateID string, sync bool) (*models.Template, error) {
	child, err := m.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, fmt.Errorf("template %s not found", templateID)
	}

	if !sync {
		child.Customized = true
		child.UpdatedAt = m.now()
		if err := m.store.SaveTemplate(ctx, child); err != nil {
			return nil, err
		}
		return child, nil
	}

	if child.InheritedFrom == "" {
		return nil, fmt.Errorf("template %s has no parent to sync with", templateID)
	}
	parent, err := m.store.GetTemplate(ctx, child.InheritedFrom)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("parent template %s not found", child.InheritedFrom)
	}

	child.Scheduler = parent.Scheduler
	child.Variant = parent.Variant
	child.Customized = false
	child.UpdatedAt = m.now()
	if err := m.store.SaveTemplate(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}
