package templates

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"pushplan/internal/models"
	"pushplan/internal/storage"
)

type allowAllPairings struct{}

func (allowAllPairings) ValidatePairing(s models.SchedulerType, v models.VariantType) error {
	return nil
}

func newTestManager() (*Manager, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage()
	return NewManager(store, store, allowAllPairings{}, zerolog.Nop()), store
}

func habitDefaults(user, title string) *models.Template {
	return &models.Template{
		UserID:           user,
		TargetLevel:      models.TargetEntity,
		TargetEntityType: models.EntityHabit,
		Scheduler:        models.SchedulerData{Type: models.SchedulerDayTime, Days: []int{1, 3}, OffsetMinutes: 540},
		Variant:          models.VariantData{Type: models.VariantHabitDue, Title: title, Body: "{{name}} is due"},
		Active:           true,
	}
}

func TestCreateAssignsID(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	tpl, err := m.Create(ctx, habitDefaults("u1", "Habit"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tpl.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if got, _ := m.Get(ctx, tpl.ID); got == nil {
		t.Fatal("created template not persisted")
	}
}

func TestBreakEntitySyncCopiesParents(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()

	p1, _ := m.Create(ctx, habitDefaults("u1", "First"))
	p2, _ := m.Create(ctx, habitDefaults("u1", "Second"))

	if err := m.BreakEntitySync(ctx, "u1", models.EntityHabit, "habit-9"); err != nil {
		t.Fatalf("break sync: %v", err)
	}

	broken, _ := store.IsSyncBroken(ctx, "u1", models.EntityHabit, "habit-9")
	if !broken {
		t.Fatal("expected sync state marker after break")
	}

	effective, err := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-9")
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if len(effective) != 2 {
		t.Fatalf("expected 2 entity-scoped copies, got %d", len(effective))
	}
	parents := map[string]bool{p1.ID: false, p2.ID: false}
	for _, child := range effective {
		if child.TargetID != "habit-9" {
			t.Fatalf("child %s not scoped to entity", child.ID)
		}
		if !child.Customized {
			t.Fatalf("child %s should start customized", child.ID)
		}
		if _, ok := parents[child.InheritedFrom]; !ok {
			t.Fatalf("child %s has unknown parent %s", child.ID, child.InheritedFrom)
		}
		parents[child.InheritedFrom] = true
	}
	for id, seen := range parents {
		if !seen {
			t.Fatalf("no child copied from parent %s", id)
		}
	}
}

func TestSyncedEntityResolvesToParents(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	parent, _ := m.Create(ctx, habitDefaults("u1", "Defaults"))

	effective, err := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-1")
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if len(effective) != 1 || effective[0].ID != parent.ID {
		t.Fatalf("synced entity should see parent rows verbatim, got %v", effective)
	}
}

func TestEnableAfterBreakRoundTrip(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	parent, _ := m.Create(ctx, habitDefaults("u1", "Defaults"))

	if err := m.BreakEntitySync(ctx, "u1", models.EntityHabit, "habit-1"); err != nil {
		t.Fatalf("break: %v", err)
	}
	if err := m.EnableEntitySync(ctx, "u1", models.EntityHabit, "habit-1"); err != nil {
		t.Fatalf("enable: %v", err)
	}

	effective, err := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-1")
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if len(effective) != 1 || effective[0].ID != parent.ID {
		t.Fatal("enable after break must restore the parent defaults view")
	}

	// The entity's own copies are gone.
	all, _ := m.GetAllByUser(ctx, "u1")
	if len(all) != 1 {
		t.Fatalf("expected only the parent row to remain, got %d rows", len(all))
	}
}

func TestParentUpdatePropagatesToNonCustomizedChildren(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	parent, _ := m.Create(ctx, habitDefaults("u1", "Defaults"))
	if err := m.BreakEntitySync(ctx, "u1", models.EntityHabit, "habit-1"); err != nil {
		t.Fatalf("break: %v", err)
	}

	children, _ := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-1")
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	synced, err := m.SyncWithParent(ctx, children[0].ID, true)
	if err != nil {
		t.Fatalf("sync with parent: %v", err)
	}
	if synced.Customized {
		t.Fatal("re-synced child must not be customized")
	}

	// Second broken entity keeps its customized copy.
	if err := m.BreakEntitySync(ctx, "u1", models.EntityHabit, "habit-2"); err != nil {
		t.Fatalf("break second: %v", err)
	}

	newVariant := models.VariantData{Type: models.VariantHabitDue, Title: "Updated", Body: "new body"}
	if _, err := m.Update(ctx, parent.ID, Update{Variant: &newVariant}); err != nil {
		t.Fatalf("update parent: %v", err)
	}

	first, _ := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-1")
	if first[0].Variant.Title != "Updated" {
		t.Fatalf("non-customized child should receive parent edits, got %q", first[0].Variant.Title)
	}

	second, _ := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-2")
	if second[0].Variant.Title != "Defaults" {
		t.Fatalf("customized child must be left untouched, got %q", second[0].Variant.Title)
	}
}

func TestSyncWithParentFalseOnlyMarksCustomized(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	if _, err := m.Create(ctx, habitDefaults("u1", "Defaults")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.BreakEntitySync(ctx, "u1", models.EntityHabit, "habit-1"); err != nil {
		t.Fatalf("break: %v", err)
	}
	children, _ := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-1")

	before := children[0].Variant.Title
	updated, err := m.SyncWithParent(ctx, children[0].ID, false)
	if err != nil {
		t.Fatalf("sync=false: %v", err)
	}
	if !updated.Customized {
		t.Fatal("sync=false must mark the child customized")
	}
	if updated.Variant.Title != before {
		t.Fatal("sync=false must not change content")
	}
}

func TestDeleteParentDoesNotCascade(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	parent, _ := m.Create(ctx, habitDefaults("u1", "Defaults"))
	if err := m.BreakEntitySync(ctx, "u1", models.EntityHabit, "habit-1"); err != nil {
		t.Fatalf("break: %v", err)
	}

	if err := m.Delete(ctx, parent.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	children, _ := m.GetEffectiveTemplatesForEntity(ctx, "u1", models.EntityHabit, "habit-1")
	if len(children) != 1 {
		t.Fatalf("children must survive parent deletion, got %d", len(children))
	}
}
