package models

import (
	"fmt"
	"time"
)

type SchedulerType string

const (
	SchedulerTimeBased    SchedulerType = "time_based"
	SchedulerDayTime      SchedulerType = "day_time"
	SchedulerRelativeDate SchedulerType = "relative_date"
)

type VariantType string

const (
	VariantAgendaItemDue      VariantType = "agenda_item_due"
	VariantHabitDue           VariantType = "habit_due"
	VariantHabitTimedReminder VariantType = "habit_timed_reminder"
	VariantClearInboxReminder VariantType = "clear_inbox_timed_reminder"
)

type EntityType string

const (
	EntityAgendaItem EntityType = "agenda_item"
	EntityHabit      EntityType = "habit"
	EntityTask       EntityType = "task"
	EntityTaskList   EntityType = "task_list"
	EntityInboxPanel EntityType = "inbox_panel"
)

type TargetLevel string

const (
	TargetGlobal TargetLevel = "global"
	TargetEntity TargetLevel = "entity"
)

// SchedulerData is the tagged union of scheduler parameters. Which
// fields are meaningful depends on Type: relative_date reads
// OffsetMinutes against an anchor date, day_time reads Days plus
// OffsetMinutes past local midnight, time_based reads nothing.
type SchedulerData struct {
	Type          SchedulerType `json:"type"`
	OffsetMinutes int           `json:"offset_minutes,omitempty"`
	Days          []int         `json:"days,omitempty"`
}

func (d SchedulerData) Validate() error {
	switch d.Type {
	case SchedulerTimeBased, SchedulerRelativeDate:
		return nil
	case SchedulerDayTime:
		for _, day := range d.Days {
			if day < 0 || day > 6 {
				return fmt.Errorf("day_time scheduler: weekday %d out of range", day)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown scheduler type %q", d.Type)
	}
}

// VariantData is the tagged union of variant config: the content text
// with {{variable}} placeholders plus template-declared variables.
type VariantData struct {
	Type      VariantType       `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Variables map[string]string `json:"variables,omitempty"`
}

func (d VariantData) Validate() error {
	switch d.Type {
	case VariantAgendaItemDue, VariantHabitDue, VariantHabitTimedReminder, VariantClearInboxReminder:
		return nil
	default:
		return fmt.Errorf("unknown variant type %q", d.Type)
	}
}

// Template is the declarative rule pairing a scheduler with a variant,
// optionally scoped to one entity. A template with empty TargetID is a
// parent/defaults template and serves as the inheritance source for
// entities of its type.
type Template struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	TargetLevel      TargetLevel   `json:"target_level"`
	TargetEntityType EntityType    `json:"target_entity_type"`
	TargetID         string        `json:"target_id,omitempty"`
	Scheduler        SchedulerData `json:"scheduler"`
	Variant          VariantData   `json:"variant"`
	Active           bool          `json:"active"`
	InheritedFrom    string        `json:"inherited_from,omitempty"`
	Customized       bool          `json:"customized"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsParent reports whether the template is a defaults template,
// identified solely by the absence of a target entity id.
func (t *Template) IsParent() bool { return t.TargetID == "" }

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	cp := *t
	if t.Scheduler.Days != nil {
		cp.Scheduler.Days = append([]int(nil), t.Scheduler.Days...)
	}
	if t.Variant.Variables != nil {
		cp.Variant.Variables = make(map[string]string, len(t.Variant.Variables))
		for k, v := range t.Variant.Variables {
			cp.Variant.Variables[k] = v
		}
	}
	return &cp
}

// Instance is one concrete pending notification derived from a
// template. The variant tag is recorded from the template at scheduling
// time so a fired instance dispatches without a template fetch.
type Instance struct {
	ID            string      `json:"id"`
	TemplateID    string      `json:"template_id"`
	UserID        string      `json:"user_id"`
	EntityType    EntityType  `json:"entity_type,omitempty"`
	EntityID      string      `json:"entity_id,omitempty"`
	Variant       VariantType `json:"variant"`
	ScheduledTime time.Time   `json:"scheduled_time"`
}

// Content is the resolved text of a notification at fire time.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
