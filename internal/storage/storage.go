package storage

import (
	"context"
	"time"

	"pushplan/internal/models"
)

// InstanceStore holds pending notification instances: one hash per
// instance plus a per-user and a global sorted set scored by scheduled
// time. Get returns nil, nil when the instance is gone.
type InstanceStore interface {
	PutInstance(ctx context.Context, inst *models.Instance) error
	GetInstance(ctx context.Context, id string) (*models.Instance, error)
	RemoveInstance(ctx context.Context, id string) error
	// DueWithin lists ids from the global sorted set with scheduled
	// time at or before the cutoff, ascending.
	DueWithin(ctx context.Context, cutoff time.Time) ([]string, error)
	UserInstances(ctx context.Context, userID string) ([]string, error)
}

// TemplateStore persists notification template rows. Get returns
// nil, nil when missing.
type TemplateStore interface {
	SaveTemplate(ctx context.Context, tpl *models.Template) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	TemplatesByUser(ctx context.Context, userID string) ([]*models.Template, error)
}

// SyncStateStore records which entities have broken away from their
// parent defaults. Presence of the marker means "not synced"; absence
// means the entity inherits implicitly.
type SyncStateStore interface {
	MarkSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) error
	ClearSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) error
	IsSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) (bool, error)
}

// TokenStore keeps each user's registered device push tokens.
type TokenStore interface {
	AddToken(ctx context.Context, userID, token string) error
	RemoveToken(ctx context.Context, userID, token string) error
	Tokens(ctx context.Context, userID string) ([]string, error)
}

// Storage is the full durable store surface the engine needs.
type Storage interface {
	InstanceStore
	TemplateStore
	SyncStateStore
	TokenStore
}
