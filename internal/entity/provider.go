// Package entity looks up live domain records for the engine. The rest
// of the application owns entity CRUD; this package only reads.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	wbfretry "github.com/wb-go/wbf/retry"

	"pushplan/internal/models"
)

// Provider fetches an entity's live data. A nil record with a nil error
// means the entity no longer exists.
type Provider interface {
	GetEntityData(ctx context.Context, userID string, et models.EntityType, entityID string) (map[string]any, error)
}

// RedisProvider reads entity records stored as JSON values under
// entity:{type}:{user}:{id}.
type RedisProvider struct {
	client *redis.Client
}

func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client}
}

func entityKey(userID string, et models.EntityType, entityID string) string {
	return "entity:" + string(et) + ":" + userID + ":" + entityID
}

func (p *RedisProvider) GetEntityData(ctx context.Context, userID string, et models.EntityType, entityID string) (map[string]any, error) {
	retryStrategy := wbfretry.Strategy{
		Attempts: 3,
		Delay:    100 * time.Millisecond,
		Backoff:  2,
	}

	var data []byte
	err := wbfretry.DoContext(ctx, retryStrategy, func() error {
		result, getErr := p.client.Get(ctx, entityKey(userID, et, entityID)).Bytes()
		if getErr != nil && getErr != redis.Nil {
			return getErr
		}
		data = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get entity data: %w", err)
	}

	if data == nil {
		return nil, nil
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity data: %w", err)
	}
	return record, nil
}

// RedisTimezones resolves user IANA zones stored under timezone:{user},
// defaulting to UTC when unset.
type RedisTimezones struct {
	client *redis.Client
}

func NewRedisTimezones(client *redis.Client) *RedisTimezones {
	return &RedisTimezones{client: client}
}

func (z *RedisTimezones) GetTimezone(ctx context.Context, userID string) (*time.Location, error) {
	name, err := z.client.Get(ctx, "timezone:"+userID).Result()
	if err == redis.Nil || name == "" {
		return time.UTC, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user timezone: %w", err)
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q for user %s: %w", name, userID, err)
	}
	return loc, nil
}

// MemoryProvider is an in-memory Provider for tests and Redis-less
// runs. Records are keyed the same way as the Redis implementation.
type MemoryProvider struct {
	mu      sync.RWMutex
	records map[string]map[string]any
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{records: make(map[string]map[string]any)}
}

func (p *MemoryProvider) Put(userID string, et models.EntityType, entityID string, record map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[entityKey(userID, et, entityID)] = record
}

func (p *MemoryProvider) Delete(userID string, et models.EntityType, entityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, entityKey(userID, et, entityID))
}

func (p *MemoryProvider) GetEntityData(ctx context.Context, userID string, et models.EntityType, entityID string) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	record, ok := p.records[entityKey(userID, et, entityID)]
	if !ok {
		return nil, nil
	}
	cp := make(map[string]any, len(record))
	for k, v := range record {
		cp[k] = v
	}
	return cp, nil
}

// StaticTimezones maps users to fixed zones; unknown users get the
// default. Zero value defaults to UTC.
type StaticTimezones struct {
	Default *time.Location
	Users   map[string]*time.Location
}

func (z StaticTimezones) GetTimezone(ctx context.Context, userID string) (*time.Location, error) {
	if loc, ok := z.Users[userID]; ok {
		return loc, nil
	}
	if z.Default != nil {
		return z.Default, nil
	}
	return time.UTC, nil
}
