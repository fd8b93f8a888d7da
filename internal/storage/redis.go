package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	wbfredis "github.com/wb-go/wbf/redis"
	wbfretry "github.com/wb-go/wbf/retry"

	"pushplan/internal/models"
)

const (
	instanceKeyPrefix   = "instance:"
	instancesDueKey     = "instances:due"
	instancesUserPrefix = "instances:user:"
	templateKeyPrefix   = "template:"
	templatesUserPrefix = "templates:user:"
	syncBrokenPrefix    = "syncbroken:"
	tokensUserPrefix    = "tokens:user:"
)

var opRetry = wbfretry.Strategy{
	Attempts: 3,
	Delay:    100 * time.Millisecond,
	Backoff:  2,
}

type RedisStorage struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisStorage(addr string, log zerolog.Logger) (*RedisStorage, error) {
	wbfClient := wbfredis.New(addr, "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connectRetry := wbfretry.Strategy{
		Attempts: 5,
		Delay:    1 * time.Second,
		Backoff:  2,
	}

	err := wbfretry.DoContext(ctx, connectRetry, func() error {
		return wbfClient.Ping(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", addr).Msg("connected to Redis")

	return &RedisStorage{
		client: wbfClient.Client,
		log:    log,
	}, nil
}

// Client exposes the underlying connection for collaborators that read
// adjacent keys (entity records, timezones).
func (s *RedisStorage) Client() *redis.Client { return s.client }

func (s *RedisStorage) PutInstance(ctx context.Context, inst *models.Instance) error {
	fields := map[string]interface{}{
		"template_id":    inst.TemplateID,
		"user_id":        inst.UserID,
		"entity_type":    string(inst.EntityType),
		"entity_id":      inst.EntityID,
		"variant":        string(inst.Variant),
		"scheduled_time": inst.ScheduledTime.UTC().Format(time.RFC3339Nano),
	}

	err := wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.HSet(ctx, instanceKeyPrefix+inst.ID, fields).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to store instance: %w", err)
	}

	member := &redis.Z{
		Score:  float64(inst.ScheduledTime.UnixMilli()),
		Member: inst.ID,
	}

	err = wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.ZAdd(ctx, instancesUserPrefix+inst.UserID, member).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to add instance to user set: %w", err)
	}

	err = wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.ZAdd(ctx, instancesDueKey, member).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to add instance to due set: %w", err)
	}

	return nil
}

func (s *RedisStorage) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	var fields map[string]string

	err := wbfretry.DoContext(ctx, opRetry, func() error {
		result, getErr := s.client.HGetAll(ctx, instanceKeyPrefix+id).Result()
		if getErr != nil {
			return getErr
		}
		fields = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if len(fields) == 0 {
		return nil, nil
	}

	scheduled, err := time.Parse(time.RFC3339Nano, fields["scheduled_time"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance scheduled time: %w", err)
	}

	return &models.Instance{
		ID:            id,
		TemplateID:    fields["template_id"],
		UserID:        fields["user_id"],
		EntityType:    models.EntityType(fields["entity_type"]),
		EntityID:      fields["entity_id"],
		Variant:       models.VariantType(fields["variant"]),
		ScheduledTime: scheduled,
	}, nil
}

func (s *RedisStorage) RemoveInstance(ctx context.Context, id string) error {
	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return err
	}

	err = wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.Del(ctx, instanceKeyPrefix+id).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	if inst != nil {
		s.client.ZRem(ctx, instancesUserPrefix+inst.UserID, id)
	}
	s.client.ZRem(ctx, instancesDueKey, id)

	return nil
}

func (s *RedisStorage) DueWithin(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string

	err := wbfretry.DoContext(ctx, opRetry, func() error {
		result, rangeErr := s.client.ZRangeByScore(ctx, instancesDueKey, &redis.ZRangeBy{
			Min: "0",
			Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
		}).Result()
		if rangeErr != nil {
			return rangeErr
		}
		ids = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query due instances: %w", err)
	}

	return ids, nil
}

func (s *RedisStorage) UserInstances(ctx context.Context, userID string) ([]string, error) {
	key := instancesUserPrefix + userID
	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user instances: %w", err)
	}

	// RemoveInstance cannot clean this set when the hash is already
	// gone (the user id lives only in the hash), so stale members are
	// swept on read.
	live := ids[:0]
	for _, id := range ids {
		n, existsErr := s.client.Exists(ctx, instanceKeyPrefix+id).Result()
		if existsErr != nil {
			return nil, fmt.Errorf("failed to check instance: %w", existsErr)
		}
		if n == 0 {
			s.client.ZRem(ctx, key, id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

func (s *RedisStorage) SaveTemplate(ctx context.Context, tpl *models.Template) error {
	data, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	err = wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.Set(ctx, templateKeyPrefix+tpl.ID, data, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to store template: %w", err)
	}

	err = wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.SAdd(ctx, templatesUserPrefix+tpl.UserID, tpl.ID).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to index template: %w", err)
	}

	return nil
}

func (s *RedisStorage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var data []byte

	err := wbfretry.DoContext(ctx, opRetry, func() error {
		result, getErr := s.client.Get(ctx, templateKeyPrefix+id).Bytes()
		if getErr != nil && getErr != redis.Nil {
			return getErr
		}
		data = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if data == nil {
		return nil, nil
	}

	var tpl models.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}

	return &tpl, nil
}

func (s *RedisStorage) DeleteTemplate(ctx context.Context, id string) error {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	err = wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.Del(ctx, templateKeyPrefix+id).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	if tpl != nil {
		s.client.SRem(ctx, templatesUserPrefix+tpl.UserID, id)
	}

	return nil
}

func (s *RedisStorage) TemplatesByUser(ctx context.Context, userID string) ([]*models.Template, error) {
	ids, err := s.client.SMembers(ctx, templatesUserPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user templates: %w", err)
	}

	var templates []*models.Template
	for _, id := range ids {
		tpl, err := s.GetTemplate(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("template_id", id).Msg("failed to load template")
			continue
		}
		if tpl != nil {
			templates = append(templates, tpl)
		}
	}

	return templates, nil
}

func syncBrokenKey(userID string, et models.EntityType, entityID string) string {
	return syncBrokenPrefix + userID + ":" + string(et) + ":" + entityID
}

func (s *RedisStorage) MarkSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) error {
	err := wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.Set(ctx, syncBrokenKey(userID, et, entityID), "1", 0).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to mark sync broken: %w", err)
	}
	return nil
}

func (s *RedisStorage) ClearSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) error {
	err := wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.Del(ctx, syncBrokenKey(userID, et, entityID)).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to clear sync state: %w", err)
	}
	return nil
}

func (s *RedisStorage) IsSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) (bool, error) {
	n, err := s.client.Exists(ctx, syncBrokenKey(userID, et, entityID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check sync state: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStorage) AddToken(ctx context.Context, userID, token string) error {
	err := wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.SAdd(ctx, tokensUserPrefix+userID, token).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to add token: %w", err)
	}
	return nil
}

func (s *RedisStorage) RemoveToken(ctx context.Context, userID, token string) error {
	err := wbfretry.DoContext(ctx, opRetry, func() error {
		return s.client.SRem(ctx, tokensUserPrefix+userID, token).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

func (s *RedisStorage) Tokens(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.client.SMembers(ctx, tokensUserPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}
