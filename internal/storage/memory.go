package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"pushplan/internal/models"
)

// MemoryStorage is an in-memory Storage used by tests and Redis-less
// local runs.
type MemoryStorage struct {
	mu        sync.RWMutex
	instances map[string]*models.Instance
	templates map[string]*models.Template
	broken    map[string]bool
	tokens    map[string][]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		instances: make(map[string]*models.Instance),
		templates: make(map[string]*models.Template),
		broken:    make(map[string]bool),
		tokens:    make(map[string][]string),
	}
}

func (s *MemoryStorage) PutInstance(ctx context.Context, inst *models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (s *MemoryStorage) RemoveInstance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, id)
	return nil
}

func (s *MemoryStorage) DueWithin(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Instance
	for _, inst := range s.instances {
		if !inst.ScheduledTime.After(cutoff) {
			due = append(due, inst)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledTime.Before(due[j].ScheduledTime)
	})

	ids := make([]string, 0, len(due))
	for _, inst := range due {
		ids = append(ids, inst.ID)
	}
	return ids, nil
}

func (s *MemoryStorage) UserInstances(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.Instance
	for _, inst := range s.instances {
		if inst.UserID == userID {
			list = append(list, inst)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ScheduledTime.Before(list[j].ScheduledTime)
	})

	ids := make([]string, 0, len(list))
	for _, inst := range list {
		ids = append(ids, inst.ID)
	}
	return ids, nil
}

func (s *MemoryStorage) SaveTemplate(ctx context.Context, tpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[tpl.ID] = tpl.Clone()
	return nil
}

func (s *MemoryStorage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	return tpl.Clone(), nil
}

func (s *MemoryStorage) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.templates, id)
	return nil
}

func (s *MemoryStorage) TemplatesByUser(ctx context.Context, userID string) ([]*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var templates []*models.Template
	for _, tpl := range s.templates {
		if tpl.UserID == userID {
			templates = append(templates, tpl.Clone())
		}
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.Before(templates[j].CreatedAt)
	})
	return templates, nil
}

func (s *MemoryStorage) MarkSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broken[syncBrokenKey(userID, et, entityID)] = true
	return nil
}

func (s *MemoryStorage) ClearSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.broken, syncBrokenKey(userID, et, entityID))
	return nil
}

func (s *MemoryStorage) IsSyncBroken(ctx context.Context, userID string, et models.EntityType, entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.broken[syncBrokenKey(userID, et, entityID)], nil
}

func (s *MemoryStorage) AddToken(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens[userID] {
		if t == token {
			return nil
		}
	}
	s.tokens[userID] = append(s.tokens[userID], token)
	return nil
}

func (s *MemoryStorage) RemoveToken(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.tokens[userID]
	for i, t := range tokens {
		if t == token {
			s.tokens[userID] = append(tokens[:i], tokens[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStorage) Tokens(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.tokens[userID]...), nil
}
