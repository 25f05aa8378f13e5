package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"emberquest/server/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and local
// development without a database; the mutex gives it the same per-record
// serialization the MySQL store gets from row locking.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	adventures map[string]*models.Adventure
	turns      map[string][]*models.Turn
	limits     map[string]*models.RateLimitCounter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*models.User),
		adventures: make(map[string]*models.Adventure),
		turns:      make(map[string][]*models.Turn),
		limits:     make(map[string]*models.RateLimitCounter),
	}
}

// UpsertUser creates or refreshes a user row. On conflict only the display
// name changes; premium and email are owned by the external auth
// collaborator and survive request-path upserts.
func (s *MemoryStore) UpsertUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
		user.Premium = existing.Premium
		user.Email = existing.Email
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) CreateAdventure(ctx context.Context, adv *models.Adventure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.adventures[adv.ID]; ok {
		return fmt.Errorf("adventure %s already exists", adv.ID)
	}
	cp := *adv
	s.adventures[adv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAdventure(ctx context.Context, id string) (*models.Adventure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adv, ok := s.adventures[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *adv
	return &cp, nil
}

func (s *MemoryStore) GetActiveAdventure(ctx context.Context, ownerID string) (*models.Adventure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Adventure
	for _, adv := range s.adventures {
		if adv.OwnerID != ownerID || adv.Status != models.StatusActive {
			continue
		}
		if latest == nil || adv.LastPlayedAt.After(latest.LastPlayedAt) {
			latest = adv
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListAdventures(ctx context.Context, ownerID string, limit int) ([]*models.Adventure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var advs []*models.Adventure
	for _, adv := range s.adventures {
		if adv.OwnerID == ownerID {
			cp := *adv
			advs = append(advs, &cp)
		}
	}
	sort.Slice(advs, func(i, j int) bool {
		return advs[i].LastPlayedAt.After(advs[j].LastPlayedAt)
	})
	if limit > 0 && len(advs) > limit {
		advs = advs[:limit]
	}
	return advs, nil
}

func (s *MemoryStore) SaveAdventure(ctx context.Context, adv *models.Adventure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.adventures[adv.ID]; !ok {
		return ErrNotFound
	}
	cp := *adv
	s.adventures[adv.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteAdventure(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.adventures[id]; !ok {
		return ErrNotFound
	}
	delete(s.adventures, id)
	delete(s.turns, id)
	return nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, adv *models.Adventure, turn *models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.adventures[adv.ID]
	if !ok {
		return ErrNotFound
	}
	if current.TurnCount+1 != turn.TurnNumber {
		return fmt.Errorf("%w: adventure already at turn %d", ErrConflict, current.TurnCount)
	}
	advCp := *adv
	s.adventures[adv.ID] = &advCp
	turnCp := *turn
	s.turns[adv.ID] = append(s.turns[adv.ID], &turnCp)
	return nil
}

func (s *MemoryStore) ListTurns(ctx context.Context, adventureID string) ([]*models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]*models.Turn, 0, len(s.turns[adventureID]))
	for _, t := range s.turns[adventureID] {
		cp := *t
		turns = append(turns, &cp)
	}
	sort.Slice(turns, func(i, j int) bool {
		return turns[i].TurnNumber < turns[j].TurnNumber
	})
	return turns, nil
}

func (s *MemoryStore) ResetAdventure(ctx context.Context, adv *models.Adventure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.adventures[adv.ID]; !ok {
		return ErrNotFound
	}
	cp := *adv
	s.adventures[adv.ID] = &cp
	delete(s.turns, adv.ID)
	return nil
}

func (s *MemoryStore) GetRateLimit(ctx context.Context, ip string) (*models.RateLimitCounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counter, ok := s.limits[ip]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *counter
	return &cp, nil
}

func (s *MemoryStore) UpsertRateLimit(ctx context.Context, counter *models.RateLimitCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter.UpdatedAt = time.Now()
	cp := *counter
	s.limits[counter.IP] = &cp
	return nil
}
