package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/baluarte/authgate/internal/store/core"
	"github.com/google/uuid"
)

// Store es un UserRepository en memoria para desarrollo y tests.
type Store struct {
	mu    sync.RWMutex
	users map[string]*core.User // key: username en minúsculas
}

func New() *Store {
	return &Store{users: map[string]*core.User{}}
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(username)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) Create(ctx context.Context, u *core.User) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, ok := s.users[key]; ok {
		return nil, core.ErrConflict
	}
	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.users[key] = &cp
	out := cp
	return &out, nil
}

func (s *Store) UpdateDuoUserID(ctx context.Context, userID, duoUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			u.DuoUserID = duoUserID
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, u := range s.users {
		if u.ID == userID {
			delete(s.users, key)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}
