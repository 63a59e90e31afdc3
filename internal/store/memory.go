package store

import (
	"context"
	"sync"

	"github.com/JonMunkholm/rolodex/internal/core"
)

// MemoryStore keeps contacts in process memory, in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userContacts
}

type userContacts struct {
	order []string
	byID  map[string]core.Contact
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*userContacts)}
}

func (s *MemoryStore) user(userID string) *userContacts {
	u, ok := s.users[userID]
	if !ok {
		u = &userContacts{byID: make(map[string]core.Contact)}
		s.users[userID] = u
	}
	return u
}

func (u *userContacts) put(c core.Contact) {
	if _, exists := u.byID[c.ID]; !exists {
		u.order = append(u.order, c.ID)
	}
	u.byID[c.ID] = c.Clone()
}

// Add stores a new contact, assigning an id if it has none.
func (s *MemoryStore) Add(_ context.Context, userID string, c core.Contact) error {
	if c.ID == "" {
		c.ID = NewULID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).put(c)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID, id string) (core.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		if c, ok := u.byID[id]; ok {
			return c.Clone(), nil
		}
	}
	return core.Contact{}, core.ErrContactNotFound
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]core.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]core.Contact, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, u.byID[id].Clone())
	}
	return out, nil
}

// BulkPut inserts or replaces contacts by id. All of them are written or,
// when one lacks an id, none are.
func (s *MemoryStore) BulkPut(_ context.Context, userID string, contacts []core.Contact) error {
	for _, c := range contacts {
		if c.ID == "" {
			return errMissingID
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for _, c := range contacts {
		u.put(c)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrContactNotFound
	}
	if _, ok := u.byID[id]; !ok {
		return core.ErrContactNotFound
	}
	delete(u.byID, id)
	for i, v := range u.order {
		if v == id {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Count(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return len(u.byID), nil
	}
	return 0, nil
}

func (s *MemoryStore) Close() error { return nil }
