package mem

import (
	"sync"

	"github.com/yshino/liveroom/store"
)

// Config represents the InMemory store config structure.
type Config struct{}

// InMemory represents the in-memory implementation of the Store interface.
type InMemory struct {
	cfg    *Config
	users  map[int64]store.User
	tokens map[string]int64
	seq    int64
	mu     sync.Mutex
}

// New returns a new in-memory store.
func New(cfg Config) (*InMemory, error) {
	return &InMemory{
		cfg:    &cfg,
		users:  map[int64]store.User{},
		tokens: map[string]int64{},
	}, nil
}

// AddUser adds a user to the store, assigning it the next ID in sequence.
func (m *InMemory) AddUser(u store.User) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	u.ID = m.seq
	m.users[u.ID] = u
	m.tokens[u.Token] = u.ID

	return u, nil
}

// GetUserByToken looks up a user by their access token.
func (m *InMemory) GetUserByToken(token string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.tokens[token]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	u, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return u, nil
}

// UpdateUser overwrites an existing user's profile.
func (m *InMemory) UpdateUser(u store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.users[u.ID]
	if !ok {
		return store.ErrUserNotFound
	}

	// The token is immutable.
	u.Token = cur.Token
	m.users[u.ID] = u

	return nil
}
