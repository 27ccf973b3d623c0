package fs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/yshino/liveroom/store"
)

// Config represents the file store config structure.
type Config struct {
	Path string `koanf:"path"`
}

// File represents the file implementation of the Store interface. The state
// is held in memory and flushed to a JSON snapshot on a timer when dirty.
type File struct {
	cfg    *Config
	users  map[int64]store.User
	tokens map[string]int64
	seq    int64
	mu     sync.Mutex
	dirty  bool
	log    *log.Logger
}

type snapshot struct {
	Users  map[int64]store.User `json:"users"`
	Tokens map[string]int64     `json:"tokens"`
	Seq    int64                `json:"seq"`
}

// New returns a new file store.
func New(cfg Config, log *log.Logger) (*File, error) {
	store := &File{
		cfg:    &cfg,
		users:  map[int64]store.User{},
		tokens: map[string]int64{},
		log:    log,
	}
	err := store.load()
	go store.watch()
	return store, err
}

// watch flushes the store to disk periodically.
func (m *File) watch() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		m.save()
	}
}

// load the data from the file system.
func (m *File) load() error {
	data, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var x snapshot
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	// The token index is persisted separately since tokens are stripped
	// from user JSON everywhere else.
	m.users = x.Users
	m.seq = x.Seq
	m.tokens = x.Tokens
	if m.tokens == nil {
		m.tokens = map[string]int64{}
	}
	if m.users == nil {
		m.users = map[int64]store.User{}
	}
	return nil
}

// save the data to the file system.
func (m *File) save() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return
	}

	users := make(map[int64]store.User, len(m.users))
	for id, u := range m.users {
		users[id] = u
	}
	data, err := json.Marshal(snapshot{
		Users:  users,
		Tokens: m.tokens,
		Seq:    m.seq,
	})
	if err != nil {
		return
	}
	m.dirty = false
	go func() {
		if err := os.WriteFile(m.cfg.Path, data, 0644); err != nil {
			m.log.Printf("error writing file %q: %v", m.cfg.Path, err)
		}
	}()
}

// AddUser adds a user to the store, assigning it the next ID in sequence.
func (m *File) AddUser(u store.User) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	u.ID = m.seq
	m.users[u.ID] = u
	m.tokens[u.Token] = u.ID
	m.dirty = true

	return u, nil
}

// GetUserByToken looks up a user by their access token.
func (m *File) GetUserByToken(token string) (store.User, error) {
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
func (m *File) UpdateUser(u store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.users[u.ID]
	if !ok {
		return store.ErrUserNotFound
	}

	u.Token = cur.Token
	m.users[u.ID] = u
	m.dirty = true

	return nil
}
