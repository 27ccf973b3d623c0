package hub

import (
	"errors"
	"log"
	"sync"
	"time"
)

// Config represents the app configuration.
type Config struct {
	Address string `koanf:"address"`
	Name    string `koanf:"name"`

	RoomCapacity       int           `koanf:"room_capacity"`
	MaxRooms           int           `koanf:"max_rooms"`
	RoomIdleTimeout    time.Duration `koanf:"room_idle_timeout"`
	DissolvedRetention time.Duration `koanf:"dissolved_retention"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	WSTimeout          time.Duration `koanf:"websocket_timeout"`
	TokenLength        int           `koanf:"token_length"`
}

// Errors returned by registry operations. Expected per-room outcomes are
// typed results on Room instead.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrTooManyRooms = errors.New("too many live rooms")
	ErrUserBusy     = errors.New("user is already in a room")
)

// Summary is one room's entry in a song's listing.
type Summary struct {
	RoomID          int64 `json:"room_id"`
	SongID          int64 `json:"live_id"`
	JoinedUserCount int   `json:"joined_user_count"`
	MaxUserCount    int   `json:"max_user_count"`
}

// Hub acts as the registry and container for all live rooms.
type Hub struct {
	cfg *Config
	log *log.Logger

	mut    sync.RWMutex
	rooms  map[int64]*Room
	order  []int64 // creation order, keeps listings stable
	nextID int64

	// userID -> roomID. A user is seated in at most one room system-wide.
	pmut     sync.Mutex
	presence map[int64]int64
}

// NewHub returns a new instance of Hub and starts its janitor if a sweep
// interval is configured.
func NewHub(cfg *Config, l *log.Logger) *Hub {
	h := &Hub{
		cfg:      cfg,
		log:      l,
		rooms:    map[int64]*Room{},
		presence: map[int64]int64{},
	}
	if cfg.SweepInterval > 0 {
		go h.watch()
	}
	return h
}

// CreateRoom allocates a fresh room id and creates a room with the given user
// seated as its host. The host must not be in another room.
func (h *Hub) CreateRoom(host Profile, songID int64, d Difficulty) (*Room, error) {
	h.mut.Lock()
	defer h.mut.Unlock()

	if h.cfg.MaxRooms > 0 && len(h.rooms) >= h.cfg.MaxRooms {
		return nil, ErrTooManyRooms
	}

	h.nextID++
	id := h.nextID
	if !h.claimPresence(host.UserID, id) {
		return nil, ErrUserBusy
	}

	r := newRoom(id, songID, h.cfg.RoomCapacity, host, d, h)
	h.rooms[id] = r
	h.order = append(h.order, id)

	h.log.Printf("user %d created room %d (song %d)", host.UserID, id, songID)
	return r, nil
}

// GetRoom retrieves a room from the registry. Dissolved rooms remain
// reachable until the janitor purges them, so that polling clients observe
// the dissolved status instead of a not-found.
func (h *Hub) GetRoom(id int64) (*Room, error) {
	h.mut.RLock()
	defer h.mut.RUnlock()

	r, ok := h.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// ListRooms returns summaries of the joinable rooms for a song, in room
// creation order.
func (h *Hub) ListRooms(songID int64) []Summary {
	h.mut.RLock()
	rooms := make([]*Room, 0, len(h.order))
	for _, id := range h.order {
		if r, ok := h.rooms[id]; ok && r.SongID == songID {
			rooms = append(rooms, r)
		}
	}
	h.mut.RUnlock()

	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		if s, ok := r.summary(); ok {
			out = append(out, s)
		}
	}
	return out
}

// RoomOf reports the room the user is currently seated in, if any.
func (h *Hub) RoomOf(userID int64) (int64, bool) {
	h.pmut.Lock()
	defer h.pmut.Unlock()
	id, ok := h.presence[userID]
	return id, ok
}

// claimPresence records the user as seated in the given room. It fails if the
// user is seated elsewhere and is a no-op if the claim is already held.
func (h *Hub) claimPresence(userID, roomID int64) bool {
	h.pmut.Lock()
	defer h.pmut.Unlock()

	if cur, ok := h.presence[userID]; ok && cur != roomID {
		return false
	}
	h.presence[userID] = roomID
	return true
}

// releasePresence drops the user's claim if it is held for the given room.
func (h *Hub) releasePresence(userID, roomID int64) {
	h.pmut.Lock()
	defer h.pmut.Unlock()

	if cur, ok := h.presence[userID]; ok && cur == roomID {
		delete(h.presence, userID)
	}
}

// watch runs the janitor loop.
func (h *Hub) watch() {
	t := time.NewTicker(h.cfg.SweepInterval)
	defer t.Stop()
	for range t.C {
		h.sweep(time.Now())
	}
}

// sweep dissolves rooms that have been idle past the timeout and purges
// dissolved rooms past the retention window.
func (h *Hub) sweep(now time.Time) {
	h.mut.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mut.RUnlock()

	var purge []int64
	for _, r := range rooms {
		status, dissolvedAt, lastActive := r.sweepState()
		switch {
		case status == StatusDissolved:
			if now.Sub(dissolvedAt) >= h.cfg.DissolvedRetention {
				purge = append(purge, r.ID)
			}
		case h.cfg.RoomIdleTimeout > 0 && now.Sub(lastActive) >= h.cfg.RoomIdleTimeout:
			r.Dispose()
			h.log.Printf("dissolved idle room %d", r.ID)
		}
	}
	if len(purge) > 0 {
		h.removeRooms(purge)
	}
}

// removeRooms deletes purged rooms from the registry and the listing order.
func (h *Hub) removeRooms(ids []int64) {
	h.mut.Lock()
	defer h.mut.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(h.rooms, id)
	}

	order := h.order[:0]
	for _, id := range h.order {
		if !drop[id] {
			order = append(order, id)
		}
	}
	h.order = order
}
