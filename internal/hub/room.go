package hub

import (
	"encoding/json"
	"sync"
	"time"
)

// Difficulty is a member's per-song difficulty selection. It is informational
// state shown to the other members, not a matchmaking filter.
type Difficulty string

// Known difficulties.
const (
	DiffEasy   Difficulty = "easy"
	DiffNormal Difficulty = "normal"
	DiffHard   Difficulty = "hard"
	DiffExpert Difficulty = "expert"
	DiffMaster Difficulty = "master"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DiffEasy, DiffNormal, DiffHard, DiffExpert, DiffMaster:
		return true
	}
	return false
}

// Status represents a room's lifecycle state. Transitions move forward only,
// except for the waiting<->full oscillation driven by the member count.
type Status string

// Room statuses.
const (
	StatusWaiting    Status = "waiting"
	StatusFull       Status = "full"
	StatusInProgress Status = "in_progress"
	StatusDissolved  Status = "dissolved"
)

// JoinResult is the outcome of a join attempt. All values are expected
// outcomes that polling clients handle as routine control flow.
type JoinResult string

// Join outcomes.
const (
	JoinOK            JoinResult = "ok"
	JoinRoomFull      JoinResult = "room_full"
	JoinNotJoinable   JoinResult = "not_joinable"
	JoinAlreadyInRoom JoinResult = "already_in_room"
)

// LeaveResult is the outcome of a leave attempt.
type LeaveResult string

// Leave outcomes.
const (
	LeaveOK         LeaveResult = "ok"
	LeaveNotAMember LeaveResult = "not_a_member"
)

// StartResult is the outcome of a start attempt.
type StartResult string

// Start outcomes.
const (
	StartOK           StartResult = "ok"
	StartForbidden    StartResult = "forbidden"
	StartInvalidState StartResult = "invalid_state"
)

// Profile carries the directory-resolved identity needed to seat a member.
type Profile struct {
	UserID       int64
	Name         string
	LeaderCardID int
}

// Member is one seated user in a room.
type Member struct {
	UserID       int64      `json:"user_id"`
	Name         string     `json:"name"`
	LeaderCardID int        `json:"leader_card_id"`
	Difficulty   Difficulty `json:"select_difficulty"`
	IsHost       bool       `json:"is_host"`
}

// Room is a bounded-capacity session of users preparing to play one song.
// Every mutation runs under mut; the hub's presence index is updated inside
// the same critical section so that a user is never seated in two rooms.
type Room struct {
	ID     int64
	SongID int64

	hub *Hub
	mut sync.Mutex

	status   Status
	capacity int
	hostID   int64

	// Host first, then join order. The order is part of the contract so
	// that polling clients can diff member lists between reads.
	members []Member

	watchers    map[*Watcher]bool
	lastActive  time.Time
	dissolvedAt time.Time
}

// msgStatus is the payload pushed to watchers. It is built once per change
// and shared across connections, so it carries no caller-relative fields.
type msgStatus struct {
	RoomID  int64    `json:"room_id"`
	Status  Status   `json:"status"`
	Members []Member `json:"room_user_list"`
}

func newRoom(id, songID int64, capacity int, host Profile, d Difficulty, h *Hub) *Room {
	return &Room{
		ID:       id,
		SongID:   songID,
		hub:      h,
		status:   StatusWaiting,
		capacity: capacity,
		hostID:   host.UserID,
		members: []Member{{
			UserID:       host.UserID,
			Name:         host.Name,
			LeaderCardID: host.LeaderCardID,
			Difficulty:   d,
			IsHost:       true,
		}},
		watchers:   map[*Watcher]bool{},
		lastActive: time.Now(),
	}
}

// Join seats a user in the room. A repeated join by a user who is already a
// member of this room is a no-op success; a user seated in another room is
// rejected without touching this room's state.
func (r *Room) Join(p Profile, d Difficulty) JoinResult {
	r.mut.Lock()
	defer r.mut.Unlock()

	if r.status == StatusDissolved || r.status == StatusInProgress {
		return JoinNotJoinable
	}
	for _, m := range r.members {
		if m.UserID == p.UserID {
			return JoinOK
		}
	}
	if len(r.members) >= r.capacity {
		return JoinRoomFull
	}
	if !r.hub.claimPresence(p.UserID, r.ID) {
		return JoinAlreadyInRoom
	}

	r.members = append(r.members, Member{
		UserID:       p.UserID,
		Name:         p.Name,
		LeaderCardID: p.LeaderCardID,
		Difficulty:   d,
	})
	if len(r.members) == r.capacity {
		r.status = StatusFull
	}
	r.touch()
	r.notifyWatchers()
	return JoinOK
}

// Leave removes a user from the room. The host leaving dissolves the room
// regardless of remaining members; there is no host migration.
func (r *Room) Leave(userID int64) LeaveResult {
	r.mut.Lock()
	defer r.mut.Unlock()

	idx := -1
	for i, m := range r.members {
		if m.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LeaveNotAMember
	}

	if userID == r.hostID {
		r.dissolve()
		return LeaveOK
	}

	r.members = append(r.members[:idx], r.members[idx+1:]...)
	r.hub.releasePresence(userID, r.ID)

	if len(r.members) == 0 {
		r.dissolve()
		return LeaveOK
	}
	if r.status == StatusFull {
		r.status = StatusWaiting
	}
	r.touch()
	r.notifyWatchers()
	return LeaveOK
}

// Start moves the room into the in_progress state. Only the host may start,
// and only from waiting or full.
func (r *Room) Start(userID int64) StartResult {
	r.mut.Lock()
	defer r.mut.Unlock()

	if userID != r.hostID {
		return StartForbidden
	}
	if r.status != StatusWaiting && r.status != StatusFull {
		return StartInvalidState
	}

	r.status = StatusInProgress
	r.touch()
	r.notifyWatchers()
	return StartOK
}

// Snapshot returns the room's status and member list, host first and then in
// join order. The copy never observes a partially applied join or leave.
func (r *Room) Snapshot() (Status, []Member) {
	r.mut.Lock()
	defer r.mut.Unlock()

	out := make([]Member, len(r.members))
	copy(out, r.members)
	return r.status, out
}

// Dispose dissolves the room regardless of membership, releasing every
// member's presence claim and closing all watchers.
func (r *Room) Dispose() {
	r.mut.Lock()
	defer r.mut.Unlock()

	if r.status == StatusDissolved {
		return
	}
	r.dissolve()
}

// dissolve must be called with the room lock held.
func (r *Room) dissolve() {
	r.status = StatusDissolved
	r.dissolvedAt = time.Now()
	for _, m := range r.members {
		r.hub.releasePresence(m.UserID, r.ID)
	}
	r.members = nil

	r.notifyWatchers()
	for w := range r.watchers {
		w.close()
		delete(r.watchers, w)
	}
}

// touch must be called with the room lock held.
func (r *Room) touch() {
	r.lastActive = time.Now()
}

// summary reports the room's listing entry. Rooms that are in progress or
// dissolved are absent from listings.
func (r *Room) summary() (Summary, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if r.status != StatusWaiting && r.status != StatusFull {
		return Summary{}, false
	}
	return Summary{
		RoomID:          r.ID,
		SongID:          r.SongID,
		JoinedUserCount: len(r.members),
		MaxUserCount:    r.capacity,
	}, true
}

// sweepState reports the fields the hub janitor needs.
func (r *Room) sweepState() (Status, time.Time, time.Time) {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.status, r.dissolvedAt, r.lastActive
}

// snapshotPayload must be called with the room lock held.
func (r *Room) snapshotPayload() []byte {
	members := make([]Member, len(r.members))
	copy(members, r.members)
	b, _ := json.Marshal(msgStatus{
		RoomID:  r.ID,
		Status:  r.status,
		Members: members,
	})
	return b
}

// notifyWatchers must be called with the room lock held.
func (r *Room) notifyWatchers() {
	if len(r.watchers) == 0 {
		return
	}
	b := r.snapshotPayload()
	for w := range r.watchers {
		w.send(b)
	}
}
