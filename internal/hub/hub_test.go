package hub

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIDsMonotonic(t *testing.T) {
	h := newTestHub(4)

	var last int64
	for id := int64(1); id <= 5; id++ {
		room, err := h.CreateRoom(profile(id), 100, DiffNormal)
		require.NoError(t, err)
		assert.Greater(t, room.ID, last)
		last = room.ID
	}
}

func TestGetRoomNotFound(t *testing.T) {
	h := newTestHub(4)
	_, err := h.GetRoom(42)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCreateRoomWhileSeated(t *testing.T) {
	h := newTestHub(4)
	_, err := h.CreateRoom(profile(1), 100, DiffNormal)
	require.NoError(t, err)

	_, err = h.CreateRoom(profile(1), 200, DiffNormal)
	assert.ErrorIs(t, err, ErrUserBusy)
}

func TestMaxRooms(t *testing.T) {
	h := newTestHub(4)
	h.cfg.MaxRooms = 2

	_, err := h.CreateRoom(profile(1), 100, DiffNormal)
	require.NoError(t, err)
	_, err = h.CreateRoom(profile(2), 100, DiffNormal)
	require.NoError(t, err)

	_, err = h.CreateRoom(profile(3), 100, DiffNormal)
	assert.ErrorIs(t, err, ErrTooManyRooms)
}

func TestListRooms(t *testing.T) {
	h := newTestHub(4)

	r1, err := h.CreateRoom(profile(1), 100, DiffNormal)
	require.NoError(t, err)
	r2, err := h.CreateRoom(profile(2), 100, DiffHard)
	require.NoError(t, err)
	_, err = h.CreateRoom(profile(3), 200, DiffNormal)
	require.NoError(t, err)

	// Listing is per song, in creation order.
	out := h.ListRooms(100)
	require.Len(t, out, 2)
	assert.Equal(t, r1.ID, out[0].RoomID)
	assert.Equal(t, r2.ID, out[1].RoomID)
	assert.Equal(t, int64(100), out[0].SongID)
	assert.Equal(t, 1, out[0].JoinedUserCount)
	assert.Equal(t, 4, out[0].MaxUserCount)

	// Started and dissolved rooms disappear from listings but stay
	// reachable by id.
	require.Equal(t, StartOK, r1.Start(1))
	require.Equal(t, LeaveOK, r2.Leave(2))

	out = h.ListRooms(100)
	assert.Empty(t, out)

	got, err := h.GetRoom(r1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, got.ID)
	got, err = h.GetRoom(r2.ID)
	require.NoError(t, err)
	status, _ := got.Snapshot()
	assert.Equal(t, StatusDissolved, status)
}

func TestListRoomsFullIncluded(t *testing.T) {
	h := newTestHub(2)
	room, err := h.CreateRoom(profile(1), 100, DiffNormal)
	require.NoError(t, err)
	require.Equal(t, JoinOK, room.Join(profile(2), DiffNormal))

	out := h.ListRooms(100)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].JoinedUserCount)
}

func TestRoomOf(t *testing.T) {
	h := newTestHub(4)
	room, err := h.CreateRoom(profile(1), 100, DiffNormal)
	require.NoError(t, err)

	id, ok := h.RoomOf(1)
	assert.True(t, ok)
	assert.Equal(t, room.ID, id)

	_, ok = h.RoomOf(2)
	assert.False(t, ok)
}

func TestSweepPurgesDissolved(t *testing.T) {
	cfg := &Config{
		RoomCapacity:       4,
		DissolvedRetention: time.Duration(30) * time.Second,
		WSTimeout:          time.Duration(5) * time.Second,
	}
	h := NewHub(cfg, log.New(io.Discard, "", 0))

	room, err := h.CreateRoom(profile(1), 100, DiffNormal)
	require.NoError(t, err)
	room.Dispose()

	// Within the retention window the dissolved room stays queryable.
	h.sweep(time.Now())
	_, err = h.GetRoom(room.ID)
	require.NoError(t, err)

	h.sweep(time.Now().Add(time.Minute))
	_, err = h.GetRoom(room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, h.ListRooms(100))
}

func TestSweepDissolvesIdleRooms(t *testing.T) {
	cfg := &Config{
		RoomCapacity:       4,
		RoomIdleTimeout:    time.Duration(30) * time.Minute,
		DissolvedRetention: time.Duration(30) * time.Second,
		WSTimeout:          time.Duration(5) * time.Second,
	}
	h := NewHub(cfg, log.New(io.Discard, "", 0))

	room, err := h.CreateRoom(profile(1), 100, DiffNormal)
	require.NoError(t, err)

	h.sweep(time.Now())
	status, _ := room.Snapshot()
	require.Equal(t, StatusWaiting, status)

	h.sweep(time.Now().Add(time.Hour))
	status, _ = room.Snapshot()
	assert.Equal(t, StatusDissolved, status)

	// The host is free again once the idle room is dissolved.
	_, err = h.CreateRoom(profile(1), 100, DiffNormal)
	assert.NoError(t, err)
}
