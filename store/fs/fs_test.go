package fs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yshino/liveroom/store"
)

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liveroom.json")
	m, err := New(Config{Path: path}, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	_, err = m.GetUserByToken("any")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liveroom.json")
	b, err := json.Marshal(snapshot{
		Users: map[int64]store.User{
			1: {ID: 1, Name: "aoi", LeaderCardID: 3},
		},
		Tokens: map[string]int64{"tok1": 1},
		Seq:    1,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0644))

	m, err := New(Config{Path: path}, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	got, err := m.GetUserByToken("tok1")
	require.NoError(t, err)
	assert.Equal(t, "aoi", got.Name)
	assert.Equal(t, 3, got.LeaderCardID)

	// The sequence continues past loaded users.
	u, err := m.AddUser(store.User{Token: "tok2", Name: "rin"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.ID)
}

func TestAddUpdateGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liveroom.json")
	m, err := New(Config{Path: path}, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	u, err := m.AddUser(store.User{Token: "tok1", Name: "before", LeaderCardID: 1})
	require.NoError(t, err)

	u.Name = "after"
	require.NoError(t, m.UpdateUser(u))

	got, err := m.GetUserByToken("tok1")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, "tok1", got.Token)
}
