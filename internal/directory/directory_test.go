package directory

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yshino/liveroom/store/mem"
)

func newTestDirectory(t *testing.T) *Directory {
	s, err := mem.New(mem.Config{})
	require.NoError(t, err)
	return New(s, 32, log.New(io.Discard, "", 0))
}

func TestCreateAndResolve(t *testing.T) {
	d := newTestDirectory(t)

	token, err := d.CreateUser("mizuki", 5)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	u, err := d.ResolveToken(token)
	require.NoError(t, err)
	assert.Equal(t, "mizuki", u.Name)
	assert.Equal(t, 5, u.LeaderCardID)
	assert.Equal(t, token, u.Token)
	assert.NotZero(t, u.ID)
}

func TestResolveUnknownToken(t *testing.T) {
	d := newTestDirectory(t)

	_, err := d.ResolveToken("nosuchtoken")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = d.ResolveToken("")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokensAreUnique(t *testing.T) {
	d := newTestDirectory(t)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := d.CreateUser("u", 1)
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestUpdateUser(t *testing.T) {
	d := newTestDirectory(t)

	token, err := d.CreateUser("before", 1)
	require.NoError(t, err)

	require.NoError(t, d.UpdateUser(token, "after", 9))

	u, err := d.ResolveToken(token)
	require.NoError(t, err)
	assert.Equal(t, "after", u.Name)
	assert.Equal(t, 9, u.LeaderCardID)
}

func TestUpdateUnknownToken(t *testing.T) {
	d := newTestDirectory(t)
	assert.ErrorIs(t, d.UpdateUser("nosuchtoken", "x", 1), ErrUnauthorized)
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(48)
	require.NoError(t, err)
	assert.Len(t, token, 48)
}
