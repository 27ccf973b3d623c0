// Package directory issues opaque access tokens and maps them back to user
// profiles. It is the only component that touches the user store; the room
// layer consumes resolved users, never tokens.
package directory

import (
	"crypto/rand"
	"errors"
	"log"

	"github.com/yshino/liveroom/store"
)

// ErrUnauthorized indicates a token that resolves to no known user.
var ErrUnauthorized = errors.New("unauthorized")

// Directory is the user directory backed by a pluggable store.
type Directory struct {
	store    store.Store
	tokenLen int
	log      *log.Logger
}

// New returns a new instance of Directory.
func New(s store.Store, tokenLen int, l *log.Logger) *Directory {
	if tokenLen <= 0 {
		tokenLen = 32
	}
	return &Directory{store: s, tokenLen: tokenLen, log: l}
}

// CreateUser registers a new user and returns the opaque token issued to it.
func (d *Directory) CreateUser(name string, leaderCardID int) (string, error) {
	token, err := GenerateToken(d.tokenLen)
	if err != nil {
		d.log.Printf("error generating user token: %v", err)
		return "", errors.New("error generating token")
	}

	if _, err := d.store.AddUser(store.User{
		Token:        token,
		Name:         name,
		LeaderCardID: leaderCardID,
	}); err != nil {
		d.log.Printf("error creating user in the store: %v", err)
		return "", errors.New("error creating user")
	}
	return token, nil
}

// ResolveToken maps a bearer token to the user it was issued to. An unknown
// or empty token yields ErrUnauthorized; any other error is a store fault.
func (d *Directory) ResolveToken(token string) (store.User, error) {
	if token == "" {
		return store.User{}, ErrUnauthorized
	}

	u, err := d.store.GetUserByToken(token)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return store.User{}, ErrUnauthorized
		}
		return store.User{}, err
	}
	u.Token = token
	return u, nil
}

// UpdateUser overwrites the profile attached to the given token.
func (d *Directory) UpdateUser(token, name string, leaderCardID int) error {
	u, err := d.ResolveToken(token)
	if err != nil {
		return err
	}

	u.Name = name
	u.LeaderCardID = leaderCardID
	return d.store.UpdateUser(u)
}

// GenerateToken generates a cryptographically random, alphanumeric string of
// length n.
func GenerateToken(n int) (string, error) {
	const dictionary = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	var bytes = make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for k, v := range bytes {
		bytes[k] = dictionary[v%byte(len(dictionary))]
	}
	return string(bytes), nil
}
