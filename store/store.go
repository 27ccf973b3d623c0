package store

import "errors"

// Store represents a backend store for the user directory.
type Store interface {
	// AddUser persists a new user, assigns it a unique ID, and indexes it by
	// its access token. The stored user is returned with the ID filled in.
	AddUser(u User) (User, error)
	GetUserByToken(token string) (User, error)
	UpdateUser(u User) error
}

// User represents the properties of a user in the store. The token is the
// opaque bearer credential issued at creation; it never changes and is never
// serialized in responses.
type User struct {
	ID           int64  `json:"id"`
	Token        string `json:"-"`
	Name         string `json:"name"`
	LeaderCardID int    `json:"leader_card_id"`
}

// ErrUserNotFound indicates that the requested user was not found.
var ErrUserNotFound = errors.New("user not found")
