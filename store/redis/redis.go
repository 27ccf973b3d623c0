package redis

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/yshino/liveroom/store"
)

// Config represents the Redis store config structure.
type Config struct {
	Address     string        `koanf:"address"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	ActiveConns int           `koanf:"active_conns"`
	IdleConns   int           `koanf:"idle_conns"`
	Timeout     time.Duration `koanf:"timeout"`

	PrefixUser  string `koanf:"prefix_user"`
	PrefixToken string `koanf:"prefix_token"`
	KeyUserSeq  string `koanf:"key_user_seq"`
}

// Redis represents the Redis implementation of the Store interface.
type Redis struct {
	cfg  *Config
	pool *redis.Pool
}

type user struct {
	ID           int64  `redis:"id"`
	Name         string `redis:"name"`
	LeaderCardID int    `redis:"leader_card_id"`
}

// New returns a new Redis store.
func New(cfg Config) (*Redis, error) {
	pool := &redis.Pool{
		Wait:      true,
		MaxActive: cfg.ActiveConns,
		MaxIdle:   cfg.IdleConns,
		Dial: func() (redis.Conn, error) {
			return redis.Dial(
				"tcp",
				cfg.Address,
				redis.DialPassword(cfg.Password),
				redis.DialConnectTimeout(cfg.Timeout),
				redis.DialReadTimeout(cfg.Timeout),
				redis.DialWriteTimeout(cfg.Timeout),
				redis.DialDatabase(cfg.DB),
			)
		},
	}

	// Test connection.
	c := pool.Get()
	defer c.Close()

	if err := c.Err(); err != nil {
		return nil, err
	}
	return &Redis{cfg: &cfg, pool: pool}, nil
}

// AddUser adds a user to the store, assigning it an ID from the sequence key.
func (r *Redis) AddUser(u store.User) (store.User, error) {
	c := r.pool.Get()
	defer c.Close()

	id, err := redis.Int64(c.Do("INCR", r.cfg.KeyUserSeq))
	if err != nil {
		return u, err
	}
	u.ID = id

	c.Send("HMSET", fmt.Sprintf(r.cfg.PrefixUser, u.ID),
		"id", u.ID,
		"name", u.Name,
		"leader_card_id", u.LeaderCardID)
	c.Send("SET", fmt.Sprintf(r.cfg.PrefixToken, u.Token), u.ID)
	return u, c.Flush()
}

// GetUserByToken looks up a user by their access token.
func (r *Redis) GetUserByToken(token string) (store.User, error) {
	c := r.pool.Get()
	defer c.Close()

	id, err := redis.Int64(c.Do("GET", fmt.Sprintf(r.cfg.PrefixToken, token)))
	if err == redis.ErrNil {
		return store.User{}, store.ErrUserNotFound
	}
	if err != nil {
		return store.User{}, err
	}

	var out user
	res, err := redis.Values(c.Do("HGETALL", fmt.Sprintf(r.cfg.PrefixUser, id)))
	if err != nil {
		return store.User{}, err
	}
	if err := redis.ScanStruct(res, &out); err != nil {
		return store.User{}, err
	}
	if out.ID == 0 {
		return store.User{}, store.ErrUserNotFound
	}

	return store.User{
		ID:           out.ID,
		Token:        token,
		Name:         out.Name,
		LeaderCardID: out.LeaderCardID,
	}, nil
}

// UpdateUser overwrites an existing user's profile.
func (r *Redis) UpdateUser(u store.User) error {
	c := r.pool.Get()
	defer c.Close()

	key := fmt.Sprintf(r.cfg.PrefixUser, u.ID)
	ok, err := redis.Bool(c.Do("EXISTS", key))
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrUserNotFound
	}

	_, err = c.Do("HMSET", key,
		"name", u.Name,
		"leader_card_id", u.LeaderCardID)
	return err
}
