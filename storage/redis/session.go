// Package redisstore keeps login sessions in Redis, expiring with their TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/session"
)

const keyPrefix = "propdesk:"

// Client is the subset of redis commands the session store needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

type sessionStore struct {
	client Client
}

var _ session.Store = (*sessionStore)(nil)

func NewSessionStore(client Client) session.Store {
	return &sessionStore{client: client}
}

// NewClient connects to the configured redis server.
func NewClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// storeError reports a failed redis command as a core.RemoteCallError.
// Once ctx is done the context error is kept as the cause instead.
func storeError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, op)
	}
	return core.NewRemoteCallError("session store: "+op, err)
}

func sessionKey(id string) string {
	return keyPrefix + "session:" + id
}

func userKey(userID string) string {
	return keyPrefix + "user_sessions:" + userID
}

func (store *sessionStore) Save(ctx context.Context, sess session.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return session.ErrExpired
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}

	_, err = store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
		pipe.SAdd(ctx, userKey(sess.UserID), sess.ID)
		// the index lives as long as the newest session
		pipe.Expire(ctx, userKey(sess.UserID), ttl)
		return nil
	})
	return storeError(ctx, err, "saving session")
}

func (store *sessionStore) Get(ctx context.Context, id string) (session.Session, error) {
	data, err := store.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, storeError(ctx, err, "getting session")
	}
	var sess session.Session
	if err = json.Unmarshal(data, &sess); err != nil {
		return session.Session{}, errors.Wrap(err, "decoding session")
	}
	return sess, nil
}

func (store *sessionStore) Delete(ctx context.Context, id string) error {
	sess, err := store.Get(ctx, id)
	if err != nil {
		if err == session.ErrNotFound {
			return nil
		}
		return err
	}
	_, err = store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, userKey(sess.UserID), id)
		return nil
	})
	return storeError(ctx, err, "deleting session")
}

func (store *sessionStore) DeleteUserSessions(ctx context.Context, userID string) error {
	ids, err := store.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return storeError(ctx, err, "listing user sessions")
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userKey(userID))
	return storeError(ctx, store.client.Del(ctx, keys...).Err(), "deleting user sessions")
}
