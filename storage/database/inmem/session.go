package inmemdb

import (
	"context"

	"github.com/trezcool/propdesk/core/session"
)

type sessionStore struct {
	db *DB
}

var _ session.Store = (*sessionStore)(nil)

// NewSessionStore keeps sessions in process memory; they do not survive a restart.
func NewSessionStore(db *DB) session.Store {
	return &sessionStore{db: db}
}

func (store *sessionStore) Save(_ context.Context, sess session.Session) error {
	store.db.Lock()
	defer store.db.Unlock()

	store.db.sessions[sess.ID] = sess
	return nil
}

func (store *sessionStore) Get(_ context.Context, id string) (session.Session, error) {
	store.db.RLock()
	defer store.db.RUnlock()

	if sess, ok := store.db.sessions[id]; ok {
		return sess, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (store *sessionStore) Delete(_ context.Context, id string) error {
	store.db.Lock()
	defer store.db.Unlock()

	delete(store.db.sessions, id)
	return nil
}

func (store *sessionStore) DeleteUserSessions(_ context.Context, userID string) error {
	store.db.Lock()
	defer store.db.Unlock()

	for id, sess := range store.db.sessions {
		if sess.UserID == userID {
			delete(store.db.sessions, id)
		}
	}
	return nil
}
