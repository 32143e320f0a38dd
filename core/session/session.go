package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core/policy"
)

var (
	// errors
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")

	NowFunc = time.Now // mockable
)

// Session is the server-side record of a login.
// It is issued at login and invalidated at logout or expiry.
type Session struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	Role        policy.Role `json:"role"`
	IssuedAt    time.Time   `json:"issued_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

func (s Session) Expired() bool {
	return !NowFunc().Before(s.ExpiresAt)
}

// Can reports whether the session's role may perform action on a record owned by ownerID.
func (s Session) Can(action policy.Action, ownerID string, assigned bool) bool {
	return policy.Can(s.Role, action, policy.Context{ActorID: s.UserID, OwnerID: ownerID, Assigned: assigned})
}

func (s Session) IsAdmin() bool      { return s.Role.IsAdmin() }
func (s Session) IsInstructor() bool { return s.Role.IsInstructor() }

type (
	Store interface {
		Save(ctx context.Context, sess Session) error
		Get(ctx context.Context, id string) (Session, error)
		Delete(ctx context.Context, id string) error
		// DeleteUserSessions invalidates every session of userID.
		DeleteUserSessions(ctx context.Context, userID string) error
	}

	// Identity is what a session is issued for.
	Identity struct {
		UserID      string
		Username    string
		DisplayName string
		Role        policy.Role
	}

	Service interface {
		Issue(ctx context.Context, id Identity) (Session, error)
		Get(ctx context.Context, sessionID string) (Session, error)
		Revoke(ctx context.Context, sessionID string) error
		RevokeUser(ctx context.Context, userID string) error
	}

	service struct {
		store Store
		ttl   time.Duration
	}
)

var _ Service = (*service)(nil)

func NewService(store Store, ttl time.Duration) Service {
	return &service{store: store, ttl: ttl}
}

func (svc *service) Issue(ctx context.Context, id Identity) (Session, error) {
	now := NowFunc().UTC()
	sess := Session{
		ID:          uuid.New().String(),
		UserID:      id.UserID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Role:        id.Role,
		IssuedAt:    now,
		ExpiresAt:   now.Add(svc.ttl),
	}
	if err := svc.store.Save(ctx, sess); err != nil {
		return Session{}, errors.Wrap(err, "saving session")
	}
	return sess, nil
}

func (svc *service) Get(ctx context.Context, sessionID string) (Session, error) {
	sess, err := svc.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Expired() {
		_ = svc.store.Delete(ctx, sessionID)
		return Session{}, ErrExpired
	}
	return sess, nil
}

func (svc *service) Revoke(ctx context.Context, sessionID string) error {
	return svc.store.Delete(ctx, sessionID)
}

func (svc *service) RevokeUser(ctx context.Context, userID string) error {
	return svc.store.DeleteUserSessions(ctx, userID)
}
