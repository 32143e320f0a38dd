// Package prop manages the global catalogue of equipment tags.
package prop

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/session"
)

var ErrNotFound = errors.New("prop not found")

type Prop struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProp is used both to create and to rename a Prop.
type NewProp struct {
	Name string `json:"name" validate:"required,notblank,max=128"`
}

func (np *NewProp) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	return validate.Struct(np)
}

type (
	Repository interface {
		CreateProp(ctx context.Context, p Prop) (Prop, error)
		// QueryProps returns all props ordered by name.
		QueryProps(ctx context.Context) ([]Prop, error)
		GetProp(ctx context.Context, id int64) (Prop, error)
		RenameProp(ctx context.Context, id int64, name string) (Prop, error)
		// CountPropUsage counts the class props referencing the prop.
		CountPropUsage(ctx context.Context, id int64) (int, error)
		// DeleteProp deletes the prop and the class props referencing it.
		// It returns how many class props were removed.
		DeleteProp(ctx context.Context, id int64) (int, error)
	}

	Service interface {
		List(ctx context.Context, sess session.Session) ([]Prop, error)
		Create(ctx context.Context, sess session.Session, np NewProp) (Prop, error)
		Rename(ctx context.Context, sess session.Session, id int64, np NewProp) (Prop, error)
		Usage(ctx context.Context, sess session.Session, id int64) (int, error)
		Delete(ctx context.Context, sess session.Session, id int64) (int, error)
	}

	service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate) Service {
	return &service{repo: repo, validate: validate}
}

func (svc *service) List(ctx context.Context, sess session.Session) ([]Prop, error) {
	if !sess.Can(policy.ViewLookup, "", false) {
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryProps(ctx)
}

func (svc *service) Create(ctx context.Context, sess session.Session, np NewProp) (Prop, error) {
	if !sess.Can(policy.CreateProp, "", false) {
		return Prop{}, core.ErrForbidden
	}
	if err := np.Validate(svc.validate); err != nil {
		return Prop{}, err
	}
	return svc.repo.CreateProp(ctx, Prop{Name: np.Name, CreatedAt: time.Now().UTC()})
}

func (svc *service) Rename(ctx context.Context, sess session.Session, id int64, np NewProp) (Prop, error) {
	if !sess.Can(policy.RenameProp, "", false) {
		return Prop{}, core.ErrForbidden
	}
	if err := np.Validate(svc.validate); err != nil {
		return Prop{}, err
	}
	return svc.repo.RenameProp(ctx, id, np.Name)
}

func (svc *service) Usage(ctx context.Context, sess session.Session, id int64) (int, error) {
	if !sess.Can(policy.ViewLookup, "", false) {
		return 0, core.ErrForbidden
	}
	if _, err := svc.repo.GetProp(ctx, id); err != nil {
		return 0, err
	}
	return svc.repo.CountPropUsage(ctx, id)
}

// Delete removes the prop and every class prop that referenced it.
func (svc *service) Delete(ctx context.Context, sess session.Session, id int64) (int, error) {
	if !sess.Can(policy.DeleteProp, "", false) {
		return 0, core.ErrForbidden
	}
	if _, err := svc.repo.GetProp(ctx, id); err != nil {
		return 0, err
	}
	return svc.repo.DeleteProp(ctx, id)
}
