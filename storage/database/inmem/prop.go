package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/propdesk/core/prop"
)

type propRepository struct {
	db *DB
}

var _ prop.Repository = (*propRepository)(nil)

func NewPropRepository(db *DB) prop.Repository {
	return &propRepository{db: db}
}

func (repo *propRepository) CreateProp(_ context.Context, p prop.Prop) (prop.Prop, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.nextID()
	repo.db.props[p.ID] = &p
	return p, nil
}

func (repo *propRepository) QueryProps(_ context.Context) ([]prop.Prop, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	props := make([]prop.Prop, 0, len(repo.db.props))
	for _, p := range repo.db.props {
		props = append(props, *p)
	}
	sort.Slice(props, func(i, j int) bool {
		a, b := strings.ToLower(props[i].Name), strings.ToLower(props[j].Name)
		if a == b {
			return props[i].ID < props[j].ID
		}
		return a < b
	})
	return props, nil
}

func (repo *propRepository) GetProp(_ context.Context, id int64) (prop.Prop, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.props[id]; ok {
		return *p, nil
	}
	return prop.Prop{}, prop.ErrNotFound
}

func (repo *propRepository) RenameProp(_ context.Context, id int64, name string) (prop.Prop, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.props[id]
	if !ok {
		return prop.Prop{}, prop.ErrNotFound
	}
	p.Name = name
	for _, cp := range repo.db.classProps {
		if cp.PropID == id {
			cp.PropName = name
		}
	}
	return *p, nil
}

func (repo *propRepository) CountPropUsage(_ context.Context, id int64) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var cnt int
	for _, cp := range repo.db.classProps {
		if cp.PropID == id {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *propRepository) DeleteProp(_ context.Context, id int64) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.props[id]; !ok {
		return 0, prop.ErrNotFound
	}
	delete(repo.db.props, id)

	var cnt int
	for cpID, cp := range repo.db.classProps {
		if cp.PropID == id {
			delete(repo.db.classProps, cpID)
			cnt++
		}
	}
	return cnt, nil
}
