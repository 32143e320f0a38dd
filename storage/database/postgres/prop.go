package pgrepos

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/propdesk/core/prop"
)

type propRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r propRow) unpack() prop.Prop {
	return prop.Prop{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

type propRepository struct {
	db *sqlx.DB
}

var _ prop.Repository = (*propRepository)(nil) // interface compliance check

func NewPropRepository(db *sqlx.DB) prop.Repository {
	return &propRepository{db: db}
}

func (repo *propRepository) CreateProp(ctx context.Context, p prop.Prop) (prop.Prop, error) {
	qb := psql.Insert("props").
		Columns("name", "created_at").
		Values(p.Name, p.CreatedAt.UTC()).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &p.ID, qb); err != nil {
		return prop.Prop{}, storeError(ctx, err, "inserting prop")
	}
	return p, nil
}

func (repo *propRepository) QueryProps(ctx context.Context) ([]prop.Prop, error) {
	var rows []propRow
	qb := psql.Select("id", "name", "created_at").From("props").OrderBy("lower(name) ASC", "id ASC")
	if err := list(ctx, repo.db, &rows, qb); err != nil {
		return nil, storeError(ctx, err, "querying props")
	}
	props := make([]prop.Prop, 0, len(rows))
	for _, r := range rows {
		props = append(props, r.unpack())
	}
	return props, nil
}

func (repo *propRepository) GetProp(ctx context.Context, id int64) (prop.Prop, error) {
	var row propRow
	qb := psql.Select("id", "name", "created_at").From("props").Where(squirrel.Eq{"id": id})
	if err := get(ctx, repo.db, &row, qb); err != nil {
		return prop.Prop{}, trapNoRows(ctx, err, prop.ErrNotFound, "finding prop")
	}
	return row.unpack(), nil
}

func (repo *propRepository) RenameProp(ctx context.Context, id int64, name string) (prop.Prop, error) {
	var row propRow
	qb := psql.Update("props").
		Set("name", name).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING id, name, created_at")
	if err := get(ctx, repo.db, &row, qb); err != nil {
		return prop.Prop{}, trapNoRows(ctx, err, prop.ErrNotFound, "renaming prop")
	}
	return row.unpack(), nil
}

func (repo *propRepository) CountPropUsage(ctx context.Context, id int64) (int, error) {
	var cnt int
	qb := psql.Select("COUNT(*)").From("class_props").Where(squirrel.Eq{"prop_id": id})
	if err := get(ctx, repo.db, &cnt, qb); err != nil {
		return 0, storeError(ctx, err, "counting prop usage")
	}
	return cnt, nil
}

func (repo *propRepository) DeleteProp(ctx context.Context, id int64) (int, error) {
	var removed int64
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if removed, err = exec(ctx, tx, psql.Delete("class_props").Where(squirrel.Eq{"prop_id": id})); err != nil {
			return storeError(ctx, err, "deleting class props")
		}
		cnt, err := exec(ctx, tx, psql.Delete("props").Where(squirrel.Eq{"id": id}))
		if err != nil {
			return storeError(ctx, err, "deleting prop")
		}
		if cnt == 0 {
			return prop.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}
