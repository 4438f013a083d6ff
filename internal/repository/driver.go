package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/Nekit-S/drowsiness-detection/internal/database"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
)

type DriverRepository interface {
	FindByID(ctx context.Context, id string) (*model.Driver, error)
	FindAll(ctx context.Context) ([]model.Driver, error)
	Upsert(ctx context.Context, params model.UpsertDriverParams) (*model.Driver, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type driverRepo struct {
	db database.DBTX
}

func NewDriverRepository(db *sqlx.DB) DriverRepository {
	return &driverRepo{db: db}
}

func (r *driverRepo) FindByID(ctx context.Context, id string) (*model.Driver, error) {
	var driver model.Driver
	err := r.db.GetContext(ctx, &driver, `
		SELECT * FROM drivers WHERE driver_id = $1
	`, id)
	return HandleNotFound(&driver, err)
}

func (r *driverRepo) FindAll(ctx context.Context) ([]model.Driver, error) {
	var drivers []model.Driver
	err := r.db.SelectContext(ctx, &drivers, `
		SELECT * FROM drivers ORDER BY driver_id
	`)
	return drivers, err
}

func (r *driverRepo) Upsert(ctx context.Context, params model.UpsertDriverParams) (*model.Driver, error) {
	var driver model.Driver
	err := r.db.GetContext(ctx, &driver, `
		INSERT INTO drivers (driver_id, driver_name)
		VALUES ($1, $2)
		ON CONFLICT (driver_id) DO UPDATE SET driver_name = EXCLUDED.driver_name
		RETURNING *
	`, params.ID, params.Name)
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

func (r *driverRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM drivers WHERE driver_id = $1)
	`, id)
	return exists, err
}
