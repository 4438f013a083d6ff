package model

import "time"

type Driver struct {
	ID        string    `db:"driver_id" json:"driverId"`
	Name      string    `db:"driver_name" json:"driverName"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type UpsertDriverParams struct {
	ID   string
	Name string
}
