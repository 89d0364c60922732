package repository

import (
	"context"
	"database/sql"
	"time"

	"plant_monitor/internal/models"
	"plant_monitor/internal/repository/db"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// Watermarks tracks the durable processing boundary per machine.
type Watermarks interface {
	Get(ctx context.Context, key models.MachineKey) (time.Time, bool, error)
	Put(ctx context.Context, key models.MachineKey, ts time.Time) error
	List(ctx context.Context) ([]models.Watermark, error)
}

// KPIs stores accumulated per-machine KPI records.
type KPIs interface {
	Get(ctx context.Context, key models.MachineKey) (models.KPIRecord, bool, error)
	List(ctx context.Context) ([]models.KPIRecord, error)
	ApplyIncrement(ctx context.Context, inc models.KPIIncrement) error
}

// NotificationFilter narrows List results. Zero values mean "any".
type NotificationFilter struct {
	From      time.Time
	To        time.Time
	Severity  string
	Status    string
	PlantID   int
	MachineID int
}

// Notifications is the append-only alert log.
type Notifications interface {
	Append(ctx context.Context, n models.Notification) error
	List(ctx context.Context, f NotificationFilter) ([]models.Notification, error)
	CountInRange(ctx context.Context, key models.MachineKey, start, end time.Time) (int, error)
	Resolve(ctx context.Context, id string) error
}

type Repository struct {
	Watermarks    Watermarks
	KPIs          KPIs
	Notifications Notifications
	Auth          Authorization
}

func NewRepository(database *sql.DB) *Repository {
	return &Repository{
		Watermarks:    NewWatermarkSQLite(database),
		KPIs:          NewKPISQLite(database),
		Notifications: NewNotificationSQLite(database),
		Auth:          NewUserRepository(database),
	}
}

// InitDB opens the relational store, see internal/repository/db.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}
