package service

import (
	"context"
	"time"

	"plant_monitor/internal/models"
	"plant_monitor/internal/repository"
	"plant_monitor/internal/tsdb"
)

// MonitoringService serves the read paths behind the HTTP API.
type MonitoringService struct {
	recency time.Duration
	store   tsdb.Store
	kpis    repository.KPIs
	notes   repository.Notifications
}

func NewMonitoringService(recency time.Duration, store tsdb.Store, kpis repository.KPIs, notes repository.Notifications) *MonitoringService {
	return &MonitoringService{recency: recency, store: store, kpis: kpis, notes: notes}
}

func (s *MonitoringService) Machines(ctx context.Context) ([]models.MachineKey, error) {
	return s.store.DistinctMachines(ctx)
}

// LatestStatuses returns each machine's newest snapshot within the
// recency window. Machines silent longer than that are omitted.
func (s *MonitoringService) LatestStatuses(ctx context.Context) ([]models.Reading, error) {
	return s.store.LatestPerMachine(ctx, time.Now().UTC().Add(-s.recency))
}

func (s *MonitoringService) KPIs(ctx context.Context) ([]models.KPIRecord, error) {
	return s.kpis.List(ctx)
}

func (s *MonitoringService) Notifications(ctx context.Context, f repository.NotificationFilter) ([]models.Notification, error) {
	return s.notes.List(ctx, f)
}

func (s *MonitoringService) ResolveNotification(ctx context.Context, id string) error {
	return s.notes.Resolve(ctx, id)
}

func (s *MonitoringService) HistoricalData(ctx context.Context, key models.MachineKey, start, end time.Time) ([]models.Reading, error) {
	return s.store.QueryRange(ctx, key, start, end)
}

func (s *MonitoringService) FilteredData(ctx context.Context, key models.MachineKey, param string, start, end time.Time) ([]tsdb.FilteredPoint, error) {
	return s.store.QueryFiltered(ctx, key, param, start, end)
}
