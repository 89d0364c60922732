package service

import (
	"context"
	"time"

	"plant_monitor/internal/audit"
	"plant_monitor/internal/config"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/models"
	"plant_monitor/internal/repository"
	"plant_monitor/internal/tsdb"
)

// KPIService converts raw status timelines into accumulated
// uptime/downtime minutes and alert counts, one pass over all known
// machines per schedule tick.
type KPIService struct {
	cfg   config.KPI
	store tsdb.Store
	kpis  repository.KPIs
	notes repository.Notifications
	audit audit.Sink
	log   *logger.Logger
}

func NewKPIService(cfg config.KPI, store tsdb.Store, kpis repository.KPIs, notes repository.Notifications, sink audit.Sink, log *logger.Logger) *KPIService {
	return &KPIService{cfg: cfg, store: store, kpis: kpis, notes: notes, audit: sink, log: log}
}

// Run performs one aggregation pass immediately, then one per interval.
func (s *KPIService) Run(ctx context.Context) {
	s.cycle(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.cycle(ctx, now.UTC())
		}
	}
}

func (s *KPIService) cycle(ctx context.Context, now time.Time) {
	keys, err := s.store.DistinctMachines(ctx)
	if err != nil {
		s.log.Errorw("kpi_list_machines_failed", "err", err)
		return
	}
	for _, key := range keys {
		if err := s.aggregate(ctx, key, now); err != nil {
			s.log.Errorw("kpi_aggregate_failed", "plant_id", key.PlantID, "machine_id", key.MachineID, "err", err)
		}
	}
}

// aggregate merges one machine's window (start, now] into its record.
// A window with no points leaves the record untouched.
func (s *KPIService) aggregate(ctx context.Context, key models.MachineKey, now time.Time) error {
	rec, found, err := s.kpis.Get(ctx, key)
	if err != nil {
		return err
	}
	start := now.Add(-s.cfg.Lookback)
	if found && !rec.LastProcessed.IsZero() {
		start = rec.LastProcessed
	}

	points, err := s.store.QueryRange(ctx, key, start, now)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	uptime, downtime := integrateStatus(points, start)
	alerts, err := s.notes.CountInRange(ctx, key, start, now)
	if err != nil {
		return err
	}

	inc := models.KPIIncrement{
		PlantID:            key.PlantID,
		MachineID:          key.MachineID,
		UptimeMinutes:      uptime,
		DowntimeMinutes:    downtime,
		NumAlertsTriggered: alerts,
		Timestamp:          now,
	}
	if err := s.kpis.ApplyIncrement(ctx, inc); err != nil {
		return err
	}
	if err := s.audit.RecordKPI(ctx, inc); err != nil {
		s.log.Errorw("kpi_audit_failed", "plant_id", key.PlantID, "machine_id", key.MachineID, "err", err)
	}
	return nil
}

// integrateStatus walks consecutive point pairs and sums segment
// durations in minutes by the earlier point's status. A single point
// contributes the segment [start, point.time]. Pairs ending at or
// before start are skipped so nothing outside the window leaks in.
func integrateStatus(points []models.Reading, start time.Time) (uptime, downtime float64) {
	if len(points) == 1 {
		d := points[0].Timestamp.Sub(start).Minutes()
		if d < 0 {
			d = 0
		}
		if points[0].Online() {
			return d, 0
		}
		return 0, d
	}

	for i := 1; i < len(points); i++ {
		if !points[i].Timestamp.After(start) {
			continue
		}
		d := points[i].Timestamp.Sub(points[i-1].Timestamp).Minutes()
		if points[i-1].Online() {
			uptime += d
		} else {
			downtime += d
		}
	}
	return uptime, downtime
}
