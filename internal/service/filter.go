package service

import (
	"context"
	"time"

	"plant_monitor/internal/config"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/metrics"
	"plant_monitor/internal/models"
	"plant_monitor/internal/repository"
	"plant_monitor/internal/tsdb"
)

// FilterService reduces the raw series to change events: per machine,
// per parameter, a point is emitted only when the value differs from
// the previous one. Points accumulate in a per-machine bucket flushed
// at a size threshold; the durable watermark advances only once the
// bucket is empty, so a crash can reprocess an unflushed bucket but
// never skip it.
type FilterService struct {
	cfg     config.Filter
	store   tsdb.Store
	marks   repository.Watermarks
	metrics *metrics.Metrics
	log     *logger.Logger

	// In-memory read cursors run ahead of the durable watermark while a
	// bucket is partially filled.
	cursors map[models.MachineKey]time.Time
	buckets map[models.MachineKey][]models.Reading
}

func NewFilterService(cfg config.Filter, store tsdb.Store, marks repository.Watermarks, m *metrics.Metrics, log *logger.Logger) *FilterService {
	return &FilterService{
		cfg:     cfg,
		store:   store,
		marks:   marks,
		metrics: m,
		log:     log,
		cursors: make(map[models.MachineKey]time.Time),
		buckets: make(map[models.MachineKey][]models.Reading),
	}
}

// Run executes one cycle per interval until ctx is canceled.
func (s *FilterService) Run(ctx context.Context) {
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

// cycle processes every known machine once. A failing machine is logged
// and skipped; its watermark stays put so the next cycle retries the
// same range.
func (s *FilterService) cycle(ctx context.Context, now time.Time) {
	keys, err := s.store.DistinctMachines(ctx)
	if err != nil {
		s.log.Errorw("filter_list_machines_failed", "err", err)
		return
	}
	for _, key := range keys {
		if err := s.processMachine(ctx, key, now); err != nil {
			s.log.Errorw("filter_machine_failed", "plant_id", key.PlantID, "machine_id", key.MachineID, "err", err)
		}
	}
}

func (s *FilterService) processMachine(ctx context.Context, key models.MachineKey, now time.Time) error {
	cursor, ok := s.cursors[key]
	if !ok {
		wm, found, err := s.marks.Get(ctx, key)
		if err != nil {
			return err
		}
		if found {
			cursor = wm
		} else {
			cursor = now.Add(-s.cfg.Lookback)
		}
		s.cursors[key] = cursor
	}

	points, err := s.store.QueryRange(ctx, key, cursor, now)
	if err != nil {
		return err
	}
	if len(points) > 0 {
		s.cursors[key] = points[len(points)-1].Timestamp
		s.buckets[key] = append(s.buckets[key], points...)
	}

	if len(s.buckets[key]) >= s.cfg.FlushSize {
		if err := s.flush(ctx, key, s.buckets[key]); err != nil {
			// Bucket kept; comparison is deterministic so the retry
			// emits the identical set.
			return err
		}
		s.buckets[key] = s.buckets[key][:0]
	}

	// Empty bucket means everything read so far is durable in the
	// filtered store; safe to advance the watermark.
	if len(s.buckets[key]) == 0 && len(points) > 0 {
		if err := s.marks.Put(ctx, key, s.cursors[key]); err != nil {
			return err
		}
	}
	return nil
}

// flush compares each bucketed point against the previous value per
// parameter and writes the changed ones. Baselines are seeded from the
// filtered store so replays after a crash stay deterministic.
func (s *FilterService) flush(ctx context.Context, key models.MachineKey, bucket []models.Reading) error {
	prev := make(map[string]float64, len(models.Parameters))
	seen := make(map[string]bool, len(models.Parameters))
	for _, p := range models.Parameters {
		v, ok, err := s.store.LastFilteredValue(ctx, key, p)
		if err != nil {
			return err
		}
		if ok {
			prev[p] = v
			seen[p] = true
		}
	}

	var out []tsdb.FilteredPoint
	for _, point := range bucket {
		for _, p := range models.Parameters {
			v := point.Value(p)
			if !seen[p] || v != prev[p] {
				out = append(out, tsdb.FilteredPoint{
					Measurement: p,
					MachineID:   key.MachineID,
					PlantID:     key.PlantID,
					Value:       v,
					Timestamp:   point.Timestamp,
				})
			}
			prev[p] = v
			seen[p] = true
		}
	}

	if len(out) == 0 {
		return nil
	}
	if err := s.store.WriteFiltered(ctx, out); err != nil {
		return err
	}
	s.metrics.FilteredWritten.Add(float64(len(out)))
	return nil
}
