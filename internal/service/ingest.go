package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"plant_monitor/internal/config"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/metrics"
	"plant_monitor/internal/models"
	"plant_monitor/internal/tsdb"
)

// IngestService subscribes to all machine topics and persists each
// payload as one raw time-series point, timestamped at receipt.
// Ingestion is at-most-once: malformed messages are dropped with a log
// line and store failures are not retried.
type IngestService struct {
	cfg     config.Ingest
	sub     Subscriber
	store   tsdb.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewIngestService(cfg config.Ingest, sub Subscriber, store tsdb.Store, m *metrics.Metrics, log *logger.Logger) *IngestService {
	return &IngestService{cfg: cfg, sub: sub, store: store, metrics: m, log: log}
}

// telemetryPayload mirrors the broker JSON. Pointer fields distinguish
// missing keys from zero values.
type telemetryPayload struct {
	PlantID       *int     `json:"plant_id"`
	MachineID     *int     `json:"machine_id"`
	Temperature   *float64 `json:"temperature"`
	Humidity      *float64 `json:"humidity"`
	PowerSupply   *float64 `json:"power_supply"`
	Vibration     *float64 `json:"vibration"`
	MachineStatus *string  `json:"machine_status"`
}

// Run subscribes and dispatches messages onto a bounded worker pool.
// The subscription handler blocks when all workers are busy, applying
// backpressure at the broker client. Returns once ctx is canceled and
// the workers have stopped. The jobs channel is never closed: the
// broker client may still deliver while it disconnects, and a late
// handler call must not panic.
func (s *IngestService) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan []byte, s.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case payload := <-jobs:
					s.process(ctx, payload)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	err := s.sub.Subscribe(ctx, s.cfg.Topic, func(_ string, payload []byte) {
		select {
		case jobs <- payload:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// process validates and writes one message.
func (s *IngestService) process(ctx context.Context, payload []byte) {
	r, ok := s.parse(payload)
	if !ok {
		s.metrics.IngestDropped.Inc()
		return
	}
	if err := s.store.WriteReading(ctx, r); err != nil {
		// At-most-once: the reading is not retried.
		s.log.Errorw("ingest_write_failed", "plant_id", r.PlantID, "machine_id", r.MachineID, "err", err)
		return
	}
	s.metrics.PointsIngested.Inc()
}

func (s *IngestService) parse(payload []byte) (models.Reading, bool) {
	var p telemetryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Infow("ingest_malformed_payload", "err", err)
		return models.Reading{}, false
	}
	if p.PlantID == nil || p.MachineID == nil || p.Temperature == nil ||
		p.Humidity == nil || p.PowerSupply == nil || p.Vibration == nil || p.MachineStatus == nil {
		s.log.Infow("ingest_missing_field")
		return models.Reading{}, false
	}

	status := strings.ToLower(*p.MachineStatus)
	if status != models.StatusOnline && status != models.StatusOffline {
		s.log.Infow("ingest_invalid_status", "machine_status", *p.MachineStatus)
		return models.Reading{}, false
	}

	return models.Reading{
		Timestamp:     time.Now().UTC(), // receipt time
		PlantID:       *p.PlantID,
		MachineID:     *p.MachineID,
		Temperature:   *p.Temperature,
		Humidity:      *p.Humidity,
		PowerSupply:   *p.PowerSupply,
		Vibration:     *p.Vibration,
		MachineStatus: status,
	}, true
}
