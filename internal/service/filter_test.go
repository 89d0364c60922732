package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"plant_monitor/internal/config"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/metrics"
	"plant_monitor/internal/models"
	"plant_monitor/internal/tsdb"

	"github.com/prometheus/client_golang/prometheus"
)

// ---- Test doubles ----

// filterStoreStub is an in-memory tsdb.Store shared by the service
// tests. The mutex covers concurrent writers in the ingest pool tests.
type filterStoreStub struct {
	mu            sync.Mutex
	readings      map[models.MachineKey][]models.Reading
	filtered      []tsdb.FilteredPoint
	writeFiltered error
}

func newFilterStoreStub() *filterStoreStub {
	return &filterStoreStub{readings: make(map[models.MachineKey][]models.Reading)}
}

func (s *filterStoreStub) WriteReading(ctx context.Context, r models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[r.Key()] = append(s.readings[r.Key()], r)
	return nil
}

func (s *filterStoreStub) countReadings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, rs := range s.readings {
		total += len(rs)
	}
	return total
}

func (s *filterStoreStub) readingsFor(key models.MachineKey) []models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Reading(nil), s.readings[key]...)
}

func (s *filterStoreStub) QueryRange(ctx context.Context, key models.MachineKey, start, end time.Time) ([]models.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reading
	for _, r := range s.readings[key] {
		if r.Timestamp.After(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *filterStoreStub) LatestPerMachine(ctx context.Context, since time.Time) ([]models.Reading, error) {
	return nil, nil
}

func (s *filterStoreStub) DistinctMachines(ctx context.Context) ([]models.MachineKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []models.MachineKey
	for key := range s.readings {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *filterStoreStub) WriteFiltered(ctx context.Context, points []tsdb.FilteredPoint) error {
	if s.writeFiltered != nil {
		return s.writeFiltered
	}
	s.filtered = append(s.filtered, points...)
	return nil
}

func (s *filterStoreStub) LastFilteredValue(ctx context.Context, key models.MachineKey, param string) (float64, bool, error) {
	var (
		latest tsdb.FilteredPoint
		found  bool
	)
	for _, p := range s.filtered {
		if p.PlantID != key.PlantID || p.MachineID != key.MachineID || p.Measurement != param {
			continue
		}
		if !found || p.Timestamp.After(latest.Timestamp) {
			latest = p
			found = true
		}
	}
	return latest.Value, found, nil
}

func (s *filterStoreStub) QueryFiltered(ctx context.Context, key models.MachineKey, param string, start, end time.Time) ([]tsdb.FilteredPoint, error) {
	return nil, nil
}

// watermarkStub records Put calls in memory.
type watermarkStub struct {
	marks map[models.MachineKey]time.Time
}

func newWatermarkStub() *watermarkStub {
	return &watermarkStub{marks: make(map[models.MachineKey]time.Time)}
}

func (w *watermarkStub) Get(ctx context.Context, key models.MachineKey) (time.Time, bool, error) {
	ts, ok := w.marks[key]
	return ts, ok, nil
}

func (w *watermarkStub) Put(ctx context.Context, key models.MachineKey, ts time.Time) error {
	w.marks[key] = ts
	return nil
}

func (w *watermarkStub) List(ctx context.Context) ([]models.Watermark, error) {
	return nil, nil
}

// ---- Helpers ----

func filterConfig() config.Filter {
	return config.Filter{Interval: time.Minute, FlushSize: 3, Lookback: 24 * time.Hour}
}

func newTestFilter(store *filterStoreStub, marks *watermarkStub) *FilterService {
	m := metrics.New(prometheus.NewRegistry())
	return NewFilterService(filterConfig(), store, marks, m, logger.Nop())
}

func tempReading(key models.MachineKey, ts time.Time, temp float64) models.Reading {
	r := models.Reading{
		Timestamp:     ts,
		PlantID:       key.PlantID,
		MachineID:     key.MachineID,
		MachineStatus: models.StatusOnline,
	}
	for _, p := range models.Parameters {
		r.SetValue(p, 1)
	}
	r.Temperature = temp
	return r
}

// ---- Tests ----

func TestFilter_EmitsFirstPointAndChangesOnly(t *testing.T) {
	key := models.MachineKey{PlantID: 1, MachineID: 1}
	store := newFilterStoreStub()
	marks := newWatermarkStub()
	svc := newTestFilter(store, marks)

	base := time.Now().UTC()
	temps := []float64{45, 45, 70}
	for i, v := range temps {
		_ = store.WriteReading(context.Background(), tempReading(key, base.Add(time.Duration(i+1)*time.Second), v))
	}

	svc.cycle(context.Background(), base.Add(time.Minute))

	var got []float64
	for _, p := range store.filtered {
		if p.Measurement == models.ParamTemperature {
			got = append(got, p.Value)
		}
	}
	want := []float64{45, 70}
	if len(got) != len(want) {
		t.Fatalf("expected %d temperature points, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("point %d: got %.1f, want %.1f", i, got[i], want[i])
		}
	}
}

func TestFilter_BucketHeldBelowFlushSize(t *testing.T) {
	key := models.MachineKey{PlantID: 1, MachineID: 2}
	store := newFilterStoreStub()
	marks := newWatermarkStub()
	svc := newTestFilter(store, marks)

	base := time.Now().UTC()
	_ = store.WriteReading(context.Background(), tempReading(key, base.Add(time.Second), 45))
	_ = store.WriteReading(context.Background(), tempReading(key, base.Add(2*time.Second), 46))

	svc.cycle(context.Background(), base.Add(time.Minute))

	if len(store.filtered) != 0 {
		t.Fatalf("expected no flush below threshold, got %d points", len(store.filtered))
	}
	if _, ok := marks.marks[key]; ok {
		t.Fatalf("watermark must not advance while bucket holds points")
	}

	// One more point crosses the threshold; the whole bucket flushes
	// and the watermark catches up.
	_ = store.WriteReading(context.Background(), tempReading(key, base.Add(3*time.Second), 47))
	svc.cycle(context.Background(), base.Add(2*time.Minute))

	if len(store.filtered) == 0 {
		t.Fatalf("expected flush at threshold")
	}
	wm, ok := marks.marks[key]
	if !ok {
		t.Fatalf("expected watermark after flush")
	}
	if want := base.Add(3 * time.Second); !wm.Equal(want) {
		t.Fatalf("watermark %v, want %v", wm, want)
	}
}

func TestFilter_FlushFailureKeepsBucketForRetry(t *testing.T) {
	key := models.MachineKey{PlantID: 1, MachineID: 3}
	store := newFilterStoreStub()
	marks := newWatermarkStub()
	svc := newTestFilter(store, marks)

	base := time.Now().UTC()
	for i, v := range []float64{41, 42, 43} {
		_ = store.WriteReading(context.Background(), tempReading(key, base.Add(time.Duration(i+1)*time.Second), v))
	}

	store.writeFiltered = errors.New("disk full")
	svc.cycle(context.Background(), base.Add(time.Minute))

	if len(store.filtered) != 0 {
		t.Fatalf("failed flush must not record points")
	}
	if _, ok := marks.marks[key]; ok {
		t.Fatalf("watermark must not advance after failed flush")
	}

	// Retry with the store healthy; the same bucket flushes once.
	store.writeFiltered = nil
	svc.cycle(context.Background(), base.Add(2*time.Minute))

	var temps []float64
	for _, p := range store.filtered {
		if p.Measurement == models.ParamTemperature {
			temps = append(temps, p.Value)
		}
	}
	if len(temps) != 3 {
		t.Fatalf("expected 3 temperature changes after retry, got %v", temps)
	}
}

func TestFilter_ResumesFromWatermarkNotLookback(t *testing.T) {
	key := models.MachineKey{PlantID: 2, MachineID: 1}
	store := newFilterStoreStub()
	marks := newWatermarkStub()
	svc := newTestFilter(store, marks)

	base := time.Now().UTC()
	// Old point behind the watermark must never be re-read.
	_ = store.WriteReading(context.Background(), tempReading(key, base.Add(-time.Hour), 99))
	marks.marks[key] = base

	for i, v := range []float64{45, 46, 47} {
		_ = store.WriteReading(context.Background(), tempReading(key, base.Add(time.Duration(i+1)*time.Second), v))
	}

	svc.cycle(context.Background(), base.Add(time.Minute))

	for _, p := range store.filtered {
		if p.Measurement == models.ParamTemperature && p.Value == 99 {
			t.Fatalf("point behind watermark was reprocessed")
		}
	}
}

func TestFilter_BaselineSeededFromFilteredStore(t *testing.T) {
	key := models.MachineKey{PlantID: 2, MachineID: 2}
	store := newFilterStoreStub()
	marks := newWatermarkStub()
	svc := newTestFilter(store, marks)

	base := time.Now().UTC()
	// Previously flushed value 45 is the baseline; a new run of 45s
	// emits nothing for temperature.
	store.filtered = append(store.filtered, tsdb.FilteredPoint{
		Measurement: models.ParamTemperature,
		MachineID:   key.MachineID,
		PlantID:     key.PlantID,
		Value:       45,
		Timestamp:   base.Add(-time.Minute),
	})

	for i := 0; i < 3; i++ {
		_ = store.WriteReading(context.Background(), tempReading(key, base.Add(time.Duration(i+1)*time.Second), 45))
	}

	svc.cycle(context.Background(), base.Add(time.Minute))

	count := 0
	for _, p := range store.filtered {
		if p.Measurement == models.ParamTemperature {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected only the pre-seeded temperature point, got %d", count)
	}
}
