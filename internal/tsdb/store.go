// Package tsdb holds the time-series side of the system: the raw
// machine_data measurement written by the ingest path and the
// change-only filtered points written by the downsampler.
package tsdb

import (
	"context"
	"time"

	"plant_monitor/internal/models"
)

// FilteredPoint is a single-parameter change event. Measurement is the
// parameter name, the timestamp is the original reading time.
type FilteredPoint struct {
	Measurement string    `json:"measurement"`
	MachineID   int       `json:"machine_id"`
	PlantID     int       `json:"plant_id"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store is the time-series persistence contract used by the pipeline.
type Store interface {
	// WriteReading appends one raw point to machine_data.
	WriteReading(ctx context.Context, r models.Reading) error

	// QueryRange returns raw points for one machine with
	// start < time <= end, in ascending time order.
	QueryRange(ctx context.Context, key models.MachineKey, start, end time.Time) ([]models.Reading, error)

	// LatestPerMachine returns the most recent point per machine among
	// points newer than since.
	LatestPerMachine(ctx context.Context, since time.Time) ([]models.Reading, error)

	// DistinctMachines lists every (plant, machine) pair seen in
	// machine_data.
	DistinctMachines(ctx context.Context) ([]models.MachineKey, error)

	// WriteFiltered appends change events to the filtered store.
	WriteFiltered(ctx context.Context, points []FilteredPoint) error

	// LastFilteredValue returns the most recent filtered value for one
	// machine/parameter; ok=false when none exists.
	LastFilteredValue(ctx context.Context, key models.MachineKey, param string) (float64, bool, error)

	// QueryFiltered returns filtered points for one machine/parameter
	// with start < time <= end, ascending.
	QueryFiltered(ctx context.Context, key models.MachineKey, param string, start, end time.Time) ([]FilteredPoint, error)
}
