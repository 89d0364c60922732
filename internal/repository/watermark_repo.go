package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plant_monitor/internal/models"
)

type WatermarkSQLite struct {
	db *sql.DB
}

func NewWatermarkSQLite(db *sql.DB) *WatermarkSQLite {
	return &WatermarkSQLite{db: db}
}

var _ Watermarks = (*WatermarkSQLite)(nil)

const (
	selectWatermarkSQL = `
		SELECT last_processed FROM watermarks
		WHERE plant_id = ? AND machine_id = ?
	`

	// MAX keeps the stored value monotonic even if a stale cycle writes last.
	upsertWatermarkSQL = `
		INSERT INTO watermarks (plant_id, machine_id, last_processed)
		VALUES (?, ?, ?)
		ON CONFLICT(plant_id, machine_id) DO UPDATE SET
			last_processed = MAX(last_processed, excluded.last_processed)
	`

	listWatermarksSQL = `
		SELECT plant_id, machine_id, last_processed FROM watermarks
		ORDER BY plant_id, machine_id
	`
)

// Get returns the stored boundary for a machine; ok=false when the
// machine has never been processed.
func (r *WatermarkSQLite) Get(ctx context.Context, key models.MachineKey) (time.Time, bool, error) {
	var nanos int64
	err := r.db.QueryRowContext(ctx, selectWatermarkSQL, key.PlantID, key.MachineID).Scan(&nanos)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("select watermark %v: %w", key, err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

// Put advances the boundary. Older timestamps are ignored.
func (r *WatermarkSQLite) Put(ctx context.Context, key models.MachineKey, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, upsertWatermarkSQL, key.PlantID, key.MachineID, ts.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert watermark %v: %w", key, err)
	}
	return nil
}

func (r *WatermarkSQLite) List(ctx context.Context) ([]models.Watermark, error) {
	rows, err := r.db.QueryContext(ctx, listWatermarksSQL)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	var out []models.Watermark
	for rows.Next() {
		var w models.Watermark
		var nanos int64
		if err := rows.Scan(&w.PlantID, &w.MachineID, &nanos); err != nil {
			return nil, err
		}
		w.LastProcessed = time.Unix(0, nanos).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}
