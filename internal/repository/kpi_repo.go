package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plant_monitor/internal/models"
)

type KPISQLite struct {
	db *sql.DB
}

func NewKPISQLite(db *sql.DB) *KPISQLite {
	return &KPISQLite{db: db}
}

var _ KPIs = (*KPISQLite)(nil)

const (
	selectKPISQL = `
		SELECT plant_id, machine_id, uptime_min, downtime_min, num_alerts, failure_rate, last_processed
		FROM kpi_records WHERE plant_id = ? AND machine_id = ?
	`

	listKPISQL = `
		SELECT plant_id, machine_id, uptime_min, downtime_min, num_alerts, failure_rate, last_processed
		FROM kpi_records ORDER BY plant_id, machine_id
	`

	// The conflict branch accumulates and recomputes failure_rate from the
	// accumulated totals in a single statement, so a cycle's update is
	// all-or-nothing for the machine.
	applyKPIIncrementSQL = `
		INSERT INTO kpi_records (plant_id, machine_id, uptime_min, downtime_min, num_alerts, failure_rate, last_processed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plant_id, machine_id) DO UPDATE SET
			uptime_min   = uptime_min + excluded.uptime_min,
			downtime_min = downtime_min + excluded.downtime_min,
			num_alerts   = num_alerts + excluded.num_alerts,
			failure_rate = CASE
				WHEN uptime_min + excluded.uptime_min + downtime_min + excluded.downtime_min > 0
				THEN CAST(num_alerts + excluded.num_alerts AS REAL)
					/ (uptime_min + excluded.uptime_min + downtime_min + excluded.downtime_min)
				ELSE 0
			END,
			last_processed = excluded.last_processed
	`
)

func (r *KPISQLite) Get(ctx context.Context, key models.MachineKey) (models.KPIRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, selectKPISQL, key.PlantID, key.MachineID)
	rec, err := scanKPIRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.KPIRecord{}, false, nil
		}
		return models.KPIRecord{}, false, fmt.Errorf("select kpi %v: %w", key, err)
	}
	return rec, true, nil
}

func (r *KPISQLite) List(ctx context.Context) ([]models.KPIRecord, error) {
	rows, err := r.db.QueryContext(ctx, listKPISQL)
	if err != nil {
		return nil, fmt.Errorf("list kpi records: %w", err)
	}
	defer rows.Close()

	var out []models.KPIRecord
	for rows.Next() {
		rec, err := scanKPIRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApplyIncrement merges one aggregation cycle's contribution into the
// machine's record, creating it on first contact.
func (r *KPISQLite) ApplyIncrement(ctx context.Context, inc models.KPIIncrement) error {
	total := inc.UptimeMinutes + inc.DowntimeMinutes
	rate := 0.0
	if total > 0 {
		rate = float64(inc.NumAlertsTriggered) / total
	}
	_, err := r.db.ExecContext(ctx, applyKPIIncrementSQL,
		inc.PlantID,
		inc.MachineID,
		inc.UptimeMinutes,
		inc.DowntimeMinutes,
		inc.NumAlertsTriggered,
		rate,
		inc.Timestamp.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("apply kpi increment %v: %w", inc.Key(), err)
	}
	return nil
}

func scanKPIRecord(scan func(dest ...any) error) (models.KPIRecord, error) {
	var rec models.KPIRecord
	var nanos int64
	if err := scan(
		&rec.PlantID,
		&rec.MachineID,
		&rec.UptimeMinutes,
		&rec.DowntimeMinutes,
		&rec.NumAlertsTriggered,
		&rec.FailureRate,
		&nanos,
	); err != nil {
		return models.KPIRecord{}, err
	}
	rec.LastProcessed = time.Unix(0, nanos).UTC()
	return rec, nil
}
