package tsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plant_monitor/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps both measurements in a dedicated sqlite file,
// separate from the relational store. Times are integer unix
// nanoseconds; machine_status is 1=online, 0=offline.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schemaMachineData = `
CREATE TABLE IF NOT EXISTS machine_data (
    time INTEGER NOT NULL,
    plant_id INTEGER NOT NULL,
    machine_id INTEGER NOT NULL,
    temperature REAL NOT NULL,
    humidity REAL NOT NULL,
    power_supply REAL NOT NULL,
    vibration REAL NOT NULL,
    machine_status INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_machine_data_key_time
ON machine_data (plant_id, machine_id, time);
`

const schemaFilteredPoints = `
CREATE TABLE IF NOT EXISTS filtered_points (
    measurement TEXT NOT NULL,
    time INTEGER NOT NULL,
    plant_id INTEGER NOT NULL,
    machine_id INTEGER NOT NULL,
    value REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_filtered_points_key_time
ON filtered_points (measurement, plant_id, machine_id, time);
`

// Open opens/creates the time-series sqlite file and ensures tables
// exist.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open timeseries sqlite at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}
	for _, stmt := range []string{schemaMachineData, schemaFilteredPoints} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply timeseries schema: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping timeseries sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func statusToInt(status string) int {
	if status == models.StatusOffline {
		return 0
	}
	return 1
}

func statusFromInt(v int) string {
	if v == 0 {
		return models.StatusOffline
	}
	return models.StatusOnline
}

func (s *SQLiteStore) WriteReading(ctx context.Context, r models.Reading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO machine_data (time, plant_id, machine_id, temperature, humidity, power_supply, vibration, machine_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Timestamp.UTC().UnixNano(),
		r.PlantID,
		r.MachineID,
		r.Temperature,
		r.Humidity,
		r.PowerSupply,
		r.Vibration,
		statusToInt(r.MachineStatus),
	)
	if err != nil {
		return fmt.Errorf("insert machine_data point: %w", err)
	}
	return nil
}

func (s *SQLiteStore) QueryRange(ctx context.Context, key models.MachineKey, start, end time.Time) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, plant_id, machine_id, temperature, humidity, power_supply, vibration, machine_status
		FROM machine_data
		WHERE plant_id = ? AND machine_id = ? AND time > ? AND time <= ?
		ORDER BY time ASC
	`, key.PlantID, key.MachineID, start.UTC().UnixNano(), end.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query machine_data range %v: %w", key, err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

func (s *SQLiteStore) LatestPerMachine(ctx context.Context, since time.Time) ([]models.Reading, error) {
	// SQLite resolves bare columns against the MAX(time) row.
	rows, err := s.db.QueryContext(ctx, `
		SELECT MAX(time), plant_id, machine_id, temperature, humidity, power_supply, vibration, machine_status
		FROM machine_data
		WHERE time > ?
		GROUP BY plant_id, machine_id
		ORDER BY plant_id, machine_id
	`, since.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query latest machine_data: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

func (s *SQLiteStore) DistinctMachines(ctx context.Context) ([]models.MachineKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT plant_id, machine_id FROM machine_data
		ORDER BY plant_id, machine_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query distinct machines: %w", err)
	}
	defer rows.Close()

	var out []models.MachineKey
	for rows.Next() {
		var k models.MachineKey
		if err := rows.Scan(&k.PlantID, &k.MachineID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) WriteFiltered(ctx context.Context, points []FilteredPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin filtered write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO filtered_points (measurement, time, plant_id, machine_id, value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare filtered insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.Measurement, p.Timestamp.UTC().UnixNano(), p.PlantID, p.MachineID, p.Value,
		); err != nil {
			return fmt.Errorf("insert filtered point %s: %w", p.Measurement, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit filtered write: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastFilteredValue(ctx context.Context, key models.MachineKey, param string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM filtered_points
		WHERE measurement = ? AND plant_id = ? AND machine_id = ?
		ORDER BY time DESC LIMIT 1
	`, param, key.PlantID, key.MachineID).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query last filtered value %s %v: %w", param, key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) QueryFiltered(ctx context.Context, key models.MachineKey, param string, start, end time.Time) ([]FilteredPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT measurement, time, plant_id, machine_id, value
		FROM filtered_points
		WHERE measurement = ? AND plant_id = ? AND machine_id = ? AND time > ? AND time <= ?
		ORDER BY time ASC
	`, param, key.PlantID, key.MachineID, start.UTC().UnixNano(), end.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query filtered range %s %v: %w", param, key, err)
	}
	defer rows.Close()

	var out []FilteredPoint
	for rows.Next() {
		var p FilteredPoint
		var nanos int64
		if err := rows.Scan(&p.Measurement, &nanos, &p.PlantID, &p.MachineID, &p.Value); err != nil {
			return nil, err
		}
		p.Timestamp = time.Unix(0, nanos).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanReadings(rows *sql.Rows) ([]models.Reading, error) {
	var out []models.Reading
	for rows.Next() {
		var r models.Reading
		var nanos int64
		var status int
		if err := rows.Scan(&nanos, &r.PlantID, &r.MachineID, &r.Temperature, &r.Humidity, &r.PowerSupply, &r.Vibration, &status); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, nanos).UTC()
		r.MachineStatus = statusFromInt(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
