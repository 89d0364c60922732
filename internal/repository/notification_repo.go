package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"plant_monitor/internal/models"

	"github.com/google/uuid"
)

type NotificationSQLite struct {
	db *sql.DB
}

func NewNotificationSQLite(db *sql.DB) *NotificationSQLite {
	return &NotificationSQLite{db: db}
}

var _ Notifications = (*NotificationSQLite)(nil)

const (
	insertNotificationSQL = `
		INSERT INTO notifications (id, machine_id, plant_id, parameter, threshold, timestamp, severity, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	countNotificationsSQL = `
		SELECT COUNT(*) FROM notifications
		WHERE plant_id = ? AND machine_id = ? AND timestamp > ? AND timestamp <= ?
	`

	resolveNotificationSQL = `
		UPDATE notifications SET status = ? WHERE id = ?
	`
)

// Append inserts a new alert. ID, timestamp and status are defaulted
// when empty.
func (r *NotificationSQLite) Append(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = models.NotificationUnresolved
	}

	_, err := r.db.ExecContext(ctx, insertNotificationSQL,
		n.ID,
		n.MachineID,
		n.PlantID,
		n.Parameter,
		n.Threshold,
		n.Timestamp.UTC().UnixNano(),
		n.Severity,
		n.Status,
	)
	if err != nil {
		return fmt.Errorf("insert notification %s: %w", n.ID, err)
	}
	return nil
}

// List returns alerts matching the filter, ordered by time ascending.
func (r *NotificationSQLite) List(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	var (
		conds []string
		args  []any
	)

	if !f.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.From.UTC().UnixNano())
	}
	if !f.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.To.UTC().UnixNano())
	}
	if s := strings.TrimSpace(strings.ToLower(f.Severity)); s != "" {
		conds = append(conds, "severity = ?")
		args = append(args, s)
	}
	if s := strings.TrimSpace(strings.ToLower(f.Status)); s != "" {
		conds = append(conds, "status = ?")
		args = append(args, s)
	}
	if f.PlantID != 0 {
		conds = append(conds, "plant_id = ?")
		args = append(args, f.PlantID)
	}
	if f.MachineID != 0 {
		conds = append(conds, "machine_id = ?")
		args = append(args, f.MachineID)
	}

	q := `SELECT id, machine_id, plant_id, parameter, threshold, timestamp, severity, status FROM notifications`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY timestamp ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0, 64)
	for rows.Next() {
		var n models.Notification
		var nanos int64
		if err := rows.Scan(&n.ID, &n.MachineID, &n.PlantID, &n.Parameter, &n.Threshold, &nanos, &n.Severity, &n.Status); err != nil {
			return nil, err
		}
		n.Timestamp = time.Unix(0, nanos).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountInRange counts alerts for a machine with start < timestamp <= end.
func (r *NotificationSQLite) CountInRange(ctx context.Context, key models.MachineKey, start, end time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countNotificationsSQL,
		key.PlantID, key.MachineID, start.UTC().UnixNano(), end.UTC().UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notifications %v: %w", key, err)
	}
	return n, nil
}

// Resolve flips an alert to resolved.
func (r *NotificationSQLite) Resolve(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, resolveNotificationSQL, models.NotificationResolved, id)
	if err != nil {
		return fmt.Errorf("resolve notification %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve notification %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %s not found", id)
	}
	return nil
}
