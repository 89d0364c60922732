package models

import "time"

// Notification severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notification lifecycle states.
const (
	NotificationUnresolved = "unresolved"
	NotificationResolved   = "resolved"
)

// StatusParameter is the synthetic parameter name used for
// online/offline transition alerts.
const StatusParameter = "status"

// StatusThreshold marks alerts that carry no numeric offending value.
const StatusThreshold = -1

// Notification is one detected transition event, append-only.
type Notification struct {
	ID        string    `json:"id"`
	MachineID int       `json:"machine_id"`
	PlantID   int       `json:"plant_id"`
	Parameter string    `json:"parameter"`
	Threshold float64   `json:"threshold"` // offending value; -1 for status alerts
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"` // info | warning | error
	Status    string    `json:"status"`   // unresolved | resolved
}
