package models

import "time"

// KPIRecord accumulates per-machine operational KPIs over the machine's
// lifetime. Values are added to, never replaced.
type KPIRecord struct {
	PlantID            int       `json:"plant_id"`
	MachineID          int       `json:"machine_id"`
	UptimeMinutes      float64   `json:"uptime"`
	DowntimeMinutes    float64   `json:"downtime"`
	NumAlertsTriggered int       `json:"num_alerts_triggered"`
	FailureRate        float64   `json:"failure_rate"` // alerts / (uptime+downtime)
	LastProcessed      time.Time `json:"last_processed_timestamp"`
}

// KPIIncrement is the contribution of one aggregation cycle for one
// machine, also handed to the audit sink.
type KPIIncrement struct {
	PlantID            int       `json:"plant_id"`
	MachineID          int       `json:"machine_id"`
	UptimeMinutes      float64   `json:"uptime"`
	DowntimeMinutes    float64   `json:"downtime"`
	NumAlertsTriggered int       `json:"num_alerts_triggered"`
	Timestamp          time.Time `json:"timestamp"`
}

// Key returns the (plant, machine) pair the increment belongs to.
func (i KPIIncrement) Key() MachineKey {
	return MachineKey{PlantID: i.PlantID, MachineID: i.MachineID}
}
