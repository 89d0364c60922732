package models

import "time"

// Watermark records the timestamp up to which a machine's raw stream has
// been durably processed. One row per (plant, machine); advances
// monotonically.
type Watermark struct {
	MachineID     int       `json:"machine_id"`
	PlantID       int       `json:"plant_id"`
	LastProcessed time.Time `json:"last_processed_timestamp"`
}
