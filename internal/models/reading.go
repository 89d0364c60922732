package models

import "time"

// Machine status values as they appear on the wire.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Tracked sensor parameters.
const (
	ParamTemperature = "temperature"
	ParamHumidity    = "humidity"
	ParamPowerSupply = "power_supply"
	ParamVibration   = "vibration"
)

// Parameters is the canonical iteration order over tracked parameters.
var Parameters = []string{ParamTemperature, ParamHumidity, ParamPowerSupply, ParamVibration}

// MachineKey identifies one machine within a plant.
type MachineKey struct {
	PlantID   int `json:"plant_id"`
	MachineID int `json:"machine_id"`
}

// Reading is a single telemetry sample for one machine.
type Reading struct {
	Timestamp     time.Time `json:"timestamp"`
	PlantID       int       `json:"plant_id"`
	MachineID     int       `json:"machine_id"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	PowerSupply   float64   `json:"power_supply"`
	Vibration     float64   `json:"vibration"`
	MachineStatus string    `json:"machine_status"` // online | offline
}

// Key returns the (plant, machine) pair the reading belongs to.
func (r Reading) Key() MachineKey {
	return MachineKey{PlantID: r.PlantID, MachineID: r.MachineID}
}

// Online reports whether the machine was reachable when sampled.
func (r Reading) Online() bool { return r.MachineStatus != StatusOffline }

// Value returns the reading's value for a tracked parameter name.
// Unknown names return 0; callers iterate over Parameters.
func (r Reading) Value(param string) float64 {
	switch param {
	case ParamTemperature:
		return r.Temperature
	case ParamHumidity:
		return r.Humidity
	case ParamPowerSupply:
		return r.PowerSupply
	case ParamVibration:
		return r.Vibration
	}
	return 0
}

// SetValue assigns a tracked parameter by name.
func (r *Reading) SetValue(param string, v float64) {
	switch param {
	case ParamTemperature:
		r.Temperature = v
	case ParamHumidity:
		r.Humidity = v
	case ParamPowerSupply:
		r.PowerSupply = v
	case ParamVibration:
		r.Vibration = v
	}
}
