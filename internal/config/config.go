package config

import (
	"fmt"
	"time"

	"plant_monitor/internal/models"

	"github.com/spf13/viper"
)

// Range bounds a parameter from below and above.
type Range struct {
	Lower float64 `mapstructure:"lower"`
	Upper float64 `mapstructure:"upper"`
}

// Contains reports whether v lies inside the range (inclusive).
func (r Range) Contains(v float64) bool { return v >= r.Lower && v <= r.Upper }

// Broker holds MQTT connection settings. When Embedded is set an
// in-process broker is started on the same address.
type Broker struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Embedded bool   `mapstructure:"embedded"`
}

// Addr returns the host:port pair for listeners and clients.
func (b Broker) Addr() string { return fmt.Sprintf("%s:%d", b.Host, b.Port) }

// Simulator configures the telemetry generator fleet.
type Simulator struct {
	Enabled             bool                 `mapstructure:"enabled"`
	Plants              int                  `mapstructure:"plants"`
	MachinesPerPlant    int                  `mapstructure:"machines_per_plant"`
	Tick                time.Duration        `mapstructure:"tick"`
	MinDwell            time.Duration        `mapstructure:"min_dwell"`
	QueueSize           int                  `mapstructure:"queue_size"`
	FaultProbability    float64              `mapstructure:"fault_probability"`
	OfflineProbability  float64              `mapstructure:"offline_probability"`
	RecoveryFromFaulty  float64              `mapstructure:"recovery_from_faulty"`
	RecoveryFromOffline float64              `mapstructure:"recovery_from_offline"`
	NormalRange         map[string]Range     `mapstructure:"normal_range"`
	FaultyRange         map[string]Range     `mapstructure:"faulty_range"`
	NormalDrift         map[string]Range     `mapstructure:"normal_drift"`
	FaultyDrift         map[string]Range     `mapstructure:"faulty_drift"`
}

// Ingest configures the broker-to-store writer.
type Ingest struct {
	Workers int    `mapstructure:"workers"`
	Topic   string `mapstructure:"topic"`
}

// Filter configures the change-only downsampler.
type Filter struct {
	Interval  time.Duration `mapstructure:"interval"`
	FlushSize int           `mapstructure:"flush_size"`
	Lookback  time.Duration `mapstructure:"lookback"`
}

// KPI configures the aggregation schedule.
type KPI struct {
	Interval time.Duration `mapstructure:"interval"`
	Lookback time.Duration `mapstructure:"lookback"`
}

// Email holds outbound SMTP settings. An empty host disables dispatch.
type Email struct {
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	From       string   `mapstructure:"from"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	Recipients []string `mapstructure:"recipients"`
}

// Notifier configures rule evaluation and alert fan-out.
type Notifier struct {
	Interval         time.Duration    `mapstructure:"interval"`
	Recency          time.Duration    `mapstructure:"recency"`
	Thresholds       map[string]Range `mapstructure:"thresholds"`
	NotifySeverities []string         `mapstructure:"notify_severities"`
	Email            Email            `mapstructure:"email"`
}

// Auth holds token settings for the HTTP layer.
type Auth struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// DB holds sqlite file locations. The relational store and the
// time-series store live in separate files so the high-churn raw data
// can be rotated independently.
type DB struct {
	Path           string `mapstructure:"path"`
	TimeseriesPath string `mapstructure:"timeseries_path"`
	AuditPath      string `mapstructure:"audit_path"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel  string    `mapstructure:"log_level"`
	Port      string    `mapstructure:"port"`
	DB        DB        `mapstructure:"db"`
	Broker    Broker    `mapstructure:"broker"`
	Simulator Simulator `mapstructure:"simulator"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Filter    Filter    `mapstructure:"filter"`
	KPI       KPI       `mapstructure:"kpi"`
	Notifier  Notifier  `mapstructure:"notifier"`
	Auth      Auth      `mapstructure:"auth"`
}

// Default returns the reference configuration. Values unset in the
// config file keep these.
func Default() Config {
	return Config{
		LogLevel: "info",
		Port:     "8080",
		DB: DB{
			Path:           "app.db",
			TimeseriesPath: "timeseries.db",
			AuditPath:      "kpi_audit.log",
		},
		Broker: Broker{
			Host:     "localhost",
			Port:     1883,
			ClientID: "plant-monitor",
			Embedded: true,
		},
		Simulator: Simulator{
			Enabled:             true,
			Plants:              1,
			MachinesPerPlant:    5,
			Tick:                time.Second,
			MinDwell:            30 * time.Second,
			QueueSize:           256,
			FaultProbability:    0.01,
			OfflineProbability:  0.01,
			RecoveryFromFaulty:  0.02,
			RecoveryFromOffline: 0.05,
			NormalRange: map[string]Range{
				models.ParamTemperature: {Lower: 40, Upper: 60},
				models.ParamHumidity:    {Lower: 40, Upper: 50},
				models.ParamPowerSupply: {Lower: 230, Upper: 240},
				models.ParamVibration:   {Lower: 0.2, Upper: 0.4},
			},
			FaultyRange: map[string]Range{
				models.ParamTemperature: {Lower: 20, Upper: 100},
				models.ParamHumidity:    {Lower: 20, Upper: 80},
				models.ParamPowerSupply: {Lower: 180, Upper: 280},
				models.ParamVibration:   {Lower: 0.1, Upper: 2.0},
			},
			NormalDrift: map[string]Range{
				models.ParamTemperature: {Lower: -1, Upper: 1},
				models.ParamHumidity:    {Lower: -1, Upper: 1},
				models.ParamPowerSupply: {Lower: -1, Upper: 1},
				models.ParamVibration:   {Lower: -0.07, Upper: 0.07},
			},
			FaultyDrift: map[string]Range{
				models.ParamTemperature: {Lower: 1, Upper: 5},
				models.ParamHumidity:    {Lower: 1, Upper: 5},
				models.ParamPowerSupply: {Lower: 1, Upper: 5},
				models.ParamVibration:   {Lower: 0.07, Upper: 0.12},
			},
		},
		Ingest: Ingest{
			Workers: 10,
			Topic:   "iot/#",
		},
		Filter: Filter{
			Interval:  time.Minute,
			FlushSize: 10,
			Lookback:  365 * 24 * time.Hour,
		},
		KPI: KPI{
			Interval: 15 * time.Minute,
			Lookback: 24 * time.Hour,
		},
		Notifier: Notifier{
			Interval: 2 * time.Second,
			Recency:  30 * time.Second,
			Thresholds: map[string]Range{
				models.ParamTemperature: {Lower: 40, Upper: 60},
				models.ParamHumidity:    {Lower: 40, Upper: 50},
				models.ParamPowerSupply: {Lower: 230, Upper: 240},
				models.ParamVibration:   {Lower: 0.2, Upper: 0.4},
			},
			NotifySeverities: []string{models.SeverityError},
		},
		Auth: Auth{
			SigningKey: "change-me",
			TokenTTL:   time.Hour,
		},
	}
}

// Load reads configs/<name>.yml from dir, layered over Default.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Simulator.Plants < 1 || c.Simulator.MachinesPerPlant < 1 {
		return fmt.Errorf("simulator: plants and machines_per_plant must be >= 1")
	}
	if c.Simulator.Tick <= 0 {
		return fmt.Errorf("simulator: tick must be positive")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest: workers must be >= 1")
	}
	if c.Filter.FlushSize < 1 {
		return fmt.Errorf("filter: flush_size must be >= 1")
	}
	for _, p := range models.Parameters {
		nr, ok := c.Simulator.NormalRange[p]
		if !ok {
			return fmt.Errorf("simulator: missing normal_range for %s", p)
		}
		fr, ok := c.Simulator.FaultyRange[p]
		if !ok {
			return fmt.Errorf("simulator: missing faulty_range for %s", p)
		}
		if fr.Lower > nr.Lower || fr.Upper < nr.Upper {
			return fmt.Errorf("simulator: faulty_range for %s must contain normal_range", p)
		}
	}
	return nil
}
