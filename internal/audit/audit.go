// Package audit receives structured KPI increments for external audit
// trails. The reference deployment shipped these to a document store;
// here they land in an append-only JSON log.
package audit

import (
	"context"
	"fmt"

	"plant_monitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink accepts one structured record per aggregation cycle per machine.
type Sink interface {
	RecordKPI(ctx context.Context, inc models.KPIIncrement) error
}

// LogSink writes JSON lines to a file via a dedicated zap core.
type LogSink struct {
	log *zap.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink opens (or creates) the audit log file.
func NewLogSink(path string) (*LogSink, error) {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	ws, _, err := zap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log at %q: %w", path, err)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), ws, zapcore.InfoLevel)
	return &LogSink{log: zap.New(core)}, nil
}

// RecordKPI appends one increment entry.
func (s *LogSink) RecordKPI(_ context.Context, inc models.KPIIncrement) error {
	s.log.Info("kpi_increment",
		zap.String("entry_id", uuid.NewString()),
		zap.Int("plant_id", inc.PlantID),
		zap.Int("machine_id", inc.MachineID),
		zap.Float64("uptime", inc.UptimeMinutes),
		zap.Float64("downtime", inc.DowntimeMinutes),
		zap.Int("num_alerts_triggered", inc.NumAlertsTriggered),
		zap.Time("timestamp", inc.Timestamp),
	)
	return nil
}

// Close flushes buffered entries.
func (s *LogSink) Close() error { return s.log.Sync() }
