package service

import (
	"context"
	"time"

	"plant_monitor/internal/audit"
	"plant_monitor/internal/config"
	"plant_monitor/internal/hub"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/metrics"
	"plant_monitor/internal/models"
	"plant_monitor/internal/repository"
	"plant_monitor/internal/tsdb"
)

// Simulator drives the synthetic telemetry fleet. Stop via context
// cancellation in main() for graceful shutdown.
type Simulator interface {
	Run(ctx context.Context)
}

// Ingestor subscribes to the broker and persists raw points.
type Ingestor interface {
	Run(ctx context.Context) error
}

// ChangeFilter downsamples raw points to change events on a schedule.
type ChangeFilter interface {
	Run(ctx context.Context)
}

// KPIAggregator accumulates uptime/downtime/alert KPIs on a schedule.
type KPIAggregator interface {
	Run(ctx context.Context)
}

// Notifier evaluates alert rules over the live stream.
type Notifier interface {
	Run(ctx context.Context)
}

// Monitoring exposes read-only pipeline state to the HTTP layer.
type Monitoring interface {
	Machines(ctx context.Context) ([]models.MachineKey, error)
	LatestStatuses(ctx context.Context) ([]models.Reading, error)
	KPIs(ctx context.Context) ([]models.KPIRecord, error)
	Notifications(ctx context.Context, f repository.NotificationFilter) ([]models.Notification, error)
	ResolveNotification(ctx context.Context, id string) error
	HistoricalData(ctx context.Context, key models.MachineKey, start, end time.Time) ([]models.Reading, error)
	FilteredData(ctx context.Context, key models.MachineKey, param string, start, end time.Time) ([]tsdb.FilteredPoint, error)
}

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Service aggregates all sub-services.
type Service struct {
	Simulator
	Ingestor
	ChangeFilter
	KPIAggregator
	Notifier
	Monitoring
	Authorization
}

// Deps carries the external collaborators the services are wired to.
type Deps struct {
	Repos   *repository.Repository
	TSDB    tsdb.Store
	Pub     Publisher
	Sub     Subscriber
	Hub     *hub.Hub
	Audit   audit.Sink
	Mailer  Mailer
	Metrics *metrics.Metrics
	Cfg     config.Config
	Log     *logger.Logger
}

// Publisher mirrors broker.Publisher to keep the service layer off the
// transport package.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber mirrors broker.Subscriber.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, h func(topic string, payload []byte)) error
}

// NewService wires the repository/store layers into concrete services.
func NewService(d Deps) *Service {
	return &Service{
		Simulator:     NewSimulatorService(d.Cfg.Simulator, d.Pub, d.Metrics, d.Log),
		Ingestor:      NewIngestService(d.Cfg.Ingest, d.Sub, d.TSDB, d.Metrics, d.Log),
		ChangeFilter:  NewFilterService(d.Cfg.Filter, d.TSDB, d.Repos.Watermarks, d.Metrics, d.Log),
		KPIAggregator: NewKPIService(d.Cfg.KPI, d.TSDB, d.Repos.KPIs, d.Repos.Notifications, d.Audit, d.Log),
		Notifier:      NewNotifierService(d.Cfg.Notifier, d.TSDB, d.Repos.Notifications, d.Hub, d.Mailer, d.Metrics, d.Log),
		Monitoring:    NewMonitoringService(d.Cfg.Notifier.Recency, d.TSDB, d.Repos.KPIs, d.Repos.Notifications),
		Authorization: NewAuthService(d.Repos.Auth, d.Cfg.Auth),
	}
}
