package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"plant_monitor/internal/config"
	"plant_monitor/internal/hub"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/metrics"
	"plant_monitor/internal/models"
	"plant_monitor/internal/repository"
	"plant_monitor/internal/tsdb"

	"github.com/google/uuid"
)

type paramKey struct {
	models.MachineKey
	Param string
}

// DebounceStore remembers each machine's last observed status and each
// parameter's last observed value so the notifier alerts on edges, not
// on every cycle a condition persists.
type DebounceStore struct {
	mu       sync.Mutex
	statuses map[models.MachineKey]string
	values   map[paramKey]float64
}

func NewDebounceStore() *DebounceStore {
	return &DebounceStore{
		statuses: make(map[models.MachineKey]string),
		values:   make(map[paramKey]float64),
	}
}

// SwapStatus stores the new status and returns the previous one.
func (d *DebounceStore) SwapStatus(key models.MachineKey, status string) (prev string, seen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, seen = d.statuses[key]
	d.statuses[key] = status
	return prev, seen
}

// SwapValue stores the new value and returns the previous one.
func (d *DebounceStore) SwapValue(key models.MachineKey, param string, v float64) (prev float64, seen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := paramKey{MachineKey: key, Param: param}
	prev, seen = d.values[k]
	d.values[k] = v
	return prev, seen
}

// NotifierService polls recent machine snapshots, raises debounced
// alerts for offline transitions and threshold breaches, and fans the
// resulting notifications out to the relational store, websocket
// subscribers and email recipients.
type NotifierService struct {
	cfg      config.Notifier
	store    tsdb.Store
	notes    repository.Notifications
	hub      *hub.Hub
	mailer   Mailer
	metrics  *metrics.Metrics
	log      *logger.Logger
	debounce *DebounceStore
	byEmail  map[string]struct{}
}

func NewNotifierService(cfg config.Notifier, store tsdb.Store, notes repository.Notifications, h *hub.Hub, mailer Mailer, m *metrics.Metrics, log *logger.Logger) *NotifierService {
	byEmail := make(map[string]struct{}, len(cfg.NotifySeverities))
	for _, sev := range cfg.NotifySeverities {
		byEmail[sev] = struct{}{}
	}
	return &NotifierService{
		cfg:      cfg,
		store:    store,
		notes:    notes,
		hub:      h,
		mailer:   mailer,
		metrics:  m,
		log:      log,
		debounce: NewDebounceStore(),
		byEmail:  byEmail,
	}
}

func (s *NotifierService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.cycle(ctx, now.UTC())
		}
	}
}

func (s *NotifierService) cycle(ctx context.Context, now time.Time) {
	readings, err := s.store.LatestPerMachine(ctx, now.Add(-s.cfg.Recency))
	if err != nil {
		s.log.Errorw("notifier_latest_failed", "err", err)
		return
	}
	for _, r := range readings {
		s.evaluate(ctx, r)
	}
}

// evaluate raises at most one status alert plus one alert per breached
// parameter for a single snapshot. Threshold checks run only while the
// machine is online; a stale in-bounds baseline never suppresses the
// next breach because the stored value is overwritten on every cycle.
func (s *NotifierService) evaluate(ctx context.Context, r models.Reading) {
	key := r.Key()

	prevStatus, seenStatus := s.debounce.SwapStatus(key, r.MachineStatus)
	if !r.Online() {
		if !seenStatus || prevStatus != models.StatusOffline {
			s.dispatch(ctx, models.Notification{
				MachineID: r.MachineID,
				PlantID:   r.PlantID,
				Parameter: models.StatusParameter,
				Threshold: models.StatusThreshold,
				Timestamp: r.Timestamp,
				Severity:  models.SeverityError,
			})
		}
		return
	}
	if seenStatus && prevStatus == models.StatusOffline {
		s.dispatch(ctx, models.Notification{
			MachineID: r.MachineID,
			PlantID:   r.PlantID,
			Parameter: models.StatusParameter,
			Threshold: models.StatusThreshold,
			Timestamp: r.Timestamp,
			Severity:  models.SeverityInfo,
		})
	}

	for _, param := range models.Parameters {
		bounds, ok := s.cfg.Thresholds[param]
		if !ok {
			continue
		}
		v := r.Value(param)
		prev, seen := s.debounce.SwapValue(key, param, v)
		if bounds.Contains(v) {
			continue
		}
		if seen && !bounds.Contains(prev) {
			continue
		}
		s.dispatch(ctx, models.Notification{
			MachineID: r.MachineID,
			PlantID:   r.PlantID,
			Parameter: param,
			Threshold: v,
			Timestamp: r.Timestamp,
			Severity:  models.SeverityWarning,
		})
	}
}

func (s *NotifierService) dispatch(ctx context.Context, n models.Notification) {
	n.ID = uuid.NewString()
	n.Status = models.NotificationUnresolved

	if err := s.notes.Append(ctx, n); err != nil {
		s.log.Errorw("notification_append_failed", "plant_id", n.PlantID, "machine_id", n.MachineID, "err", err)
	}
	s.metrics.AlertsEmitted.WithLabelValues(n.Severity).Inc()
	s.hub.BroadcastNotification(n)

	if _, ok := s.byEmail[n.Severity]; !ok {
		return
	}
	subject := fmt.Sprintf("[%s] plant %d machine %d: %s", n.Severity, n.PlantID, n.MachineID, n.Parameter)
	body := fmt.Sprintf("Machine %d in plant %d raised a %s alert on %q (value %.2f) at %s.",
		n.MachineID, n.PlantID, n.Severity, n.Parameter, n.Threshold, n.Timestamp.Format(time.RFC3339))
	if err := s.mailer.Send(s.cfg.Email.Recipients, subject, body); err != nil {
		s.metrics.EmailFailures.Inc()
		s.log.Errorw("notification_email_failed", "plant_id", n.PlantID, "machine_id", n.MachineID, "err", err)
	}
}
