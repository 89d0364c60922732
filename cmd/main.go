package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "plant_monitor/docs"
	"plant_monitor/internal/audit"
	"plant_monitor/internal/broker"
	"plant_monitor/internal/config"
	"plant_monitor/internal/handlers"
	"plant_monitor/internal/hub"
	"plant_monitor/internal/logger"
	"plant_monitor/internal/metrics"
	"plant_monitor/internal/repository"
	"plant_monitor/internal/server"
	"plant_monitor/internal/service"
	"plant_monitor/internal/tsdb"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load config.yml layered over defaults
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(cfg.LogLevel)

	// open relational store
	db, err := repository.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// open time-series store
	store, err := tsdb.Open(cfg.DB.TimeseriesPath)
	if err != nil {
		log.Fatalw("failed to init timeseries store", "err", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Errorw("failed to close timeseries store", "err", cerr)
		}
	}()

	// audit trail for KPI increments
	sink, err := audit.NewLogSink(cfg.DB.AuditPath)
	if err != nil {
		log.Fatalw("failed to open audit log", "err", err)
	}
	defer sink.Close()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// optionally host the broker in-process
	if cfg.Broker.Embedded {
		mqttServer, err := broker.StartEmbedded(cfg.Broker.Addr(), log)
		if err != nil {
			log.Fatalw("failed to start embedded broker", "err", err)
		}
		defer func() { _ = mqttServer.Close() }()
	}

	client, err := broker.Connect(ctx, cfg.Broker, log)
	if err != nil {
		log.Fatalw("failed to connect to broker", "err", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		_ = client.Close(closeCtx)
	}()

	// wire dependencies
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	stream := hub.New(log)
	repos := repository.NewRepository(db)

	services := service.NewService(service.Deps{
		Repos:   repos,
		TSDB:    store,
		Pub:     client,
		Sub:     subscriberAdapter{client},
		Hub:     stream,
		Audit:   sink,
		Mailer:  service.NewMailer(cfg.Notifier.Email),
		Metrics: m,
		Cfg:     cfg,
		Log:     log,
	})
	apiHandler := handlers.NewHandler(services, stream, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)

	// start the pipeline stages
	go func() {
		if err := services.Ingestor.Run(ctx); err != nil {
			log.Fatalw("ingest failed", "err", err)
		}
	}()
	if cfg.Simulator.Enabled {
		go services.Simulator.Run(ctx)
	}
	go services.ChangeFilter.Run(ctx)
	go services.KPIAggregator.Run(ctx)
	go services.Notifier.Run(ctx)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, stream, log)
}

// subscriberAdapter bridges the broker client to the service layer's
// subscriber contract.
type subscriberAdapter struct {
	client *broker.Client
}

func (s subscriberAdapter) Subscribe(ctx context.Context, filter string, h func(topic string, payload []byte)) error {
	return s.client.Subscribe(ctx, filter, func(msg broker.Message) {
		h(msg.Topic, msg.Payload)
	})
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, stream *hub.Hub, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	stream.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
