package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/timelog/internal/api"
	"example.com/timelog/internal/auth"
	"example.com/timelog/internal/config"
	"example.com/timelog/internal/domain"
	"example.com/timelog/internal/live"
	"example.com/timelog/internal/notify"
	persistence "example.com/timelog/internal/persistence/postgres"
	httptransport "example.com/timelog/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	logger := log.New(os.Stderr, "[notifier] ", log.LstdFlags)

	hub := live.NewHub(repo, logger,
		live.WithLocation(cfg.Location()),
		live.WithStartOfWeek(cfg.WeekStart()),
		live.WithTickInterval(cfg.Live.TickInterval),
		live.WithHeartbeatTimeout(cfg.Live.HeartbeatTimeout),
	)
	hub.Start(ctx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.ConsumerGroup,
		Topic:           cfg.Kafka.SignalTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	processor := notify.NewProcessor(reader, hub, notify.WithLogger(logger))

	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		logger.Printf("signal consumer started (topic=%s, group=%s)", cfg.Kafka.SignalTopic, cfg.Kafka.ConsumerGroup)
		if err := processor.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("signal consumer stopped with error: %v", err)
		}
	}()

	// The notifier serves the live view endpoint off the hub it feeds, plus
	// the regular read endpoints for convenience.
	service := domain.NewService(repo)
	handler := api.NewHandler(service,
		api.WithHub(hub),
		api.WithDefaults(cfg.Location(), cfg.WeekStart()),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTP.NotifierAddress,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, authMiddleware.Wrap(mux))

	go func() {
		logger.Printf("timelog notifier listening on %s", cfg.HTTP.NotifierAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("notifier shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}

	<-processorDone
	if !hub.WaitTimeout(5 * time.Second) {
		logger.Println("coordinators did not drain in time")
	}
}
