package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pocketmoney/internal/infrastructure/postgres/listener"
	"pocketmoney/internal/interfaces/scheduler"
	"pocketmoney/internal/shared/config"
	"pocketmoney/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Server.MetricsPort,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Printf("Error shutting down telemetry: %v", err)
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var bg Background

	// Initial sync for newly linked banks
	if cfg.Listener.Enabled {
		bg.Listener = listener.NewConnectionListener(cfg.Database.ConnectionString(), deps.SyncService)
		bg.Listener.Start(context.Background())
	} else {
		log.Println("Connection listener is disabled")
	}

	// Initialize scheduler (if enabled)
	if cfg.Scheduler.Enabled {
		log.Println("Initializing scheduler...")
		sched, err := scheduler.NewScheduler(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			WorkerCount:   cfg.Scheduler.WorkerCount,
			JobDelay:      cfg.Scheduler.JobDelay,
			JobTimeout:    cfg.Sync.RequestTimeout,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.SyncJobProvider(deps.SyncService),
		})
		if err != nil {
			if bg.Listener != nil {
				bg.Listener.Stop()
			}
			return err
		}
		sched.Start()
		bg.Scheduler = sched

		// kill -USR1 forces a sync-all run outside the schedule
		trigger := make(chan os.Signal, 1)
		signal.Notify(trigger, syscall.SIGUSR1)
		defer signal.Stop(trigger)
		go sched.TriggerOn(trigger)
		log.Printf("Scheduler started with times: %v, next run at %s",
			cfg.Scheduler.ScheduleTimes, sched.NextRun(time.Now()).Format(time.RFC3339))
	} else {
		log.Println("Scheduler is disabled")
	}

	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg))

	<-ctx.Done()
	stop()

	GracefulShutdown(srv, redirectSrv, bg, shutdownTimeout)
	return nil
}
