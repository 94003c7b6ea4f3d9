// Package main is the entry point for the gym ledger bot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gym-ledger-bot/internal/backup"
	"gym-ledger-bot/internal/bot"
	"gym-ledger-bot/internal/config"
	"gym-ledger-bot/internal/form"
	"gym-ledger-bot/internal/metrics"
	"gym-ledger-bot/internal/pkg/db"
	"gym-ledger-bot/internal/pkg/lock"
	"gym-ledger-bot/internal/repository"
	"gym-ledger-bot/internal/service"
	"gym-ledger-bot/internal/sheet"
	"gym-ledger-bot/internal/sheet/pgsheet"
	"gym-ledger-bot/internal/sheet/xlsx"
)

const jobTimeout = 10 * time.Minute

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid time zone")
	}

	log.Info().Str("driver", cfg.Store.Driver).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open workbook")
	}
	defer be.close()
	store := be.store

	sheets := repository.Names{
		Events:  cfg.Store.Sheets.Events,
		Members: cfg.Store.Sheets.Members,
		Coaches: cfg.Store.Sheets.Coaches,
		Menu:    cfg.Store.Sheets.Menu,
		Main:    cfg.Store.Sheets.Main,
	}
	if err := repository.EnsureSheets(ctx, store, sheets); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare workbook sheets")
	}

	// Coach and menu sheets are edited by hand and change rarely.
	directory := cache.New(cfg.Cache.DirectoryTTL, 2*cfg.Cache.DirectoryTTL)

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	ledgerService := service.NewLedgerService(service.Options{
		Store:               store,
		Sheets:              sheets,
		Coaches:             repository.NewCoachRepository(store, sheets.Coaches, directory),
		Menu:                repository.NewMenuRepository(store, sheets.Menu, directory),
		Backups:             backup.NewManager(cfg.Backup.Dir, cfg.Backup.MaxFiles),
		BackupPrefix:        cfg.Backup.Prefix,
		Lock:                lock.New(),
		LockKey:             be.lockKey,
		Metrics:             ledgerMetrics,
		SummaryPasswordHash: cfg.Summary.PasswordHash,
		Location:            loc,
	})

	// Bring the main table in line with the events before taking commands.
	if _, err := ledgerService.Recompute(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial main table recompute failed")
	}

	metricsServer := startMetricsServer(cfg.Metrics.Addr, be.health)

	scheduler, err := startJobs(cfg, ledgerService, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule jobs")
	}

	deps := &bot.Dependencies{
		Config:        cfg,
		LedgerService: ledgerService,
		Sessions:      form.NewSessions(cfg.Cache.FormTTL),
	}

	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()

	jobsDone := scheduler.Stop()
	select {
	case <-jobsDone.Done():
		log.Info().Msg("Scheduled jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Scheduled jobs forced to stop after timeout")
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	log.Info().Msg("Bot stopped gracefully")
}

// backend is an opened workbook store.
type backend struct {
	store sheet.Store
	// lockKey names the workbook for the process-local write lock.
	lockKey string
	health  func(ctx context.Context) error
	close   func()
}

// openBackend opens the configured workbook backend.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := pgsheet.Migrate(ctx, pool.Pool); err != nil {
			pool.Close()
			return nil, err
		}
		store := pgsheet.New(pool.Pool)
		return &backend{
			store:   store,
			lockKey: "postgres:" + cfg.Database.Name,
			health:  pool.HealthCheck,
			close: func() {
				_ = store.Close()
				pool.Close()
			},
		}, nil

	default:
		store, err := xlsx.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Store.Path).Msg("Using local workbook")
		return &backend{
			store:   store,
			lockKey: cfg.Store.Path,
			health: func(ctx context.Context) error {
				_, err := store.ReadSheet(ctx, cfg.Store.Sheets.Main)
				return err
			},
			close: func() { _ = store.Close() },
		}, nil
	}
}

// startJobs schedules the nightly main-table refresh and backup. An
// empty schedule disables its job.
func startJobs(cfg *config.Config, svc *service.LedgerService, loc *time.Location) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithLocation(loc))

	if spec := cfg.Schedule.Refresh; spec != "" {
		_, err := scheduler.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, err := svc.Recompute(ctx); err != nil {
				log.Error().Err(err).Msg("[CRON] Main table refresh failed")
			}
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("schedule", spec).Msg("Main table refresh scheduled")
	}

	if spec := cfg.Schedule.Backup; spec != "" {
		_, err := scheduler.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			res, err := svc.Backup(ctx)
			if err != nil {
				log.Error().Err(err).Msg("[CRON] Backup failed")
				return
			}
			log.Info().Str("backup", res.String()).Msg("[CRON] Backup completed")
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("schedule", spec).Msg("Backup scheduled")
	}

	scheduler.Start()
	return scheduler, nil
}

// startMetricsServer serves /metrics and /healthz when addr is set.
func startMetricsServer(addr string, health func(ctx context.Context) error) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
