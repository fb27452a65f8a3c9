// Package main - точка входа для фонового процесса (Worker) Study Group Finder.
//
// Worker держит в памяти каталоги групп и отвечает за периодические задачи:
// - Плановая проверка групп с низким рейтингом (maintenance sweep)
// - Начальная запись студентов из файла GROUPING_ENROLLMENT_FILE
// - Публикация снимков каталогов в Redis
// - Журнал событий в PostgreSQL
// - Метрики Prometheus
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alem-hub/study-group-finder/config"
	"github.com/alem-hub/study-group-finder/internal/app"
	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/registry"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/messaging"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/metrics"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/scheduler/jobs"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Study Group Finder Worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"directories", len(cfg.Grouping.Directories),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	eventBus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      cfg.Events.Async,
		WorkerPoolSize: cfg.Events.Workers,
		Logger:         log,
		EnableMetrics:  true,
	})
	defer func() {
		log.Info("closing event bus...", "stats", eventBus.Metrics().Snapshot())
		_ = eventBus.Close()
	}()

	var sinks []jobs.SweepSink

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЖУРНАЛ СОБЫТИЙ В POSTGRESQL (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.Enabled {
		log.Info("connecting to database...")
		dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, app.PoolOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(dbConn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date", "applied", applied)
		}

		eventLog := postgres.NewEventLog(dbConn, log)
		if err := eventBus.SubscribeAll(eventLog.Handler()); err != nil {
			return fmt.Errorf("failed to subscribe event log: %w", err)
		}
		sinks = append(sinks, eventLog)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. СНИМКИ КАТАЛОГОВ В REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var rosterView *redis.RosterView

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err := redis.NewCache(app.RedisConfig(cfg.Redis))
		if err != nil {
			// Без Redis движок работает, просто нет внешнего снимка
			log.Warn("failed to connect to Redis, roster view disabled", "error", err)
		} else {
			defer redisCache.Close()

			// При недоступном Redis запись отклоняется сразу, без ретраев
			breaker := app.RedisBreaker(cfg.Redis, log)
			store := redis.NewGuardedStore(redisCache, breaker)
			rosterView = redis.NewRosterView(store, cfg.Grouping.SnapshotTTL, log)
			if err := eventBus.SubscribeAll(rosterView.Handler()); err != nil {
				return fmt.Errorf("failed to subscribe roster view: %w", err)
			}
			sinks = append(sinks, rosterView)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	var collector *metrics.PrometheusCollector
	var recorder grouping.Recorder = grouping.NopRecorder()

	if cfg.Observability.MetricsEnabled {
		collector = metrics.NewPrometheus(nil, "")
		recorder = collector

		server := metrics.NewServer(fmt.Sprintf(":%d", cfg.Observability.MetricsPort), nil, log)
		go func() {
			if err := server.Run(ctx); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. КАТАЛОГИ ГРУПП
	// ─────────────────────────────────────────────────────────────────────────
	reg := app.NewRegistry(app.EngineOptions{
		Publisher:          eventBus,
		Metrics:            recorder,
		Logger:             log,
		LowRatingThreshold: cfg.Grouping.LowRatingThreshold,
		Seed:               cfg.Grouping.ShuffleSeed,
	})
	if err := app.SeedDirectories(reg, cfg.Grouping.Directories); err != nil {
		return fmt.Errorf("failed to register directories: %w", err)
	}

	// Без файла каталоги стартуют пустыми
	if cfg.Grouping.EnrollmentFile != "" {
		if err := enroll(reg, cfg.Grouping.EnrollmentFile, log); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var flusher jobs.RosterFlusher
	if rosterView != nil {
		flusher = rosterView
	}

	var (
		sched *scheduler.Scheduler
		sweep *jobs.MaintenanceSweepJob
	)
	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(scheduler.SchedulerConfig{
			Logger:       log,
			TickInterval: time.Second,
			JobTimeout:   cfg.Scheduler.JobTimeout,
		})

		sweep = jobs.NewMaintenanceSweepJob(reg, flusher, log, sinks...)
		if err := sched.Register(sweep, scheduler.NewIntervalSchedule(cfg.Scheduler.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register %s: %w", sweep.Name(), err)
		}
		if flusher != nil {
			flush := jobs.NewRosterFlushJob(reg, flusher, log)
			if err := sched.Register(flush, scheduler.NewIntervalSchedule(cfg.Scheduler.RosterFlushInterval)); err != nil {
				return fmt.Errorf("failed to register %s: %w", flush.Name(), err)
			}
		}

		if collector != nil {
			sched.OnJobComplete(func(r scheduler.JobResult) {
				collector.JobCompleted(r.JobName, r.Duration, r.Success)
			})
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		for _, job := range sched.ListJobs() {
			log.Info("job scheduled", "job", job.Name, "schedule", job.Schedule, "next_run", job.NextRun)
		}

		// Первый снимок сразу, не дожидаясь интервала
		if flusher != nil {
			eventBus.Drain()
			if _, err := sched.RunNow(ctx, jobs.RosterFlushJobName); err != nil {
				log.Warn("initial roster flush failed", "error", err)
			}
		}
	}

	log.Info("Study Group Finder Worker is running", "directories", reg.Len())

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping...", "timeout", cfg.App.ShutdownTimeout.String())

	if sched != nil && sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			log.Warn("failed to stop scheduler", "error", err)
		}
	}
	if sweep != nil {
		if stats := sweep.LastStats(); stats != nil {
			log.Info("last maintenance sweep",
				"started_at", stats.StartedAt,
				"directories", stats.Directories,
				"removed_groups", stats.RemovedGroups,
				"reshuffled_pairs", stats.ReshuffledPairs,
				"merges", stats.Merges,
				"sink_errors", stats.SinkErrors,
			)
		}
	}

	// Дожидаемся обработчиков событий, затем пишем последний снимок
	eventBus.Drain()
	if rosterView != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if _, err := rosterView.Flush(shutdownCtx, reg, false); err != nil {
			log.Warn("final roster flush failed", "error", err)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// enroll загружает студентов из JSON-файла и формирует группы.
func enroll(reg *registry.Registry, path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open enrollment file: %w", err)
	}
	defer f.Close()

	if _, err := app.LoadEnrollment(reg, f, log); err != nil {
		return fmt.Errorf("failed to load enrollment: %w", err)
	}
	return nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	log := app.NewLogger(os.Stdout, cfg.Observability.LogLevel, cfg.Observability.LogFormat, cfg.App.Debug)
	slog.SetDefault(log)
	return log
}
