package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"

	"logiflow/internal/api"
	"logiflow/internal/config"
	"logiflow/internal/events"
	"logiflow/internal/metrics"
	"logiflow/internal/notify"
	"logiflow/internal/osrm"
	"logiflow/internal/planner"
	"logiflow/internal/schedule"
	"logiflow/internal/solver"
	"logiflow/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	metrics.RegisterDefault()

	loc, err := time.LoadLocation(cfg.PlanningTimezone)
	if err != nil {
		log.Error("bad timezone", "tz", cfg.PlanningTimezone, "err", err)
		os.Exit(1)
	}

	// Store: Postgres when configured, in-memory otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connect failed", "err", err)
			os.Exit(1)
		}
		if cfg.DBMigrate {
			if err := pg.MigrateDir("db/migrations"); err != nil {
				log.Error("migrations failed", "err", err)
				os.Exit(1)
			}
		}
		st = pg
	} else {
		log.Warn("DATABASE_URL unset, using in-memory store")
		st = store.NewMemory()
	}
	defer st.Close()

	// Redis backs the matrix cache, the event broker and the job queue.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("bad REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	var matrices osrm.MatrixProvider = osrm.NewClient(cfg.OSRMBaseURL, cfg.OSRMTimeout)
	if rdb != nil {
		matrices = osrm.NewCache(matrices, rdb, cfg.MatrixCacheTTL)
	}

	opt := planner.NewOptimizer(matrices, solver.New(), log)
	tuning, err := config.LoadTuning(cfg.SolverConfigPath)
	if err != nil {
		log.Error("solver tuning load failed", "path", cfg.SolverConfigPath, "err", err)
		os.Exit(1)
	}
	opt.MaxRouteDur = tuning.MaxRouteDuration
	opt.SolveBudget = tuning.SolveBudget

	var broker events.EventBroker = events.NewBroker()
	if rdb != nil {
		broker = events.NewRedisBroker(rdb)
	}

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, log)

	dp := schedule.NewDailyPlanner(st, opt, mailer, broker, log, loc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runner api.PlanRunner
	if cfg.SchedulerEnabled && cfg.RedisURL != "" {
		ropt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			log.Error("bad REDIS_URL for queue", "err", err)
			os.Exit(1)
		}
		copt, ok := ropt.(asynq.RedisClientOpt)
		if !ok {
			log.Error("unsupported redis connection type for queue")
			os.Exit(1)
		}
		worker, err := schedule.NewWorker(copt, dp, log)
		if err != nil {
			log.Error("worker init failed", "err", err)
			os.Exit(1)
		}
		runner = worker
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("worker stopped", "err", err)
			}
		}()
	} else if cfg.SchedulerEnabled {
		log.Warn("REDIS_URL unset, nightly planning only available via POST /v1/planning/run")
	}

	srv := api.NewServer(st, opt, broker, runner, dp, log, loc)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", cfg.HTTPAddr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
