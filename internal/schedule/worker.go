package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Worker wraps the asynq server, its cron scheduler and the nightly job.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	client    *asynq.Client
	planner   *DailyPlanner
	log       *slog.Logger
}

// NewWorker wires the daily planning cron at 21:00 local time. Enqueues are
// unique within the misfire grace window, so a catch-up enqueue and the
// scheduler firing together still produce at most one run.
func NewWorker(redisOpts asynq.RedisClientOpt, dp *DailyPlanner, log *slog.Logger) (*Worker, error) {
	if log == nil {
		log = slog.Default()
	}
	srv := asynq.NewServer(redisOpts, asynq.Config{
		// planning runs are heavyweight; one at a time
		Concurrency: 1,
		Queues:      map[string]int{QueuePlanning: 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDailyPlanning, func(ctx context.Context, t *asynq.Task) error {
		var payload DailyPlanningPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		day := dp.PlanningDay(time.Now())
		if payload.Day != "" {
			parsed, err := time.ParseInLocation("2006-01-02", payload.Day, dp.Loc)
			if err != nil {
				return asynq.SkipRetry
			}
			day = parsed
		}
		return dp.Run(ctx, day)
	})

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Location: dp.Loc})
	task, err := NewDailyPlanningTask("")
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register("0 21 * * *", task,
		asynq.Queue(QueuePlanning),
		asynq.Unique(MisfireGrace),
		asynq.MaxRetry(0),
	); err != nil {
		return nil, err
	}

	return &Worker{
		server:    srv,
		mux:       mux,
		scheduler: scheduler,
		client:    asynq.NewClient(redisOpts),
		planner:   dp,
		log:       log,
	}, nil
}

// EnqueueNow submits an immediate planning run, deduplicated against any run
// already queued within the grace window.
func (w *Worker) EnqueueNow(ctx context.Context, day string) error {
	task, err := NewDailyPlanningTask(day)
	if err != nil {
		return err
	}
	_, err = w.client.EnqueueContext(ctx, task,
		asynq.Queue(QueuePlanning),
		asynq.Unique(MisfireGrace),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		w.log.Info("planning run already queued")
		return nil
	}
	return err
}

// Run processes jobs until ctx is cancelled. If the process comes up within
// the grace window after a missed 21:00 trigger, tonight's run is enqueued
// immediately.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.scheduler.Start(); err != nil {
		return err
	}

	now := time.Now().In(w.planner.Loc)
	if now.Hour() == PlanHour {
		if err := w.EnqueueNow(ctx, ""); err != nil {
			w.log.Warn("catch-up enqueue failed", "err", err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.server.Run(w.mux) }()
	select {
	case <-ctx.Done():
		w.scheduler.Shutdown()
		w.server.Shutdown()
		w.client.Close()
		return ctx.Err()
	case err := <-errCh:
		w.scheduler.Shutdown()
		w.client.Close()
		return err
	}
}
