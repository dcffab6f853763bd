package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/ops"
	"github.com/vantler/adcomply-backend/internal/jobs/runtime"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// Worker polls for runnable job runs and dispatches them to registered
// handlers. Claims use SKIP LOCKED so multiple workers never double-run a
// job.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     ops.JobRunRepo
	registry *runtime.Registry
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo ops.JobRunRepo, registry *runtime.Registry) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		const maxAttempts = 5
		retryDelay := 30 * time.Second
		staleRunning := 2 * time.Minute
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, maxAttempts, retryDelay, staleRunning)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "error", err)
					continue
				}
				if job == nil {
					continue
				}
				jc := runtime.NewContext(ctx, w.db, job, w.repo)
				h, ok := w.registry.Get(job.JobType)
				if !ok {
					w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
					jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
					continue
				}
				// A handler panic marks the job failed instead of killing the
				// worker loop.
				func() {
					defer func() {
						if r := recover(); r != nil {
							w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
							jc.Fail("panic", fmt.Errorf("panic: %v", r))
						}
					}()
					if runErr := h.Run(jc); runErr != nil {
						jc.Fail("run", runErr)
					}
				}()
			}
		}
	}()
}
