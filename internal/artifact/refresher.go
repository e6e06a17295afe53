package artifact

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is one refresh run, typically a conversion that writes the artifact.
type Job func(ctx context.Context) error

// Refresher runs a Job on a cron schedule. Standard 5-field expressions and
// descriptors such as "@every 30m" are accepted. Overlapping runs are skipped.
type Refresher struct {
	schedule string
	job      Job
	log      logrus.FieldLogger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool

	busy atomic.Bool
}

func NewRefresher(schedule string, job Job, log logrus.FieldLogger) (*Refresher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	log = log.WithField("component", "artifact.refresher")
	return &Refresher{
		schedule: schedule,
		job:      job,
		log:      log,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(log)),
			cron.SkipIfStillRunning(cron.PrintfLogger(log)),
		)),
	}, nil
}

// Start schedules the job and returns. The scheduler stops when ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("refresher already running")
	}

	id, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(ctx) })
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	r.entry = id
	r.cron.Start()
	r.running = true
	r.log.WithField("schedule", r.schedule).Info("refresher started")

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// RunOnce runs the job immediately and logs its outcome. It returns false
// without running when another run is still in progress.
func (r *Refresher) RunOnce(ctx context.Context) bool {
	if !r.busy.CompareAndSwap(false, true) {
		r.log.Warn("refresh skipped: previous run still in progress")
		return false
	}
	defer r.busy.Store(false)

	start := time.Now()
	err := r.job(ctx)
	log := r.log.WithField("elapsed_ms", time.Since(start).Milliseconds())
	if err != nil {
		log.WithError(err).Error("scheduled refresh failed")
		return true
	}
	log.Info("scheduled refresh done")
	return true
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.log.Info("refresher stopped")
}

// NextRun reports the next scheduled run, or the zero time when stopped.
func (r *Refresher) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return time.Time{}
	}
	return r.cron.Entry(r.entry).Next
}
