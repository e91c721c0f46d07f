package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/telemed-portal/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// jobTimeout bounds a single job run.
const jobTimeout = time.Minute

// Scheduler runs background jobs on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	eventSvc services.EventServiceProvider
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a new scheduler instance. eventSvc may be nil.
func NewScheduler(eventSvc services.EventServiceProvider) *Scheduler {
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		eventSvc: eventSvc,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Add registers job under name. spec accepts standard cron expressions and descriptors
// such as "@every 45m".
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context) error) error {
	if _, err := s.cron.AddFunc(spec, func() { s.executeTask(name, job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	log.Info().Str("job", name).Str("spec", spec).Msg("Scheduled background job")
	return nil
}

// RunNow executes job once, outside its schedule.
func (s *Scheduler) RunNow(name string, job func(ctx context.Context) error) {
	s.executeTask(name, job)
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Starting background scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.cancel()
		log.Info().Msg("Background scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Scheduler) executeTask(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	if err == nil {
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Background job finished")
		return
	}

	log.Error().Err(err).Str("job", name).Msg("Background job failed")
	if s.eventSvc == nil {
		return
	}
	recordCtx, cancelRecord := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRecord()
	msg := fmt.Sprintf("Background job '%s' failed: %v", name, err)
	if err := s.eventSvc.CreateEvent(recordCtx, "job.fail", "error", msg, nil); err != nil {
		log.Warn().Err(err).Str("job", name).Msg("Failed to record job failure")
	}
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
