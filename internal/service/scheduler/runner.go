package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
)

// Schedules maps job names onto cron expressions. Empty entries are not
// scheduled.
type Schedules map[string]string

type Runner struct {
	cron   *cron.Cron
	jobs   *Jobs
	lock   *redisrepo.JobLock
	lease  time.Duration
	logger *slog.Logger
}

// NewRunner registers the scheduled jobs. lock may be nil on a single
// instance; otherwise a run is skipped while another instance holds the
// job's lease.
func NewRunner(
	jobs *Jobs,
	schedules Schedules,
	loc *time.Location,
	lock *redisrepo.JobLock,
	logger *slog.Logger,
) (*Runner, error) {
	const op = "service.scheduler.NewRunner"

	if loc == nil {
		loc = time.UTC
	}

	r := &Runner{
		jobs:   jobs,
		lock:   lock,
		lease:  10 * time.Minute,
		logger: logger.With(slog.String("component", "cron")),
	}
	cl := cronLogger{r.logger}
	r.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, name := range Names() {
		expr := schedules[name]
		if expr == "" {
			continue
		}
		name := name
		if _, err := r.cron.AddFunc(expr, func() { r.fire(name) }); err != nil {
			return nil, fmt.Errorf("%s: job %s: %w", op, name, err)
		}
	}

	return r, nil
}

func (r *Runner) fire(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.lease)
	defer cancel()

	if r.lock != nil {
		unlock, err := r.lock.TryLock(ctx, name, r.lease)
		if err != nil {
			r.logger.Warn("job lock failed", slog.String("job", name), slog.Any("error", err))
			return
		}
		if unlock == nil {
			r.logger.Debug("job running elsewhere", slog.String("job", name))
			return
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				r.logger.Warn("job unlock failed", slog.String("job", name), slog.Any("error", err))
			}
		}()
	}

	// Run logs the outcome.
	_, _ = r.jobs.Run(ctx, name)
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Info("cron started", slog.Int("entries", len(r.cron.Entries())))

	<-ctx.Done()

	<-r.cron.Stop().Done()
	r.logger.Info("cron stopped")
	return nil
}

// cronLogger forwards cron's own messages, recovered panics included, to
// slog. Info is demoted to debug; cron logs every wake-up there.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
