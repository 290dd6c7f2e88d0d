package warmup

import (
	"context"
	"log/slog"
	"time"

	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "*/10 * * * *"

// Loader is the part of snapshot.Loader the warmup job drives.
type Loader interface {
	Invalidate(ctx context.Context, days ...time.Time) error
	Load(ctx context.Context, day time.Time) (model.Snapshot, error)
}

type Observer interface {
	ObserveInvalidation(trigger string, days int)
}

// Job refreshes the cached snapshots of today and the next Days days.
type Job struct {
	loader   Loader
	loc      *time.Location
	days     int
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

func NewJob(loader Loader, loc *time.Location, days int, logger *slog.Logger, observer Observer) *Job {
	if loc == nil {
		loc = time.UTC
	}
	if days < 0 {
		days = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		loader:   loader,
		loc:      loc,
		days:     days,
		timeout:  time.Minute,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Days lists the midnights the job refreshes, starting today in the clinic's location.
func (j *Job) Days() []time.Time {
	y, m, d := j.now().In(j.loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, j.loc)
	out := make([]time.Time, 0, j.days+1)
	for i := 0; i <= j.days; i++ {
		out = append(out, today.AddDate(0, 0, i))
	}
	return out
}

// Run refreshes every day once. Failures are logged per day and do not stop the rest.
func (j *Job) Run(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	days := j.Days()
	if err := j.loader.Invalidate(ctx, days...); err != nil {
		j.logger.Warn("warmup invalidation failed", "err", err)
	} else if j.observer != nil {
		j.observer.ObserveInvalidation("warmup", len(days))
	}

	loaded := 0
	for _, day := range days {
		if _, err := j.loader.Load(ctx, day); err != nil {
			j.logger.Warn("warmup load failed", "day", day.Format(time.DateOnly), "err", err)
			continue
		}
		loaded++
	}
	j.logger.Info("snapshot warmup finished", "days", len(days), "loaded", loaded)
	return loaded
}

// Schedule starts a cron scheduler running the job on spec (standard 5-field syntax,
// evaluated in the clinic's location). Overlapping runs are skipped. Stop the returned
// scheduler on shutdown.
func (j *Job) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	logger := cronLogger{logger: j.logger}
	c := cron.New(
		cron.WithLocation(j.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { j.Run(ctx) }); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
