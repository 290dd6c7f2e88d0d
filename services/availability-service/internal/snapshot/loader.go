package snapshot

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/brightsmile/dentalbook/libs/otel"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Source is where dentists, bookings and off-hours come from: the backend REST API or
// its Postgres database.
type Source interface {
	ListDentists(ctx context.Context) ([]model.Dentist, error)
	ListBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	ListOffHours(ctx context.Context, from, to time.Time) ([]model.OffHour, error)
}

// Recorder receives cache and load outcomes. metrics.Metrics implements it.
type Recorder interface {
	CacheResult(result string)
	SourceLoad(elapsed time.Duration, err error)
}

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

const defaultFetchTimeout = 30 * time.Second

// Loader builds per-day snapshots, consulting the cache first when one is configured.
type Loader struct {
	source       Source
	cache        *Cache
	loc          *time.Location
	logger       *slog.Logger
	recorder     Recorder
	fetchTimeout time.Duration
	group        singleflight.Group
	now          func() time.Time
}

type Option func(*Loader)

// WithCache enables the Redis cache. A nil cache leaves it disabled.
func WithCache(c *Cache) Option {
	return func(l *Loader) { l.cache = c }
}

func WithRecorder(r Recorder) Option {
	return func(l *Loader) { l.recorder = r }
}

// WithFetchTimeout bounds a shared source fetch. Callers that give up earlier do not
// cancel it for the others waiting on the same day.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.fetchTimeout = d
		}
	}
}

func NewLoader(source Source, loc *time.Location, logger *slog.Logger, opts ...Option) *Loader {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{source: source, loc: loc, logger: logger, fetchTimeout: defaultFetchTimeout, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DayKey formats the clinic day containing t as YYYY-MM-DD.
func (l *Loader) DayKey(t time.Time) string {
	return t.In(l.loc).Format(time.DateOnly)
}

func (l *Loader) dayRange(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(l.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, l.loc)
	return start, start.AddDate(0, 0, 1)
}

// Load returns the snapshot for the clinic day containing day. Cache failures are logged
// and fall back to the source.
func (l *Loader) Load(ctx context.Context, day time.Time) (model.Snapshot, error) {
	key := l.DayKey(day)
	ctx, span := otelx.Start(ctx, "snapshot.load")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.day", key))

	if l.cache != nil {
		snap, ok, err := l.cache.Get(ctx, key)
		switch {
		case err != nil:
			l.record(CacheError)
			l.logger.Warn("snapshot cache read failed", "day", key, "err", err)
		case ok:
			l.record(CacheHit)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return snap, nil
		default:
			l.record(CacheMiss)
		}
	}

	ch := l.group.DoChan(key, func() (any, error) {
		return l.loadShared(ctx, key, day)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return model.Snapshot{}, res.Err
		}
		return res.Val.(model.Snapshot), nil
	case <-ctx.Done():
		return model.Snapshot{}, ctx.Err()
	}
}

// loadShared runs once per day for all concurrent callers. It is detached from the
// first caller's cancellation and caches the result only if the day was not
// invalidated while fetching.
func (l *Loader) loadShared(ctx context.Context, key string, day time.Time) (model.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.fetchTimeout)
	defer cancel()

	var (
		gen     int64
		guarded bool
	)
	if l.cache != nil {
		g, err := l.cache.Generation(ctx, key)
		if err != nil {
			l.record(CacheError)
			l.logger.Warn("snapshot generation read failed", "day", key, "err", err)
		} else {
			gen, guarded = g, true
		}
	}

	snap, err := l.fetch(ctx, day)
	if err != nil {
		return model.Snapshot{}, err
	}

	if guarded {
		stored, err := l.cache.SetIfGeneration(ctx, key, gen, snap)
		switch {
		case err != nil:
			l.record(CacheError)
			l.logger.Warn("snapshot cache write failed", "day", key, "err", err)
		case !stored:
			l.logger.Debug("snapshot invalidated during load, not cached", "day", key)
		}
	}
	return snap, nil
}

// fetch reads the three collections concurrently, bypassing the cache.
func (l *Loader) fetch(ctx context.Context, day time.Time) (model.Snapshot, error) {
	from, to := l.dayRange(day)
	started := l.now()

	var snap model.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ds, err := l.source.ListDentists(gctx)
		snap.Dentists = ds
		return err
	})
	g.Go(func() error {
		bs, err := l.source.ListBookings(gctx, from, to)
		snap.Bookings = bs
		return err
	})
	g.Go(func() error {
		offs, err := l.source.ListOffHours(gctx, from, to)
		snap.OffHours = offs
		return err
	})
	err := g.Wait()
	if l.recorder != nil {
		l.recorder.SourceLoad(l.now().Sub(started), err)
	}
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.FetchedAt = l.now().UTC()
	return snap, nil
}

// Invalidate drops the cached snapshots of the clinic days containing each of days.
// Loads already in flight for those days still answer their callers but are not cached,
// and later callers start a fresh load.
func (l *Loader) Invalidate(ctx context.Context, days ...time.Time) error {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(days))
	keys := make([]string, 0, len(days))
	for _, d := range days {
		k := l.DayKey(d)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
		l.group.Forget(k)
	}
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, keys...)
}

// Ready reports cache health; a loader without a cache is always ready.
func (l *Loader) Ready(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Ping(ctx)
}

func (l *Loader) record(result string) {
	if l.recorder != nil {
		l.recorder.CacheResult(result)
	}
}
