package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher retrieves a timetable document by path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Cache persists the last successfully fetched document per route.
type Cache interface {
	Get(key string, v any) (bool, error)
	Put(key string, v any) error
}

type BoardMetrics interface {
	FeedFetched(ok bool)
	FeedCacheHit()
	DeparturesShown(n int)
}

// Board holds the timetable of one route and answers "what leaves next".
// The cached document is shown first; a live fetch replaces it when it succeeds,
// and a failed fetch leaves the last good feed in place.
type Board struct {
	route   Route
	fetcher Fetcher
	cache   Cache
	limit   int
	loc     *time.Location
	variant Variant // forced variant, empty means by weekday
	now     func() time.Time
	log     *zap.Logger
	metrics BoardMetrics

	mu        sync.RWMutex
	feed      []ScheduledDeparture
	loaded    bool
	fetchedAt time.Time
}

type BoardOption func(*Board)

func WithLimit(n int) BoardOption { return func(b *Board) { b.limit = n } }

func WithLocation(loc *time.Location) BoardOption {
	return func(b *Board) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithVariant forces a timetable variant regardless of the weekday.
func WithVariant(v Variant) BoardOption { return func(b *Board) { b.variant = v } }

func WithClock(now func() time.Time) BoardOption { return func(b *Board) { b.now = now } }

func WithLogger(l *zap.Logger) BoardOption {
	return func(b *Board) {
		if l != nil {
			b.log = l
		}
	}
}

func WithMetrics(m BoardMetrics) BoardOption { return func(b *Board) { b.metrics = m } }

func NewBoard(route Route, f Fetcher, c Cache, opts ...BoardOption) *Board {
	b := &Board{
		route:   route,
		fetcher: f,
		cache:   c,
		limit:   DefaultLimit,
		loc:     time.Local,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With(zap.String("route", route.String()))
	return b
}

func (b *Board) Route() Route { return b.route }

// Load shows the cached timetable (on first load) and then refreshes it from the
// network. The returned error only describes the live fetch; data already held
// stays usable.
func (b *Board) Load(ctx context.Context) error {
	path, err := b.route.FeedPath()
	if err != nil {
		return err
	}
	key := b.route.CacheKey()

	if !b.Loaded() && b.cache != nil {
		var raw json.RawMessage
		ok, err := b.cache.Get(key, &raw)
		switch {
		case err != nil:
			b.log.Warn("read cached timetable", zap.Error(err))
		case ok:
			if feed, err := ParseFeed(raw, b.log); err != nil {
				b.log.Warn("cached timetable unreadable", zap.Error(err))
			} else {
				b.set(feed, time.Time{})
				if b.metrics != nil {
					b.metrics.FeedCacheHit()
				}
			}
		}
	}

	data, err := b.fetcher.Fetch(ctx, path)
	if b.metrics != nil {
		b.metrics.FeedFetched(err == nil)
	}
	if err != nil {
		return fmt.Errorf("fetch timetable %s: %w", path, err)
	}
	feed, err := ParseFeed(data, b.log)
	if err != nil {
		return fmt.Errorf("timetable %s: %w", path, err)
	}
	b.set(feed, b.now())
	if b.cache != nil {
		if err := b.cache.Put(key, json.RawMessage(data)); err != nil {
			b.log.Warn("store timetable", zap.Error(err))
		}
	}
	return nil
}

func (b *Board) set(feed []ScheduledDeparture, fetchedAt time.Time) {
	b.mu.Lock()
	b.feed = feed
	b.loaded = true
	if !fetchedAt.IsZero() {
		b.fetchedAt = fetchedAt
	}
	b.mu.Unlock()
}

func (b *Board) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// FetchedAt is the time of the last successful live fetch, zero if the board
// only holds cached data.
func (b *Board) FetchedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fetchedAt
}

// Variant reports the timetable in effect at now.
func (b *Board) Variant(now time.Time) Variant {
	if b.variant != "" {
		return b.variant
	}
	return VariantFor(now.In(b.loc))
}

// Upcoming evaluates the held feed against now. ok is false while nothing has
// been loaded; an empty result with ok means service has ended for today.
func (b *Board) Upcoming(now time.Time) (deps []UpcomingDeparture, ok bool) {
	now = now.In(b.loc)
	v := b.Variant(now)
	if b.route.SuspendedOn(v) {
		return []UpcomingDeparture{}, true
	}
	b.mu.RLock()
	feed, loaded := b.feed, b.loaded
	b.mu.RUnlock()
	if !loaded {
		return nil, false
	}
	deps = ComputeUpcoming(feed, now, v, b.limit)
	if b.metrics != nil {
		b.metrics.DeparturesShown(len(deps))
	}
	return deps, true
}

// Watch loads the board, then calls fn with a fresh evaluation on every tick and
// after every periodic reload. It returns when ctx is done.
func (b *Board) Watch(ctx context.Context, tick, refresh time.Duration, fn func(deps []UpcomingDeparture, ok bool)) error {
	if err := b.Load(ctx); err != nil {
		b.log.Warn("load timetable", zap.Error(err))
	}
	emit := func() {
		deps, ok := b.Upcoming(b.now())
		fn(deps, ok)
	}
	emit()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	var reload <-chan time.Time
	if refresh > 0 {
		rt := time.NewTicker(refresh)
		defer rt.Stop()
		reload = rt.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			emit()
		case <-reload:
			if err := b.Load(ctx); err != nil {
				b.log.Warn("reload timetable", zap.Error(err))
			}
			emit()
		}
	}
}
