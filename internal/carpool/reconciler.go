package carpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source is what the reconciler refetches. *Manager implements it.
type Source interface {
	Current(ctx context.Context) (*Group, error)
	ListActive(ctx context.Context) ([]Group, error)
}

// Snapshot is the local view after a refetch. When a refetch fails the previous
// view is kept, marked Stale, and Err holds the failure.
type Snapshot struct {
	Current   *Group
	Active    []Group
	FetchedAt time.Time
	Stale     bool
	Err       error
}

type ReconcileMetrics interface {
	ChangeReceived()
	RefetchCoalesced()
	RefetchDone(d time.Duration, err error)
}

// Reconciler keeps a Snapshot in step with the store by refetching everything
// whenever a change hint arrives. At most one refetch runs at a time; hints that
// arrive meanwhile collapse into a single follow-up refetch.
type Reconciler struct {
	src      Source
	feed     ChangeFeed
	log      *zap.Logger
	metrics  ReconcileMetrics
	onUpdate func(Snapshot)

	mu       sync.Mutex
	inFlight bool
	pending  bool
	snap     Snapshot
	wg       sync.WaitGroup
}

type ReconcilerOption func(*Reconciler)

func OnUpdate(fn func(Snapshot)) ReconcilerOption { return func(r *Reconciler) { r.onUpdate = fn } }

func WithReconcileLogger(l *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

func WithReconcileMetrics(m ReconcileMetrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

func NewReconciler(src Source, feed ChangeFeed, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{src: src, feed: feed, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run subscribes to both carpool tables, performs an initial refetch and then
// refetches on every hint until ctx is done or the feed closes.
func (r *Reconciler) Run(ctx context.Context) error {
	sub, err := r.feed.Subscribe(ctx, TableGroups, TableMembers)
	if err != nil {
		return fmt.Errorf("subscribe to carpool changes: %w", err)
	}
	defer sub.Close()
	defer r.wg.Wait()

	r.Refresh(ctx)
	changes := sub.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-changes:
			if !ok {
				r.log.Warn("carpool change feed closed")
				return nil
			}
			if r.metrics != nil {
				r.metrics.ChangeReceived()
			}
			r.log.Debug("carpool change", zap.String("table", c.Table), zap.String("op", c.Op))
			r.Refresh(ctx)
		}
	}
}

// Refresh requests a refetch, as a pull-to-refresh would. It does not block.
func (r *Reconciler) Refresh(ctx context.Context) {
	r.mu.Lock()
	if r.inFlight {
		r.pending = true
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.RefetchCoalesced()
		}
		return
	}
	r.inFlight = true
	r.wg.Add(1)
	r.mu.Unlock()
	go r.loop(ctx)
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		r.refetch(ctx)
		r.mu.Lock()
		if !r.pending || ctx.Err() != nil {
			r.inFlight, r.pending = false, false
			r.mu.Unlock()
			return
		}
		r.pending = false
		r.mu.Unlock()
	}
}

func (r *Reconciler) refetch(ctx context.Context) {
	start := time.Now()
	cur, err := r.src.Current(ctx)
	var active []Group
	if err == nil {
		active, err = r.src.ListActive(ctx)
	}
	if r.metrics != nil {
		r.metrics.RefetchDone(time.Since(start), err)
	}

	r.mu.Lock()
	if err != nil {
		r.snap.Stale = true
		r.snap.Err = err
	} else {
		r.snap = Snapshot{Current: cur, Active: active, FetchedAt: time.Now()}
	}
	snap := r.snap
	r.mu.Unlock()

	if err != nil {
		r.log.Warn("carpool refetch failed; keeping previous view", zap.Error(err))
	}
	if r.onUpdate != nil {
		r.onUpdate(snap)
	}
}

// Snapshot returns the latest view.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Wait blocks until no refetch is running.
func (r *Reconciler) Wait() { r.wg.Wait() }
