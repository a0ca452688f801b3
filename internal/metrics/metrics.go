package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sfcmove/internal/carpool"
)

const namespace = "sfcmove"

// Collector owns a private registry. It satisfies the metrics hooks of the
// schedule board, the carpool manager and reconciler, and the NATS publisher.
type Collector struct {
	reg *prometheus.Registry

	FeedFetches    *prometheus.CounterVec // result label: ok|error
	FeedCacheHits  prometheus.Counter
	Departures     prometheus.Histogram
	BicycleFetches *prometheus.CounterVec // result label: ok|error

	CarpoolOps       *prometheus.CounterVec // op, result labels
	Refetches        *prometheus.CounterVec // result label: ok|error
	Coalesced        prometheus.Counter
	ChangeTokens     prometheus.Counter
	ChangeTokensDrop prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	PublishDuration prometheus.Histogram
	RefetchDuration prometheus.Histogram

	FeedRefreshInterval prometheus.Gauge // seconds
}

func NewCollector(feedRefresh time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Timetable feed fetches by result.",
		}, []string{"result"}),
		FeedCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_cache_hits_total",
			Help:      "Timetables served from the on-disk cache before a live fetch.",
		}),
		Departures: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "departures_shown",
			Help:      "Number of upcoming departures returned per query.",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		}),
		BicycleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bicycle_fetches_total",
			Help:      "Bicycle availability fetches by result.",
		}, []string{"result"}),
		CarpoolOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carpool_operations_total",
			Help:      "Carpool operations by op and result (ok|refused|error).",
		}, []string{"op", "result"}),
		Refetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carpool_refetches_total",
			Help:      "Full carpool refetches by result.",
		}, []string{"result"}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carpool_refetch_coalesced_total",
			Help:      "Refetch requests folded into an in-flight refetch.",
		}),
		ChangeTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carpool_change_tokens_total",
			Help:      "Change tokens received from the feed.",
		}),
		ChangeTokensDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carpool_change_tokens_dropped_total",
			Help:      "Change tokens dropped because the subscription buffer was full.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_published_total",
			Help:      "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_publish_errors_total",
			Help:      "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration to marshal and publish a change token.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		RefetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "carpool_refetch_duration_seconds",
			Help:      "Duration of a full carpool refetch.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		FeedRefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_refresh_interval_seconds",
			Help:      "Timetable refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.FeedFetches, c.FeedCacheHits, c.Departures, c.BicycleFetches,
		c.CarpoolOps, c.Refetches, c.Coalesced, c.ChangeTokens, c.ChangeTokensDrop,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.PublishDuration, c.RefetchDuration, c.FeedRefreshInterval,
	)
	c.FeedRefreshInterval.Set(feedRefresh.Seconds())
	return c
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (c *Collector) FeedFetched(ok bool)   { c.FeedFetches.WithLabelValues(result(ok)).Inc() }
func (c *Collector) FeedCacheHit()         { c.FeedCacheHits.Inc() }
func (c *Collector) DeparturesShown(n int) { c.Departures.Observe(float64(n)) }
func (c *Collector) BicycleFetched(ok bool) {
	c.BicycleFetches.WithLabelValues(result(ok)).Inc()
}

func (c *Collector) OperationDone(op string, err error) {
	res := "ok"
	switch {
	case err == nil:
	case carpool.IsPrecondition(err):
		res = "refused"
	default:
		res = "error"
	}
	c.CarpoolOps.WithLabelValues(op, res).Inc()
}

func (c *Collector) ChangeReceived()   { c.ChangeTokens.Inc() }
func (c *Collector) ChangeDropped()    { c.ChangeTokensDrop.Inc() }
func (c *Collector) RefetchCoalesced() { c.Coalesced.Inc() }
func (c *Collector) RefetchDone(d time.Duration, err error) {
	c.RefetchDuration.Observe(d.Seconds())
	c.Refetches.WithLabelValues(result(err == nil)).Inc()
}

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log *zap.Logger) *http.Server {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics listening", zap.String("addr", addr))
	return srv
}
