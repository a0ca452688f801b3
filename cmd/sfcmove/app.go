package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/huh/spinner"
	"github.com/mattn/go-isatty"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sfcmove/internal/carpool"
	"sfcmove/internal/config"
	"sfcmove/internal/db"
	"sfcmove/internal/kvstore"
	"sfcmove/internal/logging"
	"sfcmove/internal/metrics"
	"sfcmove/internal/realtime"
	"sfcmove/internal/session"
)

// app holds what every command shares. It is filled in before any command runs.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *kvstore.Store
	metrics    *metrics.Collector
	metricsSrv *http.Server
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	a.cfg = cfg

	if a.log, err = logging.New(cfg.LogLevel); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if a.store, err = kvstore.Open(cfg.DataDir); err != nil {
		return err
	}
	a.metrics = metrics.NewCollector(cfg.FeedRefresh)
	if cfg.MetricsAddr != "" {
		a.metricsSrv = a.metrics.Serve(cfg.MetricsAddr, a.log)
	}
	return nil
}

func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// withSpinner runs fn behind a spinner on a terminal and plainly otherwise.
func withSpinner(title string, fn func()) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fn()
		return
	}
	_ = spinner.New().Title(title).Action(fn).Run()
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, errors.New("carpool store not configured: set DATABASE_URL or PGDATABASE")
	}
	dsn, err := db.WithDBName(a.cfg.DatabaseURL, a.cfg.DatabaseName)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return sqlDB, nil
}

// carpoolEnv is a signed-in connection to the carpool store. feed is nil when
// NATS is unreachable; writes then go out without change tokens.
type carpoolEnv struct {
	userID string
	sqlDB  *sql.DB
	nc     *nats.Conn
	mgr    *carpool.Manager
	feed   *realtime.Feed
}

func (a *app) openCarpool(ctx context.Context) (*carpoolEnv, error) {
	sess, err := session.EnsureSignedIn(a.store)
	if err != nil {
		return nil, err
	}
	sqlDB, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	env := &carpoolEnv{userID: sess.UserID, sqlDB: sqlDB}

	storeOpts := []db.StoreOption{db.WithStoreLogger(a.log)}
	nc, err := realtime.Connect(a.cfg.NATSURL, "sfcmove", a.metrics, a.log)
	if err != nil {
		a.log.Warn("nats unavailable; carpool changes will not be announced", zap.Error(err))
	} else {
		env.nc = nc
		pub := realtime.NewPublisher(nc, a.cfg.NATSSubjectPrefix, a.cfg.LogNATSSubjects, a.metrics, a.log)
		storeOpts = append(storeOpts, db.WithNotifier(pub))
		env.feed = realtime.NewFeed(nc, a.cfg.NATSSubjectPrefix,
			realtime.WithFeedLogger(a.log), realtime.OnDrop(a.metrics.ChangeDropped))
	}

	store := db.NewCarpoolStore(sqlDB, storeOpts...)
	env.mgr, err = carpool.NewManager(store, sess.UserID,
		carpool.WithLogger(a.log), carpool.WithMetrics(a.metrics))
	if err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}

func (e *carpoolEnv) close() {
	if e.nc != nil {
		_ = e.nc.Drain()
	}
	if e.sqlDB != nil {
		e.sqlDB.Close()
	}
}
