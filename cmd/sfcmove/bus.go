package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sfcmove/internal/httpfeed"
	"sfcmove/internal/points"
	"sfcmove/internal/prefs"
	"sfcmove/internal/schedule"
)

func newBusCmd(a *app) *cobra.Command {
	var (
		dir     directionFlags
		via     string
		variant string
		at      string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "bus",
		Short: "Show the next buses",
		Example: `  sfcmove bus --from station
  sfcmove bus --from sfc --via honkan --at 18:20
  sfcmove bus --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := prefs.Load(a.store)
			if err != nil {
				a.log.Warn("using default preferences", zap.Error(err))
			}

			var opts []schedule.BoardOption
			now := time.Now().In(a.cfg.Location)
			if at != "" {
				fixed, err := clockAt(at, now)
				if err != nil {
					return err
				}
				now = fixed
				opts = append(opts, schedule.WithClock(func() time.Time { return fixed }))
			}
			if variant != "" {
				v, err := schedule.ParseVariant(variant)
				if err != nil {
					return err
				}
				opts = append(opts, schedule.WithVariant(v))
			}

			d, _, err := dir.resolve(cmd, p, now)
			if err != nil {
				return err
			}
			stop, err := campusStop(via)
			if err != nil {
				return err
			}
			route, err := schedule.RouteVia(d.Dep, d.Arr, stop)
			if err != nil {
				return err
			}

			board := a.newBoard(route, opts...)
			out := cmd.OutOrStdout()
			if watch {
				err := board.Watch(ctx, time.Minute, a.cfg.FeedRefresh, func(deps []schedule.UpcomingDeparture, ok bool) {
					fmt.Fprintln(out)
					renderDepartures(out, route, deps, ok, time.Now().In(a.cfg.Location))
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			var loadErr error
			withSpinner("Fetching timetable...", func() { loadErr = board.Load(ctx) })
			if loadErr != nil {
				if !board.Loaded() {
					return loadErr
				}
				fmt.Fprintln(out, warnStyle.Render("offline: showing the saved timetable"))
				a.log.Warn("timetable refresh failed", zap.Error(loadErr))
			}
			deps, ok := board.Upcoming(now)
			renderDepartures(out, route, deps, ok, now)
			return nil
		},
	}
	dir.register(cmd)
	cmd.Flags().StringVar(&via, "via", "sfc", "campus stop: sfc or honkan")
	cmd.Flags().StringVar(&variant, "variant", "", "force a timetable: weekday, saturday or holiday")
	cmd.Flags().StringVar(&at, "at", "", "evaluate at HH:MM today instead of now")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep the board on screen and refresh it")
	return cmd
}

func (a *app) newBoard(route schedule.Route, extra ...schedule.BoardOption) *schedule.Board {
	feed := httpfeed.NewClient(a.cfg.BusFeedBaseURL, a.cfg.HTTPTimeout,
		httpfeed.WithRawQuery(), httpfeed.WithLogger(a.log))
	opts := []schedule.BoardOption{
		schedule.WithLimit(a.cfg.BusLimit),
		schedule.WithLocation(a.cfg.Location),
		schedule.WithLogger(a.log),
		schedule.WithMetrics(a.metrics),
	}
	return schedule.NewBoard(route, feed, a.store, append(opts, extra...)...)
}

func campusStop(via string) (points.PointID, error) {
	p, err := points.Parse(via)
	if err != nil {
		return "", err
	}
	if !p.IsCampus() {
		return "", fmt.Errorf("--via must be a campus stop, got %q", via)
	}
	return p, nil
}

// clockAt returns today's date (from now) at the HH:MM given in s.
func clockAt(s string, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("--at wants HH:MM, got %q", s)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}
