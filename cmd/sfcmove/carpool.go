package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"sfcmove/internal/carpool"
)

func newCarpoolCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "carpool",
		Aliases: []string{"taxi"},
		Short:   "Share a taxi with other riders",
	}

	// run opens a signed-in carpool session for the duration of fn.
	run := func(fn func(ctx context.Context, env *carpoolEnv, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			env, err := a.openCarpool(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()
			return fn(cmd.Context(), env, cmd.OutOrStdout())
		}
	}
	withID := func(fn func(ctx context.Context, env *carpoolEnv, out io.Writer, id string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *carpoolEnv, out io.Writer) error {
				return fn(ctx, env, out, args[0])
			})(cmd, args)
		}
	}

	var from string
	list := &cobra.Command{
		Use:   "list",
		Short: "List open groups",
		RunE: run(func(ctx context.Context, env *carpoolEnv, out io.Writer) error {
			groups, err := env.mgr.ListActive(ctx)
			if err != nil {
				return err
			}
			if from != "" {
				place, err := carpool.ParsePlace(from)
				if err != nil {
					return err
				}
				groups = filterPlace(groups, place)
			}
			renderGroups(out, groups, a.cfg.Location)
			return nil
		}),
	}
	list.Flags().StringVar(&from, "from", "", "only groups leaving from station or sfc")

	mine := &cobra.Command{
		Use:   "mine",
		Short: "Show the group you are in",
		RunE: run(func(ctx context.Context, env *carpoolEnv, out io.Writer) error {
			g, err := env.mgr.Current(ctx)
			if err != nil {
				return err
			}
			if g == nil {
				fmt.Fprintln(out, mutedStyle.Render("you are not in a group"))
				return nil
			}
			renderGroup(out, *g, a.cfg.Location)
			return nil
		}),
	}

	var req struct {
		from   string
		memo   string
		people int
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a new group as its host",
		RunE: run(func(ctx context.Context, env *carpoolEnv, out io.Writer) error {
			place, err := carpool.ParsePlace(req.from)
			if err != nil {
				return err
			}
			if req.people < 1 || req.people > carpool.MaxPeople {
				return fmt.Errorf("--people must be between 1 and %d", carpool.MaxPeople)
			}
			g, err := env.mgr.Create(ctx, carpool.CreateRequest{PeopleCount: req.people, Memo: req.memo, DepFrom: place})
			if err != nil {
				return refusal(err)
			}
			fmt.Fprintln(out, okStyle.Render("group created"))
			renderGroup(out, *g, a.cfg.Location)
			return nil
		}),
	}
	create.Flags().StringVar(&req.from, "from", string(carpool.PlaceStation), "where the taxi leaves from: station or sfc")
	create.Flags().StringVar(&req.memo, "memo", "", "meeting point or other note")
	create.Flags().IntVar(&req.people, "people", 1, "how many are travelling with you, including yourself")

	join := &cobra.Command{
		Use:   "join <group-id>",
		Short: "Join an open group",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(ctx context.Context, env *carpoolEnv, out io.Writer, id string) error {
			if err := env.mgr.Join(ctx, id); err != nil {
				return refusal(err)
			}
			fmt.Fprintln(out, okStyle.Render("joined "+id))
			return nil
		}),
	}
	leave := &cobra.Command{
		Use:   "leave <group-id>",
		Short: "Leave a group you joined",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(ctx context.Context, env *carpoolEnv, out io.Writer, id string) error {
			if err := env.mgr.Leave(ctx, id); err != nil {
				return refusal(err)
			}
			fmt.Fprintln(out, okStyle.Render("left "+id))
			return nil
		}),
	}
	complete := &cobra.Command{
		Use:   "complete <group-id>",
		Short: "Close your group once the taxi has left",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(ctx context.Context, env *carpoolEnv, out io.Writer, id string) error {
			if err := env.mgr.Complete(ctx, id); err != nil {
				return refusal(err)
			}
			fmt.Fprintln(out, okStyle.Render("completed "+id))
			return nil
		}),
	}

	var every time.Duration
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Follow open groups and your own group as they change",
		RunE: run(func(ctx context.Context, env *carpoolEnv, out io.Writer) error {
			if env.feed == nil {
				return errors.New("watch needs NATS; set NATS_URL")
			}
			rec := carpool.NewReconciler(env.mgr, env.feed,
				carpool.WithReconcileLogger(a.log),
				carpool.WithReconcileMetrics(a.metrics),
				carpool.OnUpdate(func(s carpool.Snapshot) { renderSnapshot(out, s, a.cfg.Location) }))
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if every > 0 {
				go func() {
					t := time.NewTicker(every)
					defer t.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-t.C:
							rec.Refresh(ctx)
						}
					}
				}()
			}
			err := rec.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
	watch.Flags().DurationVar(&every, "every", 0, "also refetch on this interval (0 disables)")

	cmd.AddCommand(list, mine, create, join, leave, complete, watch)
	return cmd
}

func filterPlace(groups []carpool.Group, p carpool.Place) []carpool.Group {
	out := groups[:0:0]
	for _, g := range groups {
		if g.DepFrom == p {
			out = append(out, g)
		}
	}
	return out
}

var refusalText = map[error]string{
	carpool.ErrAlreadyInGroup:  "you are already in a group; leave or complete it first",
	carpool.ErrGroupFull:       "that group is full",
	carpool.ErrNotAMember:      "you are not in that group",
	carpool.ErrNotHost:         "only the host can complete the group",
	carpool.ErrHostCannotLeave: "the host cannot leave; complete the group instead",
	carpool.ErrGroupNotFound:   "no such group",
	carpool.ErrGroupCompleted:  "that group has already left",
	carpool.ErrBusy:            "a request for that group is still in progress",
}

// refusal rewords a refused operation for the terminal and keeps the sentinel.
func refusal(err error) error {
	for sentinel, text := range refusalText {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%s: %w", text, sentinel)
		}
	}
	return err
}

func renderSnapshot(w io.Writer, s carpool.Snapshot, loc *time.Location) {
	fmt.Fprintln(w)
	header := "carpool"
	if !s.FetchedAt.IsZero() {
		header += " · " + s.FetchedAt.In(loc).Format("15:04:05")
	}
	fmt.Fprintln(w, titleStyle.Render(header))
	if s.Stale {
		fmt.Fprintln(w, warnStyle.Render("refresh failed, showing last known state: "+s.Err.Error()))
	}
	if s.Current != nil {
		fmt.Fprintln(w, titleStyle.Render("your group"))
		renderGroup(w, *s.Current, loc)
		fmt.Fprintln(w)
	}
	renderGroups(w, s.Active, loc)
}
