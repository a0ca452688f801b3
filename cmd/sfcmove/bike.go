package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sfcmove/internal/bicycle"
	"sfcmove/internal/httpfeed"
	"sfcmove/internal/prefs"
)

func newBikeCmd(a *app) *cobra.Command {
	var (
		dir  directionFlags
		east bool
	)
	cmd := &cobra.Command{
		Use:   "bike",
		Short: "Show shared-bicycle availability for the trip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := prefs.Load(a.store)
			if err != nil {
				a.log.Warn("using default preferences", zap.Error(err))
			}
			if cmd.Flags().Changed("east") {
				p.IncludeEast = east
			}
			d, _, err := dir.resolve(cmd, p, time.Now().In(a.cfg.Location))
			if err != nil {
				return err
			}

			client := bicycle.NewClient(httpfeed.NewClient(a.cfg.BicycleAPIURL, a.cfg.HTTPTimeout,
				httpfeed.WithLogger(a.log)))
			var (
				resp     *bicycle.Response
				fetchErr error
			)
			withSpinner("Fetching bicycle ports...", func() { resp, fetchErr = client.Fetch(cmd.Context()) })
			a.metrics.BicycleFetched(fetchErr == nil)
			if fetchErr != nil {
				return fetchErr
			}
			renderBicycles(cmd.OutOrStdout(), bicycle.Summarize(resp, d.Dep, p.IncludeEast))
			return nil
		},
	}
	dir.register(cmd)
	cmd.Flags().BoolVar(&east, "east", false, "include the east-side station ports (overrides the preference)")
	return cmd
}
