package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sfcmove/internal/prefs"
)

func newSuggestCmd(a *app) *cobra.Command {
	var dir directionFlags
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest the travel direction from a location fix or the time of day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := prefs.Load(a.store)
			if err != nil {
				return err
			}
			d, source, err := dir.resolve(cmd, p, time.Now().In(a.cfg.Location))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s → %s %s\n", d.Dep, d.Arr, mutedStyle.Render("("+source+")"))
			return nil
		},
	}
	dir.register(cmd)
	return cmd
}
