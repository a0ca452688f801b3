package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"sfcmove/internal/prefs"
)

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change preferences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := prefs.Load(a.store)
			if err != nil {
				return err
			}
			printPrefs(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "set <location|east> <on|off>",
		Short:     "Turn a preference on or off",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"location", "east"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			p, err := prefs.Set(a.store, args[0], on)
			if err != nil {
				return err
			}
			printPrefs(cmd.OutOrStdout(), p)
			return nil
		},
	})
	return cmd
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("want on or off, got %q", s)
	}
	return b, nil
}

func printPrefs(w io.Writer, p prefs.Preferences) {
	onOff := func(b bool) string {
		if b {
			return okStyle.Render("on")
		}
		return mutedStyle.Render("off")
	}
	fmt.Fprintf(w, "location  %s  suggest the direction from your location\n", onOff(p.LocationBasedSuggestEnabled))
	fmt.Fprintf(w, "east      %s  include east-side station bicycle ports\n", onOff(p.IncludeEast))
}
