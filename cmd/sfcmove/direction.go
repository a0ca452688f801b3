package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sfcmove/internal/points"
	"sfcmove/internal/prefs"
)

type directionFlags struct {
	from, to string
	lat, lon float64
}

func (f *directionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "departure point: sfc, honkan or station")
	cmd.Flags().StringVar(&f.to, "to", "", "arrival point (defaults to the other end)")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "current latitude for a direction suggestion")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "current longitude for a direction suggestion")
}

// resolve picks the travel direction: explicit points first, then a location fix
// when location suggestions are enabled, then the time of day.
func (f *directionFlags) resolve(cmd *cobra.Command, p prefs.Preferences, now time.Time) (points.Direction, string, error) {
	if f.from != "" || f.to != "" {
		return explicitDirection(f.from, f.to)
	}
	hasFix := cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon")
	if hasFix && p.LocationBasedSuggestEnabled {
		return points.SuggestDirection(f.lat, f.lon), "location", nil
	}
	return points.DefaultDirection(now), "time of day", nil
}

func explicitDirection(from, to string) (points.Direction, string, error) {
	var d points.Direction
	var err error
	switch {
	case from != "":
		if d.Dep, err = points.Parse(from); err != nil {
			return d, "", err
		}
		d.Arr = d.Dep.Opposite()
		if to != "" {
			if d.Arr, err = points.Parse(to); err != nil {
				return d, "", err
			}
		}
	default:
		if d.Arr, err = points.Parse(to); err != nil {
			return d, "", err
		}
		d.Dep = d.Arr.Opposite()
	}
	if d.Dep.IsCampus() == d.Arr.IsCampus() {
		return d, "", fmt.Errorf("%s and %s are on the same side", d.Dep, d.Arr)
	}
	return d, "flags", nil
}
