package schedule

import (
	"fmt"

	"sfcmove/internal/points"
)

// Route is a directed bus connection between two points.
type Route struct {
	Dep points.PointID
	Arr points.PointID
}

var feedPaths = map[Route]string{
	{Dep: points.SFC, Arr: points.Shonandai}:       "/fromSfc/toShonandai.json",
	{Dep: points.SFCHonkan, Arr: points.Shonandai}: "/fromSfcHonkan/toShonandai.json",
	{Dep: points.Shonandai, Arr: points.SFC}:       "/fromShonandai/toSfc.json",
	{Dep: points.Shonandai, Arr: points.SFCHonkan}: "/fromShonandai/toSfcHonkan.json",
}

// RouteVia resolves a trip between dep and arr through the chosen campus stop.
// campusStop must be SFC or SFCHonkan.
func RouteVia(dep, arr, campusStop points.PointID) (Route, error) {
	if !campusStop.IsCampus() {
		return Route{}, fmt.Errorf("%q is not a campus stop", campusStop)
	}
	swap := func(p points.PointID) points.PointID {
		if p.IsCampus() {
			return campusStop
		}
		return p
	}
	r := Route{Dep: swap(dep), Arr: swap(arr)}
	if _, err := r.FeedPath(); err != nil {
		return Route{}, err
	}
	return r, nil
}

func (r Route) FeedPath() (string, error) {
	p, ok := feedPaths[r]
	if !ok {
		return "", fmt.Errorf("no bus timetable from %s to %s", r.Dep, r.Arr)
	}
	return p, nil
}

// CacheKey is the local store key for the route's timetable document.
func (r Route) CacheKey() string {
	p, _ := r.FeedPath()
	return "bus-" + p
}

// SuspendedOn reports whether the route does not run at all on v. Buses to and
// from the main building stop do not run on holidays.
func (r Route) SuspendedOn(v Variant) bool {
	return v == Holiday && (r.Dep == points.SFCHonkan || r.Arr == points.SFCHonkan)
}

func (r Route) String() string {
	return fmt.Sprintf("%s → %s", r.Dep, r.Arr)
}
