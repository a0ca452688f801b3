package points

import (
	"math"
	"time"
)

// Campus reference coordinate used for direction suggestions.
const (
	CampusLat = 35.387615518299015
	CampusLon = 139.42843437194827

	// NearCampusMeters is the radius inside which a user is treated as leaving campus.
	NearCampusMeters = 550.0
)

type Direction struct {
	Dep PointID
	Arr PointID
}

// SuggestDirection picks the likely trip from a location fix: near campus means
// heading to the station, anywhere else means heading to campus.
func SuggestDirection(lat, lon float64) Direction {
	if Haversine(lat, lon, CampusLat, CampusLon) < NearCampusMeters {
		return Direction{Dep: SFC, Arr: Shonandai}
	}
	return Direction{Dep: Shonandai, Arr: SFC}
}

// DefaultDirection is the guess used without a location fix: towards the
// station from 14:01 on, towards campus before that.
func DefaultDirection(now time.Time) Direction {
	h, m, _ := now.Clock()
	if h > 14 || (h == 14 && m > 0) {
		return Direction{Dep: SFC, Arr: Shonandai}
	}
	return Direction{Dep: Shonandai, Arr: SFC}
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
