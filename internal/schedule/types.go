package schedule

import (
	"fmt"
	"time"
)

type Variant string

const (
	Weekday  Variant = "weekday"
	Saturday Variant = "saturday"
	Holiday  Variant = "holiday"
)

func (v Variant) Valid() bool {
	switch v {
	case Weekday, Saturday, Holiday:
		return true
	}
	return false
}

// ParseVariant is the inverse of Variant's string form.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown schedule variant %q", s)
	}
	return v, nil
}

// VariantFor picks the timetable that runs on t's weekday.
func VariantFor(t time.Time) Variant {
	switch t.Weekday() {
	case time.Sunday:
		return Holiday
	case time.Saturday:
		return Saturday
	default:
		return Weekday
	}
}

// Record is one row of the published timetable document.
type Record struct {
	Time           string   `json:"time"`
	ScheduleType   string   `json:"scheduleType"`
	RouteCode      []string `json:"routeCode"`
	Dest           string   `json:"dest"`
	Start          string   `json:"start"`
	AdditionalInfo string   `json:"additionalInfo,omitempty"`
	Metadata       string   `json:"metadata,omitempty"`
}

type ScheduledDeparture struct {
	TimeOfDay        int // HHMM
	Variant          Variant
	RouteTags        []string
	DestinationLabel string
	OriginStop       string
}

type UpcomingDeparture struct {
	Destination string
	IsExpress   bool
	ScheduledAt time.Time
}

// imminentWindow is how close a departure must be before it is shown as a countdown.
const imminentWindow = 5 * time.Minute

func (d UpcomingDeparture) Remaining(now time.Time) time.Duration {
	return d.ScheduledAt.Sub(now)
}

// MinutesLeft rounds down and never goes below zero.
func (d UpcomingDeparture) MinutesLeft(now time.Time) int {
	rem := d.Remaining(now)
	if rem <= 0 {
		return 0
	}
	return int(rem / time.Minute)
}

func (d UpcomingDeparture) Imminent(now time.Time) bool {
	return d.Remaining(now) <= imminentWindow
}
