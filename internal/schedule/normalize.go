package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// ExpressMarker prefixes the destination label of express services.
	ExpressMarker = "急・"
	DefaultLimit  = 7
)

// ParseFeed decodes a timetable document. Rows that cannot be interpreted are
// skipped; only an undecodable document is an error.
func ParseFeed(data []byte, log *zap.Logger) ([]ScheduledDeparture, error) {
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode timetable: %w", err)
	}
	out := make([]ScheduledDeparture, 0, len(recs))
	for i, r := range recs {
		hhmm, err := parseHHMM(r.Time)
		if err != nil {
			if log != nil {
				log.Warn("skipping timetable row", zap.Int("row", i), zap.String("time", r.Time), zap.Error(err))
			}
			continue
		}
		v, err := ParseVariant(r.ScheduleType)
		if err != nil {
			if log != nil {
				log.Warn("skipping timetable row", zap.Int("row", i), zap.String("scheduleType", r.ScheduleType))
			}
			continue
		}
		out = append(out, ScheduledDeparture{
			TimeOfDay:        hhmm,
			Variant:          v,
			RouteTags:        r.RouteCode,
			DestinationLabel: r.Dest,
			OriginStop:       r.Start,
		})
	}
	return out, nil
}

// parseHHMM accepts "HHMM" (leading zeros optional) within a single service day.
func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if n < 0 || n/100 > 23 || n%100 > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return n, nil
}

// ClassifyDestination splits a raw label into the displayed destination and
// whether the service is express.
func ClassifyDestination(label string) (dest string, express bool) {
	if !strings.Contains(label, ExpressMarker) {
		return label, false
	}
	return strings.Replace(label, ExpressMarker, "", 1), true
}

type departureKey struct {
	at          int64
	destination string
	express     bool
}

// ComputeUpcoming returns today's remaining departures of the given variant,
// deduplicated, ordered by time with express first on ties, at most limit long.
// now is taken at minute resolution; there is no rollover into the next day.
func ComputeUpcoming(feed []ScheduledDeparture, now time.Time, variant Variant, limit int) []UpcomingDeparture {
	if limit <= 0 {
		limit = DefaultLimit
	}
	y, m, d := now.Date()
	nowHHMM := now.Hour()*100 + now.Minute()

	seen := make(map[departureKey]struct{}, len(feed))
	out := make([]UpcomingDeparture, 0, len(feed))
	for _, sd := range feed {
		if sd.Variant != variant || sd.TimeOfDay < nowHHMM {
			continue
		}
		at := time.Date(y, m, d, sd.TimeOfDay/100, sd.TimeOfDay%100, 0, 0, now.Location())
		dest, express := ClassifyDestination(sd.DestinationLabel)
		k := departureKey{at: at.Unix(), destination: dest, express: express}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, UpcomingDeparture{Destination: dest, IsExpress: express, ScheduledAt: at})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].IsExpress && !out[j].IsExpress
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
