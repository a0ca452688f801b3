package schedule

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jst = time.FixedZone("JST", 9*60*60)

// 2026-10-19 is a Monday.
func weekdayAt(h, m int) time.Time { return time.Date(2026, 10, 19, h, m, 0, 0, jst) }

func TestVariantFor(t *testing.T) {
	assert.Equal(t, Weekday, VariantFor(weekdayAt(9, 0)))
	assert.Equal(t, Weekday, VariantFor(time.Date(2026, 10, 23, 9, 0, 0, 0, jst)))
	assert.Equal(t, Saturday, VariantFor(time.Date(2026, 10, 24, 9, 0, 0, 0, jst)))
	assert.Equal(t, Holiday, VariantFor(time.Date(2026, 10, 25, 9, 0, 0, 0, jst)))
}

func TestParseFeed(t *testing.T) {
	data := []byte(`[
		{"time":"0705","scheduleType":"weekday","dest":"急・湘南台","routeCode":["湘25"],"start":"sfc"},
		{"time":"1430","scheduleType":"saturday","dest":"湘南台","routeCode":["湘23","湘24"],"start":"sfc"},
		{"time":"25:00","scheduleType":"weekday","dest":"湘南台"},
		{"time":"2460","scheduleType":"weekday","dest":"湘南台"},
		{"time":"1200","scheduleType":"sunday","dest":"湘南台"}
	]`)

	feed, err := ParseFeed(data, nil)
	require.NoError(t, err)
	require.Len(t, feed, 2)

	assert.Equal(t, ScheduledDeparture{
		TimeOfDay:        705,
		Variant:          Weekday,
		RouteTags:        []string{"湘25"},
		DestinationLabel: "急・湘南台",
		OriginStop:       "sfc",
	}, feed[0])
	assert.Equal(t, Saturday, feed[1].Variant)
	assert.Equal(t, 1430, feed[1].TimeOfDay)

	_, err = ParseFeed([]byte(`{"not":"an array"}`), nil)
	assert.Error(t, err)
}

func TestClassifyDestination(t *testing.T) {
	dest, express := ClassifyDestination("急・湘南台")
	assert.Equal(t, "湘南台", dest)
	assert.True(t, express)

	dest, express = ClassifyDestination("慶應大学")
	assert.Equal(t, "慶應大学", dest)
	assert.False(t, express)
}

func TestComputeUpcomingExample(t *testing.T) {
	feed := []ScheduledDeparture{
		{TimeOfDay: 1430, Variant: Weekday, DestinationLabel: "急・湘南台"},
		{TimeOfDay: 1430, Variant: Weekday, DestinationLabel: "急・湘南台"},
		{TimeOfDay: 1445, Variant: Weekday, DestinationLabel: "湘南台"},
	}

	got := ComputeUpcoming(feed, weekdayAt(14, 0), Weekday, 7)

	assert.Equal(t, []UpcomingDeparture{
		{Destination: "湘南台", IsExpress: true, ScheduledAt: weekdayAt(14, 30)},
		{Destination: "湘南台", IsExpress: false, ScheduledAt: weekdayAt(14, 45)},
	}, got)
}

func TestComputeUpcomingFiltersVariantAndPast(t *testing.T) {
	feed := []ScheduledDeparture{
		{TimeOfDay: 1359, Variant: Weekday, DestinationLabel: "湘南台"},
		{TimeOfDay: 1400, Variant: Weekday, DestinationLabel: "湘南台"},
		{TimeOfDay: 1410, Variant: Saturday, DestinationLabel: "湘南台"},
		{TimeOfDay: 1420, Variant: Holiday, DestinationLabel: "湘南台"},
	}

	// Seconds are ignored: a departure in the current minute is still listed.
	now := weekdayAt(14, 0).Add(42 * time.Second)
	got := ComputeUpcoming(feed, now, Weekday, 7)
	require.Len(t, got, 1)
	assert.Equal(t, weekdayAt(14, 0), got[0].ScheduledAt)

	got = ComputeUpcoming(feed, now, Saturday, 7)
	require.Len(t, got, 1)
	assert.Equal(t, weekdayAt(14, 10), got[0].ScheduledAt)
}

func TestComputeUpcomingServiceEnded(t *testing.T) {
	feed := []ScheduledDeparture{
		{TimeOfDay: 2230, Variant: Weekday, DestinationLabel: "湘南台"},
		{TimeOfDay: 600, Variant: Weekday, DestinationLabel: "湘南台"},
	}
	got := ComputeUpcoming(feed, weekdayAt(23, 50), Weekday, 7)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComputeUpcomingTieBreakExpressFirst(t *testing.T) {
	feed := []ScheduledDeparture{
		{TimeOfDay: 1500, Variant: Weekday, DestinationLabel: "湘南台"},
		{TimeOfDay: 1500, Variant: Weekday, DestinationLabel: "急・湘南台"},
		{TimeOfDay: 1455, Variant: Weekday, DestinationLabel: "辻堂駅"},
	}
	got := ComputeUpcoming(feed, weekdayAt(14, 0), Weekday, 7)
	require.Len(t, got, 3)
	assert.Equal(t, "辻堂駅", got[0].Destination)
	assert.True(t, got[1].IsExpress)
	assert.False(t, got[2].IsExpress)
}

func TestComputeUpcomingLimit(t *testing.T) {
	var feed []ScheduledDeparture
	for i := 0; i < 20; i++ {
		feed = append(feed, ScheduledDeparture{TimeOfDay: 1500 + i, Variant: Weekday, DestinationLabel: "湘南台"})
	}
	assert.Len(t, ComputeUpcoming(feed, weekdayAt(14, 0), Weekday, 3), 3)
	assert.Len(t, ComputeUpcoming(feed, weekdayAt(14, 0), Weekday, 0), DefaultLimit)
}

func TestComputeUpcomingProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dests := []string{"湘南台", "急・湘南台", "辻堂駅", "急・辻堂駅"}
	variants := []Variant{Weekday, Saturday, Holiday}

	for run := 0; run < 200; run++ {
		n := rng.Intn(60)
		feed := make([]ScheduledDeparture, 0, n)
		for i := 0; i < n; i++ {
			feed = append(feed, ScheduledDeparture{
				TimeOfDay:        rng.Intn(24)*100 + rng.Intn(60),
				Variant:          variants[rng.Intn(len(variants))],
				DestinationLabel: dests[rng.Intn(len(dests))],
			})
		}
		// Duplicate a few rows verbatim.
		for i := 0; i < n/4; i++ {
			feed = append(feed, feed[rng.Intn(n)])
		}
		now := weekdayAt(rng.Intn(24), rng.Intn(60))
		limit := 1 + rng.Intn(10)

		got := ComputeUpcoming(feed, now, Weekday, limit)

		t.Run(fmt.Sprintf("run%d", run), func(t *testing.T) {
			assert.LessOrEqual(t, len(got), limit)
			seen := map[string]bool{}
			for i, d := range got {
				assert.False(t, d.ScheduledAt.Before(now), "departure before now")
				key := fmt.Sprintf("%d|%s|%v", d.ScheduledAt.Unix(), d.Destination, d.IsExpress)
				assert.False(t, seen[key], "duplicate key %s", key)
				seen[key] = true
				if i > 0 {
					prev := got[i-1]
					assert.False(t, d.ScheduledAt.Before(prev.ScheduledAt), "not sorted")
					if d.ScheduledAt.Equal(prev.ScheduledAt) {
						assert.False(t, d.IsExpress && !prev.IsExpress, "local ranked before express")
					}
				}
			}
		})
	}
}

func TestUpcomingDepartureRemaining(t *testing.T) {
	d := UpcomingDeparture{ScheduledAt: weekdayAt(14, 30)}

	assert.Equal(t, 30, d.MinutesLeft(weekdayAt(14, 0)))
	assert.False(t, d.Imminent(weekdayAt(14, 0)))
	assert.True(t, d.Imminent(weekdayAt(14, 25)))
	assert.Equal(t, 4, d.MinutesLeft(weekdayAt(14, 25).Add(30*time.Second)))
	assert.Equal(t, 0, d.MinutesLeft(weekdayAt(14, 31)))
}
